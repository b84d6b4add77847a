// Package execsnoop reports process executions as JSON lines, using the
// kernel process connector.
package execsnoop

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"

	"github.com/vishvananda/netlink/nl"
	"github.com/vishvananda/netns"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/opensourceways/sbom-tracer/internal/correlate"
	"github.com/opensourceways/sbom-tracer/internal/jsonl"
	"github.com/opensourceways/sbom-tracer/internal/logging"
	"github.com/opensourceways/sbom-tracer/internal/procmeta"
)

// Socket is the part of *nl.NetlinkSocket the snooper consumes.
type Socket interface {
	Receive() ([]syscall.NetlinkMessage, *unix.SockaddrNetlink, error)
	Close()
}

// Processes resolves process details at exec time.
type Processes interface {
	Lookup(pid int) (*procmeta.ProcessMetadata, error)
	Ancestors(pid int) []int
	RecordFork(child, parent int)
}

// Subscribe joins the proc connector multicast group. Requires CAP_NET_ADMIN.
func Subscribe() (*nl.NetlinkSocket, error) {
	sock, err := nl.SubscribeAt(netns.None(), netns.None(), unix.NETLINK_CONNECTOR, cnIdxProc)
	if err != nil {
		return nil, fmt.Errorf("subscribing to proc connector: %w", err)
	}

	var req nl.NetlinkRequest
	req.Pid = uint32(os.Getpid()) //nolint:gosec // pids are positive
	req.Type = unix.NLMSG_DONE
	req.Len = uint32(unix.SizeofNlMsghdr)
	req.AddData(nl.NewCnMsg(cnIdxProc, cnValProc, procCnMcastListen))

	if err := sock.Send(&req); err != nil {
		sock.Close()
		return nil, fmt.Errorf("enabling proc events: %w", err)
	}
	return sock, nil
}

// Snooper turns exec notifications into ExecutionEvent lines.
type Snooper struct {
	sock   Socket
	procs  Processes
	out    *jsonl.Writer
	logger *zap.Logger
}

// New creates a snooper reading from sock.
func New(sock Socket, procs Processes, out *jsonl.Writer, logger *zap.Logger) *Snooper {
	return &Snooper{sock: sock, procs: procs, out: out, logger: logger}
}

// Run processes notifications until ctx is cancelled. The socket is closed on return.
func (s *Snooper) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, s.sock.Close)
	defer func() {
		if stop() {
			s.sock.Close()
		}
	}()

	for {
		msgs, from, err := s.sock.Receive()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, unix.ENOBUFS) {
				s.logger.Warn("proc connector overrun, events lost")
				continue
			}
			return fmt.Errorf("receiving proc events: %w", err)
		}
		if from == nil || from.Pid != nl.PidKernel {
			continue
		}
		for _, msg := range msgs {
			if msg.Header.Type != unix.NLMSG_DONE {
				continue
			}
			s.handle(msg.Data)
		}
	}
}

func (s *Snooper) handle(data []byte) {
	ev, err := DecodeProcEvent(data)
	if err != nil {
		s.logger.Debug("bad proc event", zap.Error(err))
		return
	}

	switch ev.Kind {
	case KindFork:
		if ev.IsProcess() {
			s.procs.RecordFork(ev.Tgid, ev.ParentTgid)
		}
	case KindExec:
		if err := s.emit(ev.Tgid); err != nil {
			s.logger.Debug("dropping exec", logging.PID(ev.Tgid), zap.Error(err))
		}
	}
}

// emit writes the ExecutionEvent of pid. Processes that are already gone
// cannot be described and are skipped.
func (s *Snooper) emit(pid int) error {
	meta, err := s.procs.Lookup(pid)
	if err != nil {
		return err
	}
	return s.out.Write(correlate.ExecutionEvent{
		Pid:          meta.Pid,
		Ppid:         meta.Ppid,
		Cmd:          meta.Comm,
		FullCmd:      meta.CmdlineFull,
		Cwd:          meta.Cwd,
		AncestorPids: s.procs.Ancestors(pid),
	})
}
