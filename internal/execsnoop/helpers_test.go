package execsnoop

import (
	"encoding/binary"
	"errors"
	"sync"
	"syscall"

	"github.com/vishvananda/netlink/nl"
	"golang.org/x/sys/unix"

	"github.com/opensourceways/sbom-tracer/internal/procmeta"
)

var errClosed = errors.New("socket closed")

type batch struct {
	msgs []syscall.NetlinkMessage
	from *unix.SockaddrNetlink
	err  error
}

// fakeSocket replays batches, then blocks until closed.
type fakeSocket struct {
	batches chan batch
	once    sync.Once
	closed  chan struct{}
}

func newFakeSocket(batches ...batch) *fakeSocket {
	ch := make(chan batch, len(batches))
	for _, b := range batches {
		ch <- b
	}
	return &fakeSocket{batches: ch, closed: make(chan struct{})}
}

func (f *fakeSocket) Receive() ([]syscall.NetlinkMessage, *unix.SockaddrNetlink, error) {
	select {
	case b := <-f.batches:
		return b.msgs, b.from, b.err
	case <-f.closed:
		return nil, nil, errClosed
	}
}

func (f *fakeSocket) Close() {
	f.once.Do(func() { close(f.closed) })
}

func fromKernel(msgs ...syscall.NetlinkMessage) batch {
	return batch{msgs: msgs, from: &unix.SockaddrNetlink{Pid: nl.PidKernel}}
}

func procMessage(what uint32, body ...uint32) syscall.NetlinkMessage {
	data := make([]byte, cnMsgLen+procEventHdrLn+4*len(body))
	binary.LittleEndian.PutUint32(data[cnMsgLen:], what)
	for i, v := range body {
		binary.LittleEndian.PutUint32(data[cnMsgLen+procEventHdrLn+4*i:], v)
	}
	return syscall.NetlinkMessage{
		Header: syscall.NlMsghdr{Type: unix.NLMSG_DONE},
		Data:   data,
	}
}

// fakeProcesses is a static process table with a fork log.
type fakeProcesses struct {
	mu    sync.Mutex
	table map[int]*procmeta.ProcessMetadata
	forks map[int]int
}

func (f *fakeProcesses) Lookup(pid int) (*procmeta.ProcessMetadata, error) {
	if m, ok := f.table[pid]; ok {
		return m, nil
	}
	return nil, errors.New("no such process")
}

func (f *fakeProcesses) Ancestors(pid int) []int {
	var chain []int
	for cur := pid; ; {
		m, ok := f.table[cur]
		if !ok || m.Ppid == 0 {
			return chain
		}
		chain = append(chain, m.Ppid)
		cur = m.Ppid
	}
}

func (f *fakeProcesses) RecordFork(child, parent int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forks[child] = parent
}
