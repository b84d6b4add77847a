package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync/atomic"
	"syscall"

	"github.com/opensourceways/sbom-tracer/internal/session"
)

// ErrDaemonStart is returned when a capture daemon is not running after warm-up.
var ErrDaemonStart = errors.New("capture daemon failed to start")

// DaemonSpec names a capture daemon and where its output goes.
type DaemonSpec struct {
	Name    string
	LogFile string
}

// Daemons lists the capture daemons of a session, in launch order.
func Daemons() []DaemonSpec {
	return []DaemonSpec{
		{Name: "execsnoop", LogFile: session.ExecsnoopLog},
		{Name: "sslsniff", LogFile: session.SslsniffLog},
		{Name: "h2sniff", LogFile: session.H2sniffLog},
	}
}

// Daemon is a launched background process.
type Daemon interface {
	Name() string
	// Exited reports whether the process has already terminated.
	Exited() bool
	// Err is the exit error, once exited.
	Err() error
}

// Launcher starts capture daemons without waiting for them.
type Launcher interface {
	Launch(ctx context.Context, spec DaemonSpec) (Daemon, error)
}

// ExecLauncher runs daemons as subcommands of this executable:
//
//	[sudo] <self> <name> --task-id <id> [extra args]
//
// The task id tag is how the stop scan finds them again.
type ExecLauncher struct {
	Self     string
	Sudo     bool
	TaskID   string
	TraceDir string
	// Extra is appended to every daemon command line.
	Extra []string
}

// TaskTag is the command line substring every daemon of taskID carries.
func TaskTag(taskID string) string {
	return "--task-id " + taskID
}

// Command builds the command line of a daemon.
func (l *ExecLauncher) Command(spec DaemonSpec) []string {
	var argv []string
	if l.Sudo {
		argv = append(argv, "sudo", "-n")
	}
	argv = append(argv, l.Self, spec.Name, "--task-id", l.TaskID)
	return append(argv, l.Extra...)
}

// Launch starts the daemon with stdout in its log file and stderr next to it.
func (l *ExecLauncher) Launch(_ context.Context, spec DaemonSpec) (Daemon, error) {
	stdout, err := os.Create(l.TraceDir + "/" + spec.LogFile)
	if err != nil {
		return nil, fmt.Errorf("creating %s log: %w", spec.Name, err)
	}
	defer func() {
		_ = stdout.Close() //nolint:errcheck // The child holds its own descriptor
	}()
	stderr, err := os.Create(l.TraceDir + "/" + spec.Name + ".err")
	if err != nil {
		return nil, fmt.Errorf("creating %s error log: %w", spec.Name, err)
	}
	defer func() {
		_ = stderr.Close() //nolint:errcheck // The child holds its own descriptor
	}()

	argv := l.Command(spec)
	//nolint:gosec // Launching the tracer's own daemons
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	// Keep terminal signals aimed at the traced shell away from the daemons.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", spec.Name, err)
	}

	d := &execDaemon{name: spec.Name}
	go func() {
		err := cmd.Wait()
		d.err.Store(&err)
		d.exited.Store(true)
	}()
	return d, nil
}

type execDaemon struct {
	name   string
	exited atomic.Bool
	err    atomic.Pointer[error]
}

func (d *execDaemon) Name() string { return d.name }

func (d *execDaemon) Exited() bool { return d.exited.Load() }

func (d *execDaemon) Err() error {
	if p := d.err.Load(); p != nil {
		return *p
	}
	return nil
}
