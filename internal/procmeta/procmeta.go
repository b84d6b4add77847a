package procmeta

import (
	"fmt"
	"os"
	"strings"

	"github.com/prometheus/procfs"
)

// maxAncestry bounds ancestor walks against pid reuse loops.
const maxAncestry = 128

// ProcessMetadata holds the fields of a process needed for attribution.
type ProcessMetadata struct {
	Pid         int
	Ppid        int
	Comm        string
	Args        []string
	CmdlineFull string
	Cwd         string
}

// Table reads the process table through a procfs mount.
type Table struct {
	fs procfs.FS
}

// NewTable opens the default /proc mount.
func NewTable() (*Table, error) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return nil, fmt.Errorf("opening procfs: %w", err)
	}
	return &Table{fs: fs}, nil
}

// NewTableAt opens a procfs mount at mountPoint.
func NewTableAt(mountPoint string) (*Table, error) {
	fs, err := procfs.NewFS(mountPoint)
	if err != nil {
		return nil, fmt.Errorf("opening procfs at %s: %w", mountPoint, err)
	}
	return &Table{fs: fs}, nil
}

// ParentPID returns the parent of pid, or 0 if the process is gone or unreadable.
// The process may exit between the event and this call; 0 is the answer then.
func (t *Table) ParentPID(pid uint32) uint32 {
	proc, err := t.fs.Proc(int(pid))
	if err != nil {
		return 0
	}
	stat, err := proc.Stat()
	if err != nil || stat.PPID < 0 {
		return 0
	}
	return uint32(stat.PPID) //nolint:gosec // PPID checked non-negative
}

// StartTime returns the start time of pid in clock ticks since boot.
func (t *Table) StartTime(pid int) (uint64, bool) {
	proc, err := t.fs.Proc(pid)
	if err != nil {
		return 0, false
	}
	stat, err := proc.Stat()
	if err != nil {
		return 0, false
	}
	return stat.Starttime, true
}

// Lookup reads the metadata of a live process.
func (t *Table) Lookup(pid int) (*ProcessMetadata, error) {
	proc, err := t.fs.Proc(pid)
	if err != nil {
		return nil, fmt.Errorf("process %d: %w", pid, err)
	}

	stat, err := proc.Stat()
	if err != nil {
		return nil, fmt.Errorf("reading stat of %d: %w", pid, err)
	}

	args, err := proc.CmdLine()
	if err != nil {
		return nil, fmt.Errorf("reading cmdline of %d: %w", pid, err)
	}

	// cwd needs ptrace access; a missing cwd is reported as empty.
	cwd, _ := proc.Cwd() //nolint:errcheck // Optional field

	meta := &ProcessMetadata{
		Pid:  pid,
		Ppid: stat.PPID,
		Comm: stat.Comm,
		Cwd:  cwd,
	}
	meta.Args, meta.CmdlineFull = parseCmdline(args)
	return meta, nil
}

// Ancestors returns the chain of parents of pid, nearest first, down to and
// including init. The walk stops at the first unreadable process.
func (t *Table) Ancestors(pid int) []int {
	return walkAncestors(pid, func(p int) (int, bool) {
		proc, err := t.fs.Proc(p)
		if err != nil {
			return 0, false
		}
		stat, err := proc.Stat()
		if err != nil {
			return 0, false
		}
		return stat.PPID, true
	})
}

// FindByCmdline returns the pids whose command line contains substr,
// excluding the calling process.
func (t *Table) FindByCmdline(substr string) ([]int, error) {
	procs, err := t.fs.AllProcs()
	if err != nil {
		return nil, fmt.Errorf("listing processes: %w", err)
	}

	self := os.Getpid()
	var pids []int
	for _, p := range procs {
		if p.PID == self {
			continue
		}
		args, err := p.CmdLine()
		if err != nil || len(args) == 0 {
			continue
		}
		if strings.Contains(strings.Join(args, " "), substr) {
			pids = append(pids, p.PID)
		}
	}
	return pids, nil
}

// walkAncestors follows parent links from pid using parentOf.
func walkAncestors(pid int, parentOf func(int) (int, bool)) []int {
	var chain []int
	seen := map[int]bool{pid: true}
	for cur := pid; len(chain) < maxAncestry; {
		ppid, ok := parentOf(cur)
		if !ok || ppid <= 0 || seen[ppid] {
			break
		}
		chain = append(chain, ppid)
		seen[ppid] = true
		cur = ppid
	}
	return chain
}

// parseCmdline returns the arguments and their space-joined form.
func parseCmdline(raw []string) ([]string, string) {
	if len(raw) == 0 {
		return nil, ""
	}
	return raw, strings.Join(raw, " ")
}
