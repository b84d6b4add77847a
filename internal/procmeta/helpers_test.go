package procmeta

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// Stat fields from tty_nr through itrealvalue, then those after starttime.
const (
	statMid  = "0 -1 4194304 81 0 0 0 0 0 0 0 20 0 1 0"
	statTail = "2703360 314 18446744073709551615 " +
		"94249687539712 94249687559593 140729489346864 0 0 0 0 0 0 0 0 0 17 0 0 0 0 0 0 " +
		"94249687575600 94249687577216 94250679504896 140729489355685 140729489355705 " +
		"140729489355705 140729489358827 0"
)

const defaultStart = 55841

type fakeProc struct {
	pid   int
	ppid  int
	comm  string
	args  []string
	cwd   string
	start uint64
}

// fakeProcFS lays out a minimal /proc tree in a temp dir.
func fakeProcFS(t *testing.T, procs ...fakeProc) string {
	t.Helper()

	root := t.TempDir()
	for _, p := range procs {
		dir := filepath.Join(root, fmt.Sprint(p.pid))
		require.NoError(t, os.MkdirAll(dir, 0o755))

		start := p.start
		if start == 0 {
			start = defaultStart
		}
		stat := fmt.Sprintf("%d (%s) S %d %d %d %s %d %s\n", p.pid, p.comm, p.ppid, p.pid, p.pid, statMid, start, statTail)
		require.NoError(t, os.WriteFile(filepath.Join(dir, "stat"), []byte(stat), 0o644))

		cmdline := strings.Join(p.args, "\x00")
		if cmdline != "" {
			cmdline += "\x00"
		}
		require.NoError(t, os.WriteFile(filepath.Join(dir, "cmdline"), []byte(cmdline), 0o644))

		if p.cwd != "" {
			require.NoError(t, os.Symlink(p.cwd, filepath.Join(dir, "cwd")))
		}
	}
	return root
}

func newFakeTable(t *testing.T, procs ...fakeProc) *Table {
	t.Helper()

	table, err := NewTableAt(fakeProcFS(t, procs...))
	require.NoError(t, err)
	return table
}
