package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/opensourceways/sbom-tracer/internal/analyzer"
)

type fakeDaemon struct {
	name   string
	exited bool
}

func (d *fakeDaemon) Name() string { return d.name }
func (d *fakeDaemon) Exited() bool { return d.exited }
func (d *fakeDaemon) Err() error   { return nil }

// fakeLauncher writes each daemon's log the way a finished daemon would have.
type fakeLauncher struct {
	traceDir string
	logs     map[string]string
	dead     map[string]bool
	launched []string
}

func (l *fakeLauncher) Launch(_ context.Context, spec DaemonSpec) (Daemon, error) {
	l.launched = append(l.launched, spec.Name)
	if content, ok := l.logs[spec.Name]; ok {
		if err := os.WriteFile(filepath.Join(l.traceDir, spec.LogFile), []byte(content), 0o644); err != nil {
			return nil, err
		}
	}
	return &fakeDaemon{name: spec.Name, exited: l.dead[spec.Name]}, nil
}

// fakeFinder returns one scripted scan result per call, then nothing.
type fakeFinder struct {
	scans [][]int
	calls int
	tags  []string
}

func (f *fakeFinder) FindByCmdline(substr string) ([]int, error) {
	f.tags = append(f.tags, substr)
	f.calls++
	if f.calls > len(f.scans) {
		return nil, nil
	}
	return f.scans[f.calls-1], nil
}

type signalled struct {
	sig  unix.Signal
	pids []int
}

type fakeSignaller struct {
	sent []signalled
}

func (s *fakeSignaller) Signal(_ context.Context, pids []int, sig unix.Signal) error {
	s.sent = append(s.sent, signalled{sig: sig, pids: pids})
	return nil
}

type fakeShell struct {
	code    int
	ran     bool
	dir     string
	script  string
	content string
}

func (s *fakeShell) Run(_ context.Context, dir, script string) (int, error) {
	s.ran = true
	s.dir = dir
	s.script = script
	raw, err := os.ReadFile(filepath.Join(dir, script))
	if err != nil {
		return 1, err
	}
	s.content = string(raw)
	return s.code, nil
}

type matchAll struct{}

func (matchAll) Match(string) bool { return true }

// recordingAnalyzer writes the full command of every git invocation.
type recordingAnalyzer struct {
	mu   sync.Mutex
	seen []analyzer.Invocation
}

func (*recordingAnalyzer) Tag() string { return "recording" }

func (*recordingAnalyzer) Match(cmd, _ string) bool { return cmd == "git" }

func (a *recordingAnalyzer) Analyze(_ context.Context, inv analyzer.Invocation, env *analyzer.Env) error {
	a.mu.Lock()
	a.seen = append(a.seen, inv)
	a.mu.Unlock()
	return env.Out.Write(analyzer.ProvenanceRecord{URL: inv.FullCmd, Tag: "recording"})
}

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func readFile(t *testing.T, path string) string {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(raw)
}
