// Package session holds the per-task state and filesystem layout of one
// traced shell invocation.
package session

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Names inside a task directory.
const (
	TraceDataDir      = "trace_data"
	DefinitionFileDir = "definition_file"

	ExecsnoopLog     = "execsnoop.log"
	SslsniffLog      = "sslsniff.log"
	H2sniffLog       = "h2sniff.log"
	CollectedInfoLog = "locally_collected_info.log"
	SessionLog       = "sbom_tracer.log"

	wrapperSuffix = "_sbom_tracer.sh"
)

// Session is one tracing task. ShellMainPID and ProjectDir are unknown
// until the wrapper script's execution is observed and are set once.
type Session struct {
	TaskID    string
	Workspace string
	// ShellDir is where the wrapper script is written and run.
	ShellDir string

	mu           sync.Mutex
	discovered   bool
	shellMainPID int
	projectDir   string
}

// New describes a task under workspace. Nothing is created on disk.
func New(workspace, taskID, shellDir string) *Session {
	return &Session{TaskID: taskID, Workspace: workspace, ShellDir: shellDir}
}

// Dir is the task directory.
func (s *Session) Dir() string { return filepath.Join(s.Workspace, s.TaskID) }

// TraceDataDir holds daemon logs and the relocated wrapper script.
func (s *Session) TraceDataDir() string { return filepath.Join(s.Dir(), TraceDataDir) }

// DefinitionFileDir mirrors the source paths of copied definition files.
func (s *Session) DefinitionFileDir() string { return filepath.Join(s.Dir(), DefinitionFileDir) }

// TraceFile returns the path of name inside the trace-data area.
func (s *Session) TraceFile(name string) string { return filepath.Join(s.TraceDataDir(), name) }

// LogFile is the session log.
func (s *Session) LogFile() string { return filepath.Join(s.Dir(), SessionLog) }

// WrapperName is the wrapper script file name. It doubles as the marker
// that identifies the traced shell in exec events.
func (s *Session) WrapperName() string { return s.TaskID + wrapperSuffix }

// WrapperPath is where the wrapper script is written before it runs.
func (s *Session) WrapperPath() string { return filepath.Join(s.ShellDir, s.WrapperName()) }

// TraceDataArchive is the archive of the trace-data area.
func (s *Session) TraceDataArchive() string { return filepath.Join(s.Dir(), TraceDataDir+".tar.gz") }

// DefinitionFileArchive is the archive of the definition-file area.
func (s *Session) DefinitionFileArchive() string {
	return filepath.Join(s.Dir(), DefinitionFileDir+".tar.gz")
}

// ResultArchive combines both archives and the session log.
func (s *Session) ResultArchive() string {
	return filepath.Join(s.Dir(), s.TaskID+"_tracer_result.tar.gz")
}

// Init creates the task directory and recreates both data areas empty.
func (s *Session) Init() error {
	if err := os.MkdirAll(s.Dir(), 0o755); err != nil {
		return fmt.Errorf("creating task directory: %w", err)
	}
	for _, dir := range []string{s.TraceDataDir(), s.DefinitionFileDir()} {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("clearing %s: %w", dir, err)
		}
		if err := os.Mkdir(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return nil
}

// Discover records the pid and working directory of the wrapper shell.
// Only the first call has an effect; it reports whether it was that call.
func (s *Session) Discover(pid int, dir string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.discovered {
		return false
	}
	s.discovered = true
	s.shellMainPID = pid
	s.projectDir = dir
	return true
}

// ShellMainPID returns the wrapper shell pid, if discovered.
func (s *Session) ShellMainPID() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shellMainPID, s.discovered
}

// ProjectDir returns the wrapper shell working directory, if discovered.
func (s *Session) ProjectDir() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.projectDir, s.discovered
}
