package analyzer

import (
	"context"
	"path/filepath"
	"regexp"

	"go.uber.org/zap"

	"github.com/opensourceways/sbom-tracer/internal/jsonl"
	"github.com/opensourceways/sbom-tracer/internal/session"
)

// Invocation is a process start selected for analysis.
type Invocation struct {
	Cmd     string
	FullCmd string
	Cwd     string
}

// ProvenanceRecord describes where a fetched source came from.
type ProvenanceRecord struct {
	CommitID      string `json:"commit_id"`
	VersionString string `json:"version_string"`
	URL           string `json:"url"`
	Tag           string `json:"tag"`
}

// Env is what an analyzer may touch while extracting.
type Env struct {
	// Out receives ProvenanceRecord lines. Shared by all analyzers.
	Out *jsonl.Writer
	// Workspace is the task directory.
	Workspace string
	Runner    CommandRunner
	Logger    *zap.Logger
}

// DefinitionDir is the staging area for copied build-definition files.
func (e *Env) DefinitionDir() string {
	return filepath.Join(e.Workspace, session.DefinitionFileDir)
}

// Analyzer handles one kind of build-tool invocation.
type Analyzer interface {
	Tag() string
	Match(cmd, fullCmd string) bool
	Analyze(ctx context.Context, inv Invocation, env *Env) error
}

// matcher selects invocations by command name, anchored at the start, and
// by a pattern found anywhere in the full command line.
type matcher struct {
	tag    string
	cmdRe  *regexp.Regexp
	fullRe *regexp.Regexp
}

func newMatcher(tag, cmdPattern, fullPattern string) matcher {
	return matcher{
		tag:    tag,
		cmdRe:  regexp.MustCompile(`^(?:` + cmdPattern + `)`),
		fullRe: regexp.MustCompile(fullPattern),
	}
}

func (m matcher) Tag() string { return m.tag }

func (m matcher) Match(cmd, fullCmd string) bool {
	return m.cmdRe.MatchString(cmd) && m.fullRe.MatchString(fullCmd)
}

// Default returns every built-in analyzer.
func Default() []Analyzer {
	return []Analyzer{
		NewGitClone(),
		NewGitSubmodule(),
		NewGradle(),
		NewGradleWrapper(),
		NewMaven(),
		NewPip(),
	}
}
