package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"go.uber.org/zap"

	"github.com/opensourceways/sbom-tracer/internal/analyzer"
	"github.com/opensourceways/sbom-tracer/internal/correlate"
	"github.com/opensourceways/sbom-tracer/internal/jsonl"
	"github.com/opensourceways/sbom-tracer/internal/logging"
	"github.com/opensourceways/sbom-tracer/internal/session"
)

// collect replays the execution log through the correlator and the
// analyzers, then stages definition files from the project directory.
// A missing execution log means nothing was observed and is not an error.
func (o *Orchestrator) collect(ctx context.Context) error {
	execLog := o.sess.TraceFile(session.ExecsnoopLog)
	in, err := os.Open(execLog)
	if errors.Is(err, fs.ErrNotExist) {
		o.logger.Warn("no execution log, skipping collection", logging.Path(execLog))
		return nil
	}
	if err != nil {
		return fmt.Errorf("opening execution log: %w", err)
	}
	defer func() {
		_ = in.Close() //nolint:errcheck // Read-only file
	}()

	out, err := os.Create(o.sess.TraceFile(session.CollectedInfoLog))
	if err != nil {
		return fmt.Errorf("creating collected info log: %w", err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil {
			o.logger.Warn("closing collected info log", zap.Error(cerr))
		}
	}()

	env := &analyzer.Env{
		Out:       jsonl.NewWriter(out),
		Workspace: o.sess.Dir(),
		Runner:    o.deps.Runner,
		Logger:    o.logger.With(logging.Component("analyzer")),
	}
	dispatcher := analyzer.NewDispatcher(o.deps.Analyzers, env)
	dispatch := func(ctx context.Context, ev *correlate.ExecutionEvent) {
		dispatcher.Dispatch(ctx, analyzer.Invocation{Cmd: ev.Cmd, FullCmd: ev.FullCmd, Cwd: ev.Cwd})
	}

	corr := correlate.New(o.sess, o.deps.Commands, dispatch, o.logger.With(logging.Component("correlate")))
	stats, err := corr.Run(ctx, in)
	o.logger.Info("execution log processed",
		zap.Int("total", stats.Total),
		zap.Int("invalid", stats.Invalid),
		zap.Int("in_scope", stats.InScope),
		zap.Int("dispatched", stats.Dispatched))
	if err != nil {
		return fmt.Errorf("reading execution log: %w", err)
	}

	dir, ok := o.sess.ProjectDir()
	if !ok {
		o.logger.Warn("wrapper shell never observed, project directory unknown")
		return nil
	}
	n, err := analyzer.CopyDefinitionFiles(dir, o.sess.DefinitionFileDir(), analyzer.AllDefinitions, o.logger)
	if err != nil {
		return fmt.Errorf("copying project definition files: %w", err)
	}
	o.logger.Info("project definition files staged", logging.Dir(dir), logging.Count(n))
	return nil
}
