// Package orchestrator drives one tracing session: it starts the capture
// daemons, runs the user's shell under them, stops them, replays what they
// recorded through the analyzers and packages the results.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/opensourceways/sbom-tracer/internal/analyzer"
	"github.com/opensourceways/sbom-tracer/internal/correlate"
	"github.com/opensourceways/sbom-tracer/internal/logging"
	"github.com/opensourceways/sbom-tracer/internal/session"
)

// startupPolls is how many liveness checks are spread over the warm-up.
const startupPolls = 5

// Options are the per-session settings.
type Options struct {
	// Shell is the text of the wrapper script.
	Shell        string
	Warmup       time.Duration
	StopInterval time.Duration
	StopRounds   int
}

// Deps are the collaborators a session talks to.
type Deps struct {
	Launcher  Launcher
	Finder    ProcessFinder
	Signaller Signaller
	Shell     ShellRunner
	Commands  correlate.CommandMatcher
	Analyzers []analyzer.Analyzer
	Runner    analyzer.CommandRunner
	// Tracer records one span per state. Optional.
	Tracer trace.Tracer
	// SpanAttributes are added to every state span.
	SpanAttributes []attribute.KeyValue
	// Parent, when valid, is the remote parent of every state span.
	Parent trace.SpanContext
	// Sleep replaces the wall-clock wait between polls. Optional.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Result is the outcome of a session.
type Result struct {
	// ExitCode is the traced shell's exit code, or 1 if it never ran.
	ExitCode int
	// Archive is the result archive path, empty when packaging failed.
	Archive string
	State   State
}

// Orchestrator runs a single session. It is not reusable.
type Orchestrator struct {
	sess   *session.Session
	opts   Options
	deps   Deps
	logger *zap.Logger

	state   State
	span    trace.Span
	spanCtx context.Context
}

// New creates an orchestrator for sess.
func New(sess *session.Session, opts Options, deps Deps, logger *zap.Logger) *Orchestrator {
	if deps.Tracer == nil {
		deps.Tracer = noop.NewTracerProvider().Tracer("")
	}
	if deps.Sleep == nil {
		deps.Sleep = sleepCtx
	}
	if deps.Runner == nil {
		deps.Runner = analyzer.ExecRunner{}
	}
	return &Orchestrator{
		sess:   sess,
		opts:   opts,
		deps:   deps,
		logger: logger.With(logging.TaskID(sess.TaskID)),
		state:  StateInit,
	}
}

// State returns the current state.
func (o *Orchestrator) State() State { return o.state }

// Run executes the session to completion. Teardown and packaging are
// attempted even when an earlier step failed; the returned error joins
// everything that went wrong.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	res := &Result{ExitCode: 1}
	o.spanCtx = ctx
	if o.deps.Parent.IsValid() {
		o.spanCtx = trace.ContextWithRemoteSpanContext(ctx, o.deps.Parent)
	}
	o.enter(StateInit)
	defer o.endSpan()

	if err := o.sess.Init(); err != nil {
		o.enter(StateFailed)
		res.State = o.state
		return res, fmt.Errorf("preparing task directory: %w", err)
	}

	o.enter(StateDaemonsStarting)
	if err := o.startDaemons(ctx); err != nil {
		o.logger.Error("daemon startup failed", zap.Error(err))
		if stopErr := o.stopDaemons(ctx); stopErr != nil {
			o.logger.Error("daemon teardown failed", zap.Error(stopErr))
		}
		if archive, packErr := o.pack(); packErr != nil {
			o.logger.Error("partial packaging failed", zap.Error(packErr))
		} else {
			res.Archive = archive
		}
		o.enter(StateFailed)
		res.State = o.state
		return res, err
	}

	o.enter(StateRunningShell)
	code, shellErr := o.runShell(ctx)
	res.ExitCode = code
	if shellErr != nil {
		o.logger.Error("shell failed", zap.Error(shellErr))
	}

	o.enter(StateStoppingDaemons)
	stopErr := o.stopDaemons(ctx)
	if stopErr != nil {
		o.logger.Error("stopping daemons failed", zap.Error(stopErr))
	}

	o.enter(StateCollecting)
	if err := o.collect(ctx); err != nil {
		o.logger.Error("collection incomplete", zap.Error(err))
	}

	o.enter(StatePackaging)
	archive, packErr := o.pack()
	res.Archive = archive

	err := errors.Join(shellErr, stopErr, packErr)
	if err != nil {
		o.enter(StateFailed)
	} else {
		o.enter(StateDone)
	}
	res.State = o.state
	return res, err
}

func (o *Orchestrator) enter(s State) {
	o.endSpan()
	o.state = s
	o.logger.Info("session state", logging.State(s.String()))
	if s.Terminal() {
		return
	}
	attrs := append([]attribute.KeyValue{attribute.String("sbom_tracer.task_id", o.sess.TaskID)}, o.deps.SpanAttributes...)
	_, o.span = o.deps.Tracer.Start(o.spanCtx, s.String(), trace.WithAttributes(attrs...))
}

func (o *Orchestrator) endSpan() {
	if o.span != nil {
		o.span.End()
		o.span = nil
	}
}

// startDaemons launches every daemon and then polls their liveness over the
// warm-up. Any daemon that exits before the warm-up ends fails startup.
func (o *Orchestrator) startDaemons(ctx context.Context) error {
	var daemons []Daemon
	for _, spec := range Daemons() {
		d, err := o.deps.Launcher.Launch(ctx, spec)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrDaemonStart, err)
		}
		o.logger.Info("daemon launched", logging.Daemon(spec.Name))
		daemons = append(daemons, d)
	}

	interval := o.opts.Warmup / startupPolls
	for range startupPolls {
		if err := o.deps.Sleep(ctx, interval); err != nil {
			return fmt.Errorf("%w: %w", ErrDaemonStart, err)
		}
		for _, d := range daemons {
			if d.Exited() {
				return fmt.Errorf("%w: %s exited early: %v", ErrDaemonStart, d.Name(), d.Err())
			}
		}
	}
	return nil
}

// runShell writes the wrapper, runs it and moves it into the trace data.
func (o *Orchestrator) runShell(ctx context.Context) (int, error) {
	path := o.sess.WrapperPath()
	if err := writeWrapper(path, o.opts.Shell); err != nil {
		return 1, err
	}

	code, err := o.deps.Shell.Run(ctx, o.sess.ShellDir, o.sess.WrapperName())
	o.logger.Info("shell finished", zap.Int("exit_code", code))

	if mvErr := moveFile(path, o.sess.TraceFile(o.sess.WrapperName())); mvErr != nil {
		o.logger.Warn("relocating wrapper script", logging.Path(path), zap.Error(mvErr))
	}
	return code, err
}

func (o *Orchestrator) stopDaemons(ctx context.Context) error {
	t := &Terminator{
		Finder:    o.deps.Finder,
		Signaller: o.deps.Signaller,
		Rounds:    o.opts.StopRounds,
		Interval:  o.opts.StopInterval,
		Logger:    o.logger,
		Sleep:     o.deps.Sleep,
	}
	return t.Stop(ctx, TaskTag(o.sess.TaskID))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
