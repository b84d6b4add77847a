// Package correlate attributes execution events to a traced shell session.
package correlate

import (
	"context"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/opensourceways/sbom-tracer/internal/jsonl"
	"github.com/opensourceways/sbom-tracer/internal/logging"
	"github.com/opensourceways/sbom-tracer/internal/session"
)

// CommandMatcher decides which command names are worth dispatching.
type CommandMatcher interface {
	Match(cmd string) bool
}

// DispatchFunc receives in-scope events whose command matched.
type DispatchFunc func(ctx context.Context, ev *ExecutionEvent)

// Stats counts what one pass over an event stream did.
type Stats struct {
	Total      int
	Invalid    int
	InScope    int
	Dispatched int
}

// Correlator makes a single forward pass over execution events, discovering
// the wrapper shell and forwarding events that descend from it.
type Correlator struct {
	sess     *session.Session
	commands CommandMatcher
	dispatch DispatchFunc
	logger   *zap.Logger
}

// New creates a correlator for sess.
func New(sess *session.Session, commands CommandMatcher, dispatch DispatchFunc, logger *zap.Logger) *Correlator {
	return &Correlator{sess: sess, commands: commands, dispatch: dispatch, logger: logger}
}

// Run reads JSON lines from r until EOF. Malformed and incomplete records
// are logged and skipped.
func (c *Correlator) Run(ctx context.Context, r io.Reader) (Stats, error) {
	var stats Stats
	err := jsonl.ForEachLine(r, func(line []byte) error {
		stats.Total++

		var ev ExecutionEvent
		if err := jsonl.Unmarshal(line, &ev); err != nil {
			stats.Invalid++
			c.logger.Warn("invalid record", zap.ByteString("line", line), zap.Error(err))
			return nil
		}
		if err := ev.Validate(); err != nil {
			stats.Invalid++
			c.logger.Debug("skipping record", zap.ByteString("line", line), zap.Error(err))
			return nil
		}

		inScope, dispatched := c.Process(ctx, &ev)
		if inScope {
			stats.InScope++
		}
		if dispatched {
			stats.Dispatched++
		}
		return nil
	})
	return stats, err
}

// Process classifies one validated event and dispatches it if it is in
// scope and its command is listed.
func (c *Correlator) Process(ctx context.Context, ev *ExecutionEvent) (inScope, dispatched bool) {
	marked := strings.Contains(ev.FullCmd, c.sess.WrapperName())
	if marked && c.sess.Discover(ev.Pid, ev.Cwd) {
		c.logger.Info("found traced shell", logging.PID(ev.Pid), logging.Dir(ev.Cwd))
	}

	if !marked {
		pid, ok := c.sess.ShellMainPID()
		if !ok || !ev.HasAncestor(pid) {
			return false, false
		}
	}

	if !c.commands.Match(ev.Cmd) {
		return true, false
	}
	c.logger.Debug("dispatching", logging.PID(ev.Pid), logging.Cmd(ev.Cmd), logging.FullCmd(ev.FullCmd))
	c.dispatch(ctx, ev)
	return true, true
}
