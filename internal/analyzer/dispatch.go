package analyzer

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/opensourceways/sbom-tracer/internal/logging"
)

// DefaultParallelism bounds concurrent analyzer runs per invocation.
const DefaultParallelism = 4

// Dispatcher matches invocations against a fixed list of analyzers.
type Dispatcher struct {
	analyzers   []Analyzer
	env         *Env
	parallelism int
}

// NewDispatcher creates a dispatcher over analyzers.
func NewDispatcher(analyzers []Analyzer, env *Env) *Dispatcher {
	return &Dispatcher{analyzers: analyzers, env: env, parallelism: DefaultParallelism}
}

// Dispatch runs every analyzer matching inv and waits for them. It returns
// how many matched. Analyzer errors are logged, never returned.
func (d *Dispatcher) Dispatch(ctx context.Context, inv Invocation) int {
	var g errgroup.Group
	g.SetLimit(d.parallelism)

	matched := 0
	for _, a := range d.analyzers {
		if !a.Match(inv.Cmd, inv.FullCmd) {
			continue
		}
		matched++
		g.Go(func() error {
			if err := a.Analyze(ctx, inv, d.env); err != nil {
				d.env.Logger.Warn("analyzer failed",
					logging.Analyzer(a.Tag()),
					logging.FullCmd(inv.FullCmd),
					logging.Dir(inv.Cwd),
					zap.Error(err),
				)
			}
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // Goroutines only return nil
	return matched
}
