// Package sniff runs the TLS write capture daemons.
package sniff

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/opensourceways/sbom-tracer/internal/bpfloader"
	"github.com/opensourceways/sbom-tracer/internal/eventstream"
)

// Config selects the functions to instrument.
type Config struct {
	Targets []bpfloader.Target
}

// Run attaches the capture program, feeds every captured write to handler,
// and detaches when ctx is cancelled.
func Run(ctx context.Context, cfg Config, handler eventstream.Handler, logger *zap.Logger) (err error) {
	loader, err := bpfloader.New(logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := loader.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()

	if err := loader.Attach(cfg.Targets); err != nil {
		return err
	}

	reader, err := loader.OpenPerfReader()
	if err != nil {
		return err
	}

	stream := eventstream.New(reader, handler, logger)
	stream.Start(ctx)
	logger.Info("capturing TLS writes", zap.String("strategy", loader.Strategy()))

	select {
	case <-ctx.Done():
	case <-stream.Done():
	}
	if err := stream.Stop(); err != nil {
		logger.Debug("closing perf reader", zap.Error(err))
	}

	logger.Info("capture stopped",
		zap.Uint64("handled", stream.Handled()),
		zap.Uint64("lost", stream.Lost()))
	if ctx.Err() == nil {
		return fmt.Errorf("capture stream ended unexpectedly")
	}
	return nil
}
