// Package eventstream reads capture records from the kernel and hands them to a handler.
package eventstream

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/opensourceways/sbom-tracer/internal/bpf"

	"github.com/cilium/ebpf/perf"
	"go.uber.org/zap"
)

// Reader is the part of *perf.Reader the stream consumes.
type Reader interface {
	Read() (perf.Record, error)
	Close() error
}

// Handler consumes decoded capture events. Each event is handled once,
// independently of every other event.
type Handler interface {
	HandleCapture(event *bpf.CaptureEvent) error
}

// Stream reads events from a perf reader and dispatches them to a handler.
type Stream struct {
	reader  Reader
	handler Handler
	logger  *zap.Logger
	done    chan struct{}
	lost    atomic.Uint64
	handled atomic.Uint64
}

// New creates a new Stream with the given reader and event handler.
func New(reader Reader, handler Handler, logger *zap.Logger) *Stream {
	return &Stream{
		reader:  reader,
		handler: handler,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// Start begins reading events in a goroutine and returns immediately.
// Processing ends when the context is cancelled or Stop is called.
func (s *Stream) Start(ctx context.Context) {
	go func() {
		<-ctx.Done()
		_ = s.reader.Close() //nolint:errcheck // Unblocks Read; Stop reports close errors
	}()
	go s.processEvents()
}

// Stop closes the reader and waits for the event loop to finish.
func (s *Stream) Stop() error {
	err := s.reader.Close()
	<-s.done
	if errors.Is(err, perf.ErrClosed) {
		return nil
	}
	return err
}

// Done is closed once the event loop has exited.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Lost returns the number of samples the kernel dropped so far.
func (s *Stream) Lost() uint64 {
	return s.lost.Load()
}

// Handled returns the number of events passed to the handler so far.
func (s *Stream) Handled() uint64 {
	return s.handled.Load()
}

func (s *Stream) processEvents() {
	defer close(s.done)

	for {
		record, err := s.reader.Read()
		if err != nil {
			if errors.Is(err, perf.ErrClosed) {
				return
			}
			s.logger.Warn("reading from perf buffer", zap.Error(err))
			continue
		}

		if record.LostSamples > 0 {
			s.lost.Add(record.LostSamples)
			s.logger.Warn("capture events dropped", zap.Uint64("lost", record.LostSamples), zap.Int("cpu", record.CPU))
			continue
		}

		event, err := bpf.DecodeCaptureEvent(record.RawSample)
		if err != nil {
			s.logger.Warn("parsing capture event", zap.Error(err))
			continue
		}

		s.handled.Add(1)
		if err := s.handler.HandleCapture(event); err != nil {
			s.logger.Warn("handling capture event", zap.Uint32("pid", event.Pid), zap.Error(err))
		}
	}
}
