// Package bpfloader attaches the TLS write capture program to user-space libraries.
package bpfloader

import (
	"errors"
	"fmt"
	"os"

	"github.com/opensourceways/sbom-tracer/internal/bpf"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/link"
	"github.com/cilium/ebpf/perf"
	"github.com/cilium/ebpf/rlimit"
	"go.uber.org/zap"
)

// ErrNoAttachment is returned when no capture point could be installed with any strategy.
var ErrNoAttachment = errors.New("no TLS write function could be instrumented")

// perfPagesPerCPU sizes each per-CPU perf ring. Overflow drops samples in
// the kernel; the writer is never blocked.
const perfPagesPerCPU = 256

// Target is a (library, symbol) pair carrying application data into TLS.
type Target struct {
	Library string
	Symbol  string
}

func (t Target) String() string { return t.Library + ":" + t.Symbol }

// DefaultTargets are the write entry points of the common TLS libraries.
var DefaultTargets = []Target{
	{Library: "ssl", Symbol: "SSL_write"},
	{Library: "gnutls", Symbol: "gnutls_record_send"},
	{Library: "nspr4", Symbol: "PR_Write"},
	{Library: "nspr4", Symbol: "PR_Send"},
}

// strategies are the buffer copy variants, tried in order. The legacy
// helper exists on kernels that predate bpf_probe_read_user.
var strategies = []string{bpf.ProgramUserRead, bpf.ProgramLegacyRead}

// Loader manages the lifecycle of the capture program and its uprobes.
type Loader struct {
	logger  *zap.Logger
	resolve func(name string) (string, error)
	load    func(program string) (*bpf.Objects, error)
	uprobe  func(path, symbol string, prog *ebpf.Program) (link.Link, error)

	objs     *bpf.Objects
	links    []link.Link
	strategy string
}

// New creates a Loader for the embedded capture program.
func New(logger *zap.Logger) (*Loader, error) {
	if err := rlimit.RemoveMemlock(); err != nil {
		return nil, fmt.Errorf("removing memlock limit: %w", err)
	}
	return &Loader{
		logger:  logger,
		resolve: ResolveLibrary,
		load:    loadStrategy,
		uprobe:  attachUprobe,
	}, nil
}

func loadStrategy(program string) (*bpf.Objects, error) {
	return bpf.LoadObjects(program, nil)
}

func attachUprobe(path, symbol string, prog *ebpf.Program) (link.Link, error) {
	ex, err := link.OpenExecutable(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return ex.Uprobe(symbol, prog, nil)
}

// Attach installs a uprobe on every target it can.
//
// Missing libraries and symbols are skipped. A strategy is kept as soon as
// one attachment succeeds with it; only when every target fails under every
// strategy is ErrNoAttachment returned.
func (l *Loader) Attach(targets []Target) error {
	var errs []error
	for _, strategy := range strategies {
		objs, err := l.load(strategy)
		if err != nil {
			l.logger.Warn("capture strategy unavailable", zap.String("strategy", strategy), zap.Error(err))
			errs = append(errs, err)
			continue
		}

		links := l.attachAll(objs, targets)
		if len(links) > 0 {
			l.objs = objs
			l.links = links
			l.strategy = strategy
			l.logger.Info("capture points attached",
				zap.String("strategy", strategy),
				zap.Int("attached", len(links)),
				zap.Int("targets", len(targets)))
			return nil
		}

		if err := objs.Close(); err != nil {
			l.logger.Warn("closing unused capture objects", zap.Error(err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrNoAttachment, errors.Join(errs...))
	}
	return ErrNoAttachment
}

func (l *Loader) attachAll(objs *bpf.Objects, targets []Target) []link.Link {
	var links []link.Link
	for _, target := range targets {
		path, err := l.resolve(target.Library)
		if err != nil {
			l.logger.Debug("library not found", zap.Stringer("target", target), zap.Error(err))
			continue
		}

		lk, err := l.uprobe(path, target.Symbol, objs.Program)
		if err != nil {
			l.logger.Debug("attaching uprobe", zap.Stringer("target", target), zap.String("path", path), zap.Error(err))
			continue
		}

		l.logger.Debug("uprobe attached", zap.Stringer("target", target), zap.String("path", path))
		links = append(links, lk)
	}
	return links
}

// Strategy returns the buffer copy variant in use, empty before Attach.
func (l *Loader) Strategy() string {
	return l.strategy
}

// OpenPerfReader opens a reader on the capture event channel.
func (l *Loader) OpenPerfReader() (*perf.Reader, error) {
	if l.objs == nil {
		return nil, errors.New("capture program is not attached")
	}
	rd, err := perf.NewReader(l.objs.Events, perfPagesPerCPU*os.Getpagesize())
	if err != nil {
		return nil, fmt.Errorf("opening perf reader: %w", err)
	}
	return rd, nil
}

// Close releases all uprobes and the loaded program.
func (l *Loader) Close() error {
	var errs []error

	for _, lk := range l.links {
		if err := lk.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing uprobe link: %w", err))
		}
	}
	l.links = nil

	if l.objs != nil {
		if err := l.objs.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing capture objects: %w", err))
		}
		l.objs = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during cleanup: %w", errors.Join(errs...))
	}
	return nil
}
