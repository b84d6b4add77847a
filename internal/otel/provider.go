// Package otel provides OpenTelemetry tracer provider initialization and management.
package otel

import (
	"context"
	"fmt"
	"time"

	"github.com/opensourceways/sbom-tracer/internal/config"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

// Provider hands out tracers for session spans. Without a configured
// endpoint it hands out no-op tracers.
type Provider struct {
	tp *sdktrace.TracerProvider
}

// InitProvider builds a provider exporting over OTLP/HTTP when cfg names an
// endpoint.
//
// The HTTP client honors HTTP_PROXY, HTTPS_PROXY, and NO_PROXY through Go's
// standard net/http transport.
func InitProvider(ctx context.Context, cfg *config.OTELConfig, version string, logger *zap.Logger) (*Provider, error) {
	if !cfg.Enabled() {
		logger.Debug("otel export disabled")
		return &Provider{}, nil
	}

	endpoint := cfg.GetEndpoint()
	logger.Info("otel export enabled",
		zap.String("service", cfg.ServiceName),
		zap.String("endpoint", endpoint),
		zap.String("resource_attributes", cfg.ResourceAttributes),
	)

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
		otlptracehttp.WithTimeout(10*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}

	attrs := []attribute.KeyValue{
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(version),
	}
	attrs = append(attrs, cfg.ParseResourceAttributes()...)

	res, err := resource.New(ctx, resource.WithAttributes(attrs...))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	return &Provider{tp: tp}, nil
}

// Tracer returns a named tracer.
func (p *Provider) Tracer(name string) trace.Tracer {
	if p == nil || p.tp == nil {
		return noop.NewTracerProvider().Tracer(name)
	}
	return p.tp.Tracer(name)
}

// Exporting reports whether spans leave the process.
func (p *Provider) Exporting() bool {
	return p != nil && p.tp != nil
}

// Shutdown flushes remaining spans.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.tp == nil {
		return nil
	}
	if err := p.tp.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown tracer provider: %w", err)
	}
	return nil
}
