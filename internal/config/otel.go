package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
	"go.opentelemetry.io/otel/attribute"
)

// defaultOTLPEndpoint is used when only enabling export matters.
const defaultOTLPEndpoint = "localhost:4318"

// OTELConfig selects where session spans are exported, using the standard
// OTEL_* variables.
type OTELConfig struct {
	ServiceName        string `env:"OTEL_SERVICE_NAME" envDefault:"sbom-tracer"`
	ResourceAttributes string `env:"OTEL_RESOURCE_ATTRIBUTES"`
	ExporterEndpoint   string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	TracesEndpoint     string `env:"OTEL_EXPORTER_OTLP_TRACES_ENDPOINT"`
}

// ParseOTELConfig reads the OTEL_* variables.
func ParseOTELConfig() (*OTELConfig, error) {
	var cfg OTELConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse OTEL config: %w", err)
	}
	return &cfg, nil
}

// Enabled reports whether any exporter endpoint is set.
func (c *OTELConfig) Enabled() bool {
	return c.TracesEndpoint != "" || c.ExporterEndpoint != ""
}

// GetEndpoint prefers the traces-specific endpoint over the generic one.
func (c *OTELConfig) GetEndpoint() string {
	switch {
	case c.TracesEndpoint != "":
		return c.TracesEndpoint
	case c.ExporterEndpoint != "":
		return c.ExporterEndpoint
	default:
		return defaultOTLPEndpoint
	}
}

// ParseResourceAttributes splits "k1=v1,k2=v2". Entries without a key or
// without '=' are ignored.
func (c *OTELConfig) ParseResourceAttributes() []attribute.KeyValue {
	var attrs []attribute.KeyValue
	for _, pair := range strings.Split(c.ResourceAttributes, ",") {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		attrs = append(attrs, attribute.String(key, strings.TrimSpace(value)))
	}
	return attrs
}
