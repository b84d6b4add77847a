package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
)

// SudoMode controls whether capture daemons are launched through sudo.
type SudoMode string

const (
	SudoAuto   SudoMode = "auto"
	SudoAlways SudoMode = "always"
	SudoNever  SudoMode = "never"
)

// Config holds the tracer settings shared by the orchestrator and daemons.
type Config struct {
	// Workspace is the root under which every task gets its own directory.
	Workspace    string        `env:"SBOM_TRACER_WORKSPACE"`
	Warmup       time.Duration `env:"SBOM_TRACER_WARMUP" envDefault:"3s"`
	StopInterval time.Duration `env:"SBOM_TRACER_STOP_INTERVAL" envDefault:"3s"`
	StopRounds   int           `env:"SBOM_TRACER_STOP_ROUNDS" envDefault:"3"`
	Sudo         SudoMode      `env:"SBOM_TRACER_SUDO" envDefault:"auto"`
	LogLevel     string        `env:"SBOM_TRACER_LOG_LEVEL" envDefault:"info"`
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse tracer config: %w", err)
	}
	if cfg.Workspace == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving default workspace: %w", err)
		}
		cfg.Workspace = filepath.Join(home, "sbom_tracer_workspace")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var errs []error
	if c.Warmup <= 0 {
		errs = append(errs, fmt.Errorf("warm-up must be positive, got %s", c.Warmup))
	}
	if c.StopInterval <= 0 {
		errs = append(errs, fmt.Errorf("stop interval must be positive, got %s", c.StopInterval))
	}
	if c.StopRounds < 0 {
		errs = append(errs, fmt.Errorf("stop rounds must not be negative, got %d", c.StopRounds))
	}
	switch c.Sudo {
	case SudoAuto, SudoAlways, SudoNever:
	default:
		errs = append(errs, fmt.Errorf("sudo mode must be auto, always or never, got %q", c.Sudo))
	}
	return errors.Join(errs...)
}

// UseSudo reports whether daemons need sudo for the given effective uid.
func (c *Config) UseSudo(euid int) bool {
	switch c.Sudo {
	case SudoAlways:
		return true
	case SudoNever:
		return false
	default:
		return euid != 0
	}
}

// NewTaskID formats t as unix seconds with microseconds, e.g. 1697461234.123456.
func NewTaskID(t time.Time) string {
	return fmt.Sprintf("%d.%06d", t.Unix(), t.Nanosecond()/int(time.Microsecond))
}
