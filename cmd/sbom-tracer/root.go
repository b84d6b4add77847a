package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/opensourceways/sbom-tracer/internal/config"
	"github.com/opensourceways/sbom-tracer/internal/logging"
)

var rootFlags struct {
	logLevel string
}

var rootCmd = &cobra.Command{
	Use:   "sbom-tracer",
	Short: "Trace a build and collect its dependency evidence",
	Long: `sbom-tracer runs a shell command while recording every process it
executes and every HTTP/2 request it sends over TLS. Recognised build tools
are then inspected for source revisions and build definition files, and
everything is packaged into a per-task archive.`,
	Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootFlags.logLevel, "log-level", "", "log level (debug|info|warn|error), env: SBOM_TRACER_LOG_LEVEL")
}

// exitError carries a process exit code through cobra.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// Execute runs the root command and returns the process exit code.
func Execute() int {
	return exitCode(rootCmd.Execute())
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exit *exitError
	if errors.As(err, &exit) {
		if exit.err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", exit.err)
		}
		return exit.code
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	return 1
}

// loadConfig reads the environment and applies explicit root flags on top.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = rootFlags.logLevel
	}
	return cfg, nil
}

// daemonLogger logs to stderr only; the orchestrator keeps it as <daemon>.err.
func daemonLogger(cfg *config.Config, name, taskID string) (*zap.Logger, error) {
	logger, err := logging.New(logging.Config{Level: cfg.LogLevel})
	if err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	return logger.With(logging.Component(name), logging.TaskID(taskID)), nil
}

// addTaskIDFlag registers the ownership tag every daemon carries on its command line.
func addTaskIDFlag(cmd *cobra.Command, dst *string) {
	cmd.Flags().StringVar(dst, "task-id", "", "task this daemon belongs to")
	_ = cmd.MarkFlagRequired("task-id") //nolint:errcheck // Flag registered above
}
