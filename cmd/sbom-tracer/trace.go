package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/opensourceways/sbom-tracer/internal/analyzer"
	"github.com/opensourceways/sbom-tracer/internal/attributes"
	"github.com/opensourceways/sbom-tracer/internal/config"
	"github.com/opensourceways/sbom-tracer/internal/logging"
	"github.com/opensourceways/sbom-tracer/internal/orchestrator"
	"github.com/opensourceways/sbom-tracer/internal/otel"
	"github.com/opensourceways/sbom-tracer/internal/procmeta"
	"github.com/opensourceways/sbom-tracer/internal/session"
)

var traceFlags struct {
	shell     string
	workspace string
	task      string
	commands  string
	attrs     []string
	traceID   string
}

var traceCmd = &cobra.Command{
	Use:   "trace",
	Short: "Run a shell command under the tracer",
	Long: `Run a shell command with the capture daemons attached, then analyze
what it executed and package the results under <workspace>/<task>.

The command's exit code becomes sbom-tracer's exit code.`,
	Example: `  sbom-tracer trace -s "git clone https://github.com/org/repo.git && cd repo && mvn package"`,
	Args:    cobra.NoArgs,
	RunE:    runTrace,
}

func init() {
	rootCmd.AddCommand(traceCmd)

	traceCmd.Flags().StringVarP(&traceFlags.shell, "shell", "s", "", "shell text to run")
	traceCmd.Flags().StringVarP(&traceFlags.workspace, "workspace", "w", "", "workspace root, env: SBOM_TRACER_WORKSPACE")
	traceCmd.Flags().StringVarP(&traceFlags.task, "task", "t", "", "task id (default: current unix time with microseconds)")
	traceCmd.Flags().StringVarP(&traceFlags.commands, "commands", "c", "", "command table YAML (default: built in)")
	traceCmd.Flags().StringArrayVarP(&traceFlags.attrs, "attribute", "a", nil, "session span attribute as name=expression (repeatable)")
	traceCmd.Flags().StringVar(&traceFlags.traceID, "trace-id", "", "expression giving the trace id session spans join")
	_ = traceCmd.MarkFlagRequired("shell") //nolint:errcheck // Flag registered above
}

func runTrace(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if traceFlags.workspace != "" {
		cfg.Workspace = traceFlags.workspace
	}
	taskID := traceFlags.task
	if taskID == "" {
		taskID = config.NewTaskID(time.Now())
	}

	shellDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("resolving current directory: %w", err)
	}
	sess := session.New(cfg.Workspace, taskID, shellDir)
	if err := os.MkdirAll(sess.Dir(), 0o755); err != nil {
		return fmt.Errorf("creating task directory: %w", err)
	}

	logger, err := logging.New(logging.Config{Level: cfg.LogLevel, File: sess.LogFile()})
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer logging.Sync(logger)

	commands, err := config.LoadCommandTable(traceFlags.commands)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	otelCfg, err := config.ParseOTELConfig()
	if err != nil {
		return err
	}
	provider, err := otel.InitProvider(ctx, otelCfg, version, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("flushing session spans", zap.Error(err))
		}
	}()

	spanAttrs, parent, err := sessionSpans(attributes.Input{
		TaskID: taskID,
		Shell:  traceFlags.shell,
		Dir:    shellDir,
		Env:    attributes.Environ(os.Environ()),
	}, logger)
	if err != nil {
		return err
	}

	table, err := procmeta.NewTable()
	if err != nil {
		return err
	}
	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locating own executable: %w", err)
	}

	sudo := cfg.UseSudo(os.Geteuid())
	if sudo {
		if err := refreshSudo(ctx); err != nil {
			return err
		}
	}

	// The shell shares our terminal; interrupts are for it, teardown still runs.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		for sig := range sigCh {
			logger.Info("signal received, waiting for shell", zap.String("signal", sig.String()))
		}
	}()

	logger.Info("starting trace",
		logging.Dir(shellDir),
		zap.String("workspace", cfg.Workspace),
		zap.Bool("sudo", sudo))

	o := orchestrator.New(sess,
		orchestrator.Options{
			Shell:        traceFlags.shell,
			Warmup:       cfg.Warmup,
			StopInterval: cfg.StopInterval,
			StopRounds:   cfg.StopRounds,
		},
		orchestrator.Deps{
			Launcher: &orchestrator.ExecLauncher{
				Self:     self,
				Sudo:     sudo,
				TaskID:   taskID,
				TraceDir: sess.TraceDataDir(),
				Extra:    []string{"--log-level", cfg.LogLevel},
			},
			Finder:         table,
			Signaller:      orchestrator.KillSignaller{Sudo: sudo},
			Shell:          orchestrator.BashRunner{},
			Commands:       commands,
			Analyzers:      analyzer.Default(),
			Runner:         analyzer.ExecRunner{},
			Tracer:         provider.Tracer("sbom-tracer"),
			SpanAttributes: spanAttrs,
			Parent:         parent,
		},
		logger)

	res, err := o.Run(ctx)
	if err != nil {
		logger.Error("trace failed", zap.String("state", res.State.String()), zap.Error(err))
		return &exitError{code: 1, err: err}
	}
	logger.Info("trace finished", logging.Path(res.Archive), zap.Int("exit_code", res.ExitCode))
	if res.ExitCode != 0 {
		return &exitError{code: res.ExitCode}
	}
	return nil
}

// sessionSpans evaluates the user's span attribute and trace id expressions.
func sessionSpans(in attributes.Input, logger *zap.Logger) ([]attribute.KeyValue, trace.SpanContext, error) {
	defs, err := attributes.ParseDefinitions(traceFlags.attrs)
	if err != nil {
		return nil, trace.SpanContext{}, err
	}
	evaluator, err := attributes.NewEvaluator(defs, logger)
	if err != nil {
		return nil, trace.SpanContext{}, err
	}
	traceIDs, err := attributes.NewTraceIDEvaluator(traceFlags.traceID)
	if err != nil {
		return nil, trace.SpanContext{}, err
	}

	attrs := evaluator.Evaluate(in)
	traceID, extra, err := traceIDs.Evaluate(in)
	if err != nil {
		return nil, trace.SpanContext{}, err
	}
	return append(attrs, extra...), attributes.SessionParent(traceID, in.TaskID), nil
}

// refreshSudo prompts for credentials once so the daemons can use sudo -n.
func refreshSudo(ctx context.Context) error {
	c := exec.CommandContext(ctx, "sudo", "-v")
	c.Stdin = os.Stdin
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	if err := c.Run(); err != nil {
		return fmt.Errorf("acquiring sudo credentials: %w", err)
	}
	return nil
}
