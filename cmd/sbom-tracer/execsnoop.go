package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/opensourceways/sbom-tracer/internal/execsnoop"
	"github.com/opensourceways/sbom-tracer/internal/jsonl"
	"github.com/opensourceways/sbom-tracer/internal/logging"
	"github.com/opensourceways/sbom-tracer/internal/procmeta"
)

var execsnoopFlags struct {
	taskID string
}

var execsnoopCmd = &cobra.Command{
	Use:   "execsnoop",
	Short: "Print every exec on the host as JSON lines (daemon)",
	Args:  cobra.NoArgs,
	RunE:  runExecsnoop,
}

func init() {
	rootCmd.AddCommand(execsnoopCmd)
	addTaskIDFlag(execsnoopCmd, &execsnoopFlags.taskID)
}

func runExecsnoop(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := daemonLogger(cfg, "execsnoop", execsnoopFlags.taskID)
	if err != nil {
		return err
	}
	defer logging.Sync(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	table, err := procmeta.NewTable()
	if err != nil {
		return err
	}
	procs, err := procmeta.NewManager(table, procmeta.DefaultCacheSize)
	if err != nil {
		return err
	}
	sock, err := execsnoop.Subscribe()
	if err != nil {
		return err
	}

	logger.Info("listening for exec events")
	return execsnoop.New(sock, procs, jsonl.NewWriter(os.Stdout), logger).Run(ctx)
}
