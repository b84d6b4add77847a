package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/opensourceways/sbom-tracer/internal/bpfloader"
	"github.com/opensourceways/sbom-tracer/internal/eventstream"
	"github.com/opensourceways/sbom-tracer/internal/h2"
	"github.com/opensourceways/sbom-tracer/internal/jsonl"
	"github.com/opensourceways/sbom-tracer/internal/logging"
	"github.com/opensourceways/sbom-tracer/internal/procmeta"
	"github.com/opensourceways/sbom-tracer/internal/sniff"
	"github.com/opensourceways/sbom-tracer/internal/timesync"
)

var sniffFlags struct {
	taskID string
}

var sslsniffCmd = &cobra.Command{
	Use:   "sslsniff",
	Short: "Print captured TLS writes as JSON lines (daemon)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runSniffer(cmd, "sslsniff", func(out *jsonl.Writer, _ *zap.Logger) (eventstream.Handler, error) {
			clock, err := timesync.NewConverter()
			if err != nil {
				return nil, err
			}
			return sniff.NewRawDumper(out, clock), nil
		})
	},
}

var h2sniffCmd = &cobra.Command{
	Use:   "h2sniff",
	Short: "Print HTTP/2 requests reconstructed from TLS writes as JSON lines (daemon)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runSniffer(cmd, "h2sniff", func(out *jsonl.Writer, logger *zap.Logger) (eventstream.Handler, error) {
			table, err := procmeta.NewTable()
			if err != nil {
				return nil, err
			}
			return h2.NewReconstructor(out, table.ParentPID, logger), nil
		})
	},
}

func init() {
	rootCmd.AddCommand(sslsniffCmd, h2sniffCmd)
	addTaskIDFlag(sslsniffCmd, &sniffFlags.taskID)
	addTaskIDFlag(h2sniffCmd, &sniffFlags.taskID)
}

type handlerFactory func(out *jsonl.Writer, logger *zap.Logger) (eventstream.Handler, error)

func runSniffer(cmd *cobra.Command, name string, newHandler handlerFactory) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := daemonLogger(cfg, name, sniffFlags.taskID)
	if err != nil {
		return err
	}
	defer logging.Sync(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	handler, err := newHandler(jsonl.NewWriter(os.Stdout), logger)
	if err != nil {
		return err
	}
	return sniff.Run(ctx, sniff.Config{Targets: bpfloader.DefaultTargets}, handler, logger)
}
