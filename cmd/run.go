package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"firestige.xyz/upflow/internal/config"
	"firestige.xyz/upflow/internal/core"
	"firestige.xyz/upflow/internal/log"
	"firestige.xyz/upflow/internal/metrics"
	"firestige.xyz/upflow/internal/rawsock"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Capture from a live interface and route user-plane traffic",
	Long: `Run captures frames from the configured interface, learns subscriber
tunnels from S1AP signalling, and encapsulates matching traffic toward
the configured output.

Examples:
  upflow run -c /etc/upflow/config.yaml
  UPFLOW_LOG_LEVEL=debug upflow run -c config.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		loader, err := config.NewLoader(configFile)
		if err != nil {
			return err
		}
		cfg, err := loader.Config()
		if err != nil {
			return err
		}
		logger, err := log.Init(cfg.Log)
		if err != nil {
			return err
		}
		if cfg.Capture.Interface == "" {
			return fmt.Errorf("%w: capture.interface is required for run", core.ErrConfigInvalid)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if cfg.Metrics.Enabled {
			srv := metrics.NewServer(cfg.Metrics.Listen, cfg.Metrics.Path)
			if err := srv.Start(ctx); err != nil {
				return err
			}
			defer srv.Stop(context.Background())
		}

		src, err := rawsock.NewAFPacketSource(rawsock.CaptureConfig{
			Interface:    cfg.Capture.Interface,
			SnapLen:      cfg.Capture.SnapLen,
			BufferSizeMB: cfg.Capture.BufferSizeMB,
			TimeoutMs:    cfg.Capture.TimeoutMs,
			FanoutID:     cfg.Capture.FanoutID,
			BPFFilter:    cfg.Capture.BPFFilter,
		})
		if err != nil {
			return err
		}
		defer src.Close()

		eng, err := newEngine(cfg, logger)
		if err != nil {
			return err
		}
		defer eng.Close()

		loader.Watch(logger, eng.ApplyConfig)

		logger.Info("capturing", "interface", cfg.Capture.Interface,
			"filter", cfg.Capture.BPFFilter, "output", cfg.Output.Mode)
		if err := eng.Run(ctx, src); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		logger.Info("shutting down")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
