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
	"firestige.xyz/upflow/internal/dump"
	"firestige.xyz/upflow/internal/log"
	"firestige.xyz/upflow/internal/metrics"
	"firestige.xyz/upflow/internal/packetio"
	"firestige.xyz/upflow/internal/pcapio"
	"firestige.xyz/upflow/internal/pipeline"
	"firestige.xyz/upflow/internal/s1ap"
)

var replayDump bool

var replayCmd = &cobra.Command{
	Use:   "replay [pcap-file]",
	Short: "Replay a pcap file through the router",
	Long: `Replay feeds a capture file through the same dissect/correlate/route
path as live capture. The file path argument overrides replay.path
from the config.

Examples:
  upflow replay -c config.yaml trace.pcap
  upflow replay -c config.yaml --dump trace.pcap`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}
		logger, err := log.Init(cfg.Log)
		if err != nil {
			return err
		}

		path := cfg.Replay.Path
		if len(args) == 1 {
			path = args[0]
		}
		if path == "" {
			return fmt.Errorf("%w: no capture file (replay.path or argument)", core.ErrConfigInvalid)
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

		fileSrc, err := pcapio.NewEthSource(path, cfg.Replay.Repeat)
		if err != nil {
			return err
		}
		defer fileSrc.Close()
		src := packetio.NewRateLimitedSource(fileSrc, cfg.Replay.RatePPS)

		eng, err := newEngine(cfg, logger)
		if err != nil {
			return err
		}
		defer eng.Close()

		if replayDump {
			forward := eng.rt.PostIPv4
			eng.rt.PostIPv4 = func(ctx *pipeline.Context) error {
				fmt.Fprintln(cmd.OutOrStdout(), dump.Packet(ctx))
				return forward(ctx)
			}
			eng.rt.OnS1AP = func(_ *pipeline.Context, pdu *s1ap.PDU) error {
				fmt.Fprintln(cmd.OutOrStdout(), dump.S1APPDU(pdu))
				return nil
			}
		}

		logger.Info("replaying", "file", path, "repeat", cfg.Replay.Repeat,
			"rate_pps", cfg.Replay.RatePPS, "output", cfg.Output.Mode)
		if err := eng.Run(ctx, src); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		logger.Info("replay finished", "subscribers", eng.rt.UEMap().Len())
		return nil
	},
}

func init() {
	replayCmd.Flags().BoolVar(&replayDump, "dump", false,
		"print a one-line summary of each post-processed packet")
	rootCmd.AddCommand(replayCmd)
}
