// Package cmd implements the CLI commands using cobra.
package cmd

import (
	"github.com/spf13/cobra"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "upflow",
	Short: "Upflow - 4G/5G user-plane packet inspection and routing core",
	Long: `Upflow observes S1AP signalling to learn subscriber GTPv1-U tunnels
and routes user-plane IPv4 traffic into them.

It captures frames from a live interface or replays them from a pcap
file, dissects Ethernet/IPv4/UDP/TCP/SCTP/GTPv1-U, correlates Initial
Context Setup exchanges into a UE map, and encapsulates matching
downstream packets toward the right eNB or EPC endpoint.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called once from main.main().
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c",
		"/etc/upflow/config.yaml", "config file path")
}
