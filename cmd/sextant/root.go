package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"bearing-hq/sextant/pkg/cli"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "sextant",
	Short: "Sextant - self-tuning request router",
	Long: `Sextant routes each incoming request to the best of several candidate
processing backends ("arms") under uncertainty about their quality, latency,
and cost. It learns from reported outcomes online instead of from a fixed
offline model.

It provides:
  - Interchangeable bandit policies behind one select/update contract
  - Cost-aware utility ranking with a hard quality floor
  - Shadow-mode policy evaluation on live traffic
  - Automatic rollback of variants that regress quality, latency, or cost
  - Best-effort policy state checkpointing and a decision audit trail`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.ExitCode(err))
	}
}

func init() {
	// Global persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
