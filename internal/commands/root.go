package commands

import (
	"github.com/spf13/cobra"
)

var configPath string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "marketdata",
	Short: "Resilient multi-provider market data pipeline",
	Long: `Fetches price/volume bars from competing data providers with failover,
per-provider circuit breakers and token-bucket rate limits, validates the
returned data through a statistical quality pipeline, and serves it through
a three-tier cache.`,
	Version: "1.0.0",
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config yaml")
}
