package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/SamoraDC/marketdata/internal/adapters"
	"github.com/SamoraDC/marketdata/internal/config"
	"github.com/SamoraDC/marketdata/internal/logging"
)

var (
	fetchSymbol    string
	fetchTimeframe string
	fetchStart     string
	fetchEnd       string
	fetchTimeout   time.Duration
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch bars once and print them as JSON",
	Example: `  marketdata fetch --symbol AAPL --timeframe 1d --start 2025-01-01 --end 2025-01-31
  marketdata fetch -c config/config.yaml --symbol SPY --timeframe 1h --start 2025-06-01 --end 2025-06-02`,
	RunE: runFetch,
}

func init() {
	fetchCmd.Flags().StringVar(&fetchSymbol, "symbol", "AAPL", "ticker symbol")
	fetchCmd.Flags().StringVar(&fetchTimeframe, "timeframe", "1d", "bar interval (1m|5m|15m|1h|1d)")
	fetchCmd.Flags().StringVar(&fetchStart, "start", "", "range start (2006-01-02 or RFC3339)")
	fetchCmd.Flags().StringVar(&fetchEnd, "end", "", "range end (2006-01-02 or RFC3339)")
	fetchCmd.Flags().DurationVar(&fetchTimeout, "timeout", 30*time.Second, "overall request deadline")
	rootCmd.AddCommand(fetchCmd)
}

func parseWhen(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

func runFetch(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cmd.Context(), configPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}

	end := time.Now().UTC()
	start := end.Add(-30 * 24 * time.Hour)
	if fetchStart != "" {
		if start, err = parseWhen(fetchStart); err != nil {
			return fmt.Errorf("invalid --start: %w", err)
		}
	}
	if fetchEnd != "" {
		if end, err = parseWhen(fetchEnd); err != nil {
			return fmt.Errorf("invalid --end: %w", err)
		}
	}

	pipe, err := buildPipeline(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer pipe.close()

	ctx, cancel := context.WithTimeout(cmd.Context(), fetchTimeout)
	defer cancel()
	bars, provenance, err := pipe.service.GetBars(ctx, fetchSymbol, adapters.Timeframe(fetchTimeframe), start, end)
	if err != nil {
		return err
	}

	out := struct {
		Provenance string         `json:"provenance"`
		Count      int            `json:"count"`
		Bars       []adapters.Bar `json:"bars"`
	}{Provenance: provenance, Count: len(bars), Bars: bars}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
