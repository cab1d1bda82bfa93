// Command tickpulse turns quote ticks into a market microstructure report
// and serves the live report API and daily dashboard.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"tickpulse/internal/config"
	"tickpulse/internal/infrastructure"
)

// rootOptions are the flags shared by every command
type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "tickpulse",
		Short: "Market microstructure analytics for quote ticks",
		Long: `tickpulse loads bid/ask quote ticks from CSV, TSV, XLSX or Parquet files,
computes spreads, resampled volatility, rolling statistics, spread outliers
and an intraday heatmap, and writes the result as an XLSX workbook or a CSV
bundle. The serve command exposes the same pipeline over HTTP with live
progress on a websocket, plus a daily OHLCV dashboard.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to a YAML config file (default: tickpulse.yaml or configs/tickpulse.yaml)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override the log level (debug|info|warn|error)")

	cmd.AddCommand(newReportCmd(opts), newServeCmd(opts), newVersionCmd())
	return cmd
}

// load reads the configuration and installs the global logger
func (o *rootOptions) load() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, err
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
		if err := cfg.Validate(); err != nil {
			return nil, nil, err
		}
	}
	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, logger, nil
}

func main() {
	err := newRootCmd().Execute()
	infrastructure.CloseLogFile()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
