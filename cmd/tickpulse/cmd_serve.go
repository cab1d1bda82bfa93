package main

import (
	"github.com/spf13/cobra"

	"tickpulse/internal/app"
)

type serveOptions struct {
	port    int
	dataDir string
}

func newServeCmd(root *rootOptions) *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the report API, live progress and daily dashboard",
		Long: `Start the HTTP server.

  POST /api/v1/reports            start a report run in the background
  GET  /ws                        stage progress of report runs
  GET  /api/v1/dashboard/{ticker} indicators, regression and volatility regimes
  GET  /metrics                   Prometheus metrics

Examples:
  tickpulse serve
  tickpulse serve --port 9090 --data-dir ./daily`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := root.load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = opts.port
			}
			if cmd.Flags().Changed("data-dir") {
				cfg.Dashboard.DataDir = opts.dataDir
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			application, err := app.New(cfg, logger)
			if err != nil {
				return err
			}
			return application.Run(cmd.Context())
		},
	}

	cmd.Flags().IntVarP(&opts.port, "port", "p", 0, "Listen port")
	cmd.Flags().StringVar(&opts.dataDir, "data-dir", "", "Directory of {TICKER}.csv daily OHLCV files")
	return cmd
}
