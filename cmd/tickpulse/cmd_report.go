package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"tickpulse/internal/config"
	"tickpulse/internal/infrastructure"
	"tickpulse/internal/pipeline"
	"tickpulse/internal/report"
	"tickpulse/internal/tickdata"
	"tickpulse/pkg/contracts"
	"tickpulse/pkg/contracts/events"
)

type reportOptions struct {
	output      string
	format      string
	charts      bool
	freq        time.Duration
	window      int
	z           float64
	hoursPerDay float64
	fillEmpty   bool
	quiet       bool
}

func newReportCmd(root *rootOptions) *cobra.Command {
	opts := &reportOptions{}
	cmd := &cobra.Command{
		Use:   "report <ticks-file>",
		Short: "Build a microstructure report from a tick file",
		Long: `Load a tick file (.csv, .tsv, .xlsx or .parquet with columns symbol,
timestamp, bid, ask, size), run every analyzer and write the report.

Flags override the configuration file and TICKPULSE_* environment variables.

Examples:
  tickpulse report ticks.csv
  tickpulse report ticks.parquet --freq 5m --window 60 -o out/report.xlsx
  tickpulse report ticks.xlsx --format csv -o out/bundle`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(cmd, root, opts, args[0])
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.output, "output", "o", "", "Report path; the CSV bundle uses it without extension as a directory")
	f.StringVar(&opts.format, "format", "", "Report format (xlsx|csv)")
	f.BoolVar(&opts.charts, "charts", true, "Add spread and mid line charts to the workbook")
	f.DurationVar(&opts.freq, "freq", 0, "Resample bucket width, e.g. 1m or 30s")
	f.IntVar(&opts.window, "window", 0, "Rolling window length in ticks")
	f.Float64Var(&opts.z, "z", 0, "Outlier threshold in standard deviations")
	f.Float64Var(&opts.hoursPerDay, "hours-per-day", 0, "Trading hours per day used to annualize volatility")
	f.BoolVar(&opts.fillEmpty, "fill-empty", false, "Emit buckets without ticks")
	f.BoolVarP(&opts.quiet, "quiet", "q", false, "Do not print stage progress")
	return cmd
}

// apply overlays the flags the user set on cfg
func (o *reportOptions) apply(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("output") {
		cfg.Report.Output = o.output
	}
	if changed("format") {
		cfg.Report.Format = o.format
	}
	if changed("charts") {
		cfg.Report.Charts = o.charts
	}
	if changed("freq") {
		cfg.Pipeline.Freq = o.freq
	}
	if changed("window") {
		cfg.Pipeline.Window = o.window
	}
	if changed("z") {
		cfg.Pipeline.Z = o.z
	}
	if changed("hours-per-day") {
		cfg.Pipeline.HoursPerDay = o.hoursPerDay
	}
	if changed("fill-empty") {
		cfg.Pipeline.FillEmptyBuckets = o.fillEmpty
	}
}

func runReport(cmd *cobra.Command, root *rootOptions, opts *reportOptions, source string) error {
	cfg, logger, err := root.load()
	if err != nil {
		return err
	}
	opts.apply(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := infrastructure.InitializeOTel(cfg.Telemetry, contracts.Version, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	defer providers.Shutdown(context.Background())

	metrics, err := infrastructure.CreatePipelineMetrics(providers.Meter)
	if err != nil {
		return fmt.Errorf("failed to create pipeline metrics: %w", err)
	}
	writer, err := report.NewWriter(cfg.Report, logger)
	if err != nil {
		return err
	}

	runnerOpts := []pipeline.Option{pipeline.WithTracer(providers.Tracer), pipeline.WithMetrics(metrics)}
	if !opts.quiet {
		runnerOpts = append(runnerOpts, pipeline.WithObserver(progressPrinter(cmd.ErrOrStderr())))
	}
	runner := pipeline.NewRunner(tickdata.NewLoader(logger), pipeline.OptionsFromConfig(cfg.Pipeline), logger, runnerOpts...)

	result, err := runner.Run(ctx, pipeline.RunRequest{Source: source, Writer: writer})
	if err != nil {
		return err
	}

	out := cfg.Report.Output
	if strings.EqualFold(cfg.Report.Format, report.FormatCSV) {
		out = report.BundleDir(out)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "report written to %s\n", out)
	fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d ticks, %d symbols, %d buckets, %d numeric anomalies in %s\n",
		result.RunID, len(result.Features), len(result.Stats), len(result.Buckets),
		result.Anomalies, result.Duration.Round(time.Millisecond))
	return nil
}

// progressPrinter writes one line per finished stage
func progressPrinter(w io.Writer) pipeline.Observer {
	printed := map[string]bool{}
	return pipeline.ObserverFunc(func(ctx context.Context, snap events.RunSnapshot) {
		for _, st := range snap.Stages {
			switch st.Status {
			case events.StatusCompleted, events.StatusFailed:
			default:
				continue
			}
			if printed[st.ID] {
				continue
			}
			printed[st.ID] = true
			fmt.Fprintf(w, "[%3d%%] %-9s %s (%s)\n", snap.Progress, st.ID, st.Status, st.Duration.Round(time.Microsecond))
		}
	})
}
