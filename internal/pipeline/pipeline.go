package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"tickpulse/internal/infrastructure"
	"tickpulse/internal/microstructure"
	"tickpulse/pkg/contracts/domain"
)

// TickLoader reads a tick file
type TickLoader interface {
	Load(ctx context.Context, path string) ([]domain.Tick, error)
}

// Writer persists a finished result
type Writer interface {
	Write(ctx context.Context, result *Result) error
}

// Result holds every table a run produced
type Result struct {
	RunID     string
	Source    string
	Options   Options
	Features  []domain.Feature
	Buckets   []domain.Bucket
	Rolling   []domain.RollingFeature
	Stats     []domain.SymbolStats
	Outliers  []domain.OutlierFeature
	Heatmap   domain.Heatmap
	Anomalies int
	Duration  time.Duration
}

// Symbols returns the distinct symbols in stats order
func (r *Result) Symbols() []string {
	out := make([]string, len(r.Stats))
	for i, s := range r.Stats {
		out[i] = s.Symbol
	}
	return out
}

// Runner executes pipeline runs. It is safe for concurrent use; each Run
// works on its own data.
type Runner struct {
	loader   TickLoader
	opts     Options
	logger   *slog.Logger
	tracer   trace.Tracer
	metrics  *infrastructure.PipelineMetrics
	observer Observer
}

// Option configures a Runner
type Option func(*Runner)

// WithTracer sets the tracer used for run and stage spans
func WithTracer(tracer trace.Tracer) Option {
	return func(r *Runner) { r.tracer = tracer }
}

// WithMetrics sets the instruments runs are recorded into
func WithMetrics(m *infrastructure.PipelineMetrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithObserver sets the default progress observer
func WithObserver(o Observer) Option {
	return func(r *Runner) { r.observer = o }
}

// NewRunner creates a Runner
func NewRunner(loader TickLoader, opts Options, logger *slog.Logger, options ...Option) *Runner {
	r := &Runner{
		loader: loader,
		opts:   opts,
		logger: infrastructure.WithComponent(logger, "pipeline"),
		tracer: otel.Tracer(infrastructure.InstrumentationName),
	}
	for _, o := range options {
		o(r)
	}
	return r
}

// Options returns the options runs use unless overridden
func (r *Runner) Options() Options {
	return r.opts
}

// RunRequest describes one run
type RunRequest struct {
	Source string
	// Options overrides the runner options when non-nil
	Options *Options
	// Writer receives the result; nil skips the write stage
	Writer Writer
	// Observer overrides the runner observer when non-nil
	Observer Observer
}

// Run loads req.Source, runs every analyzer and writes the result. The run id
// is taken from the context trace id, or generated and stored there.
func (r *Runner) Run(ctx context.Context, req RunRequest) (*Result, error) {
	opts := r.opts
	if req.Options != nil {
		opts = *req.Options
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	ctx, runID := infrastructure.EnsureTraceID(ctx)
	ctx, span := r.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("run.id", runID),
		attribute.String("run.source", req.Source),
	))
	defer span.End()

	observer := r.observer
	if req.Observer != nil {
		observer = req.Observer
	}
	stages := Stages
	if req.Writer == nil {
		stages = Stages[:len(Stages)-1]
	}
	progress := newTracker(runID, req.Source, stages, observer)

	started := time.Now()
	r.logger.InfoContext(ctx, "pipeline run started",
		slog.String("run_id", runID),
		slog.String("source", req.Source),
		slog.String("freq", opts.Freq.String()),
		slog.Int("window", opts.Window),
		slog.Float64("z", opts.Z))

	result, err := r.execute(ctx, req, opts, progress)
	if result == nil {
		result = &Result{}
	}
	result.RunID = runID
	result.Source = req.Source
	result.Options = opts
	result.Duration = time.Since(started)

	progress.complete(ctx, err)
	r.metrics.RecordRun(ctx, result.Duration, len(result.Features), result.Anomalies, err)

	if err != nil {
		infrastructure.RecordError(ctx, err)
		r.logger.ErrorContext(ctx, "pipeline run failed",
			slog.String("run_id", runID),
			slog.String("error", err.Error()),
			slog.Duration("duration", result.Duration))
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("run.rows", len(result.Features)),
		attribute.Int("run.symbols", len(result.Stats)),
	)
	r.logger.InfoContext(ctx, "pipeline run completed",
		slog.String("run_id", runID),
		slog.Int("rows", len(result.Features)),
		slog.Int("symbols", len(result.Stats)),
		slog.Int("buckets", len(result.Buckets)),
		slog.Duration("duration", result.Duration))
	return result, nil
}

func (r *Runner) execute(ctx context.Context, req RunRequest, opts Options, progress *tracker) (*Result, error) {
	var ticks []domain.Tick
	err := r.stage(ctx, progress, StageLoad, func(ctx context.Context) (map[string]interface{}, error) {
		var err error
		ticks, err = r.loader.Load(ctx, req.Source)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", req.Source, err)
		}
		return map[string]interface{}{"rows": len(ticks)}, nil
	})
	if err != nil {
		return nil, err
	}

	result := &Result{}
	err = r.stage(ctx, progress, StageFeatures, func(ctx context.Context) (map[string]interface{}, error) {
		result.Features = microstructure.AddFeatures(ticks)
		result.Anomalies = microstructure.CountAnomalies(result.Features)
		return map[string]interface{}{"anomalies": result.Anomalies}, nil
	})
	if err != nil {
		return result, err
	}
	if result.Anomalies > 0 {
		r.logger.WarnContext(ctx, "non-finite spread_bps rows",
			slog.Int("count", result.Anomalies),
			slog.Int("rows", len(result.Features)))
	}

	if err := r.analyze(ctx, result, opts, progress); err != nil {
		return result, err
	}

	if req.Writer != nil {
		err = r.stage(ctx, progress, StageWrite, func(ctx context.Context) (map[string]interface{}, error) {
			return nil, req.Writer.Write(ctx, result)
		})
		if err != nil {
			return result, err
		}
	}
	return result, nil
}

// analyze fans the analyzers out over the shared feature table. Each closure
// assigns a distinct field of result.
func (r *Runner) analyze(ctx context.Context, result *Result, opts Options, progress *tracker) error {
	features := result.Features
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return r.stage(gctx, progress, StageResample, func(context.Context) (map[string]interface{}, error) {
			buckets, err := microstructure.ResampleAgg(features, opts.resample())
			result.Buckets = buckets
			return map[string]interface{}{"buckets": len(buckets)}, err
		})
	})
	g.Go(func() error {
		return r.stage(gctx, progress, StageRolling, func(context.Context) (map[string]interface{}, error) {
			rolling, err := microstructure.RollingMetrics(features, opts.Window)
			result.Rolling = rolling
			return nil, err
		})
	})
	g.Go(func() error {
		return r.stage(gctx, progress, StageStats, func(context.Context) (map[string]interface{}, error) {
			result.Stats = microstructure.DistributionStats(features)
			return map[string]interface{}{"symbols": len(result.Stats)}, nil
		})
	})
	g.Go(func() error {
		return r.stage(gctx, progress, StageOutliers, func(context.Context) (map[string]interface{}, error) {
			result.Outliers = microstructure.DetectOutliers(features, opts.Z)
			flagged := 0
			for _, o := range result.Outliers {
				if o.SpreadOutlier {
					flagged++
				}
			}
			return map[string]interface{}{"flagged": flagged}, nil
		})
	})
	g.Go(func() error {
		return r.stage(gctx, progress, StageHeatmap, func(context.Context) (map[string]interface{}, error) {
			result.Heatmap = microstructure.MinuteHeatmap(features)
			return map[string]interface{}{"minutes": len(result.Heatmap.Minutes)}, nil
		})
	})

	return g.Wait()
}

// stage runs fn inside a span, records its duration and reports progress.
// A cancelled context fails the stage before fn starts.
func (r *Runner) stage(ctx context.Context, progress *tracker, name string, fn func(context.Context) (map[string]interface{}, error)) error {
	if err := ctx.Err(); err != nil {
		progress.finish(ctx, name, 0, nil, err)
		return err
	}

	ctx, span := r.tracer.Start(ctx, "pipeline."+name)
	defer span.End()

	progress.start(ctx, name)
	started := time.Now()
	meta, err := fn(ctx)
	took := time.Since(started)

	progress.finish(ctx, name, took, meta, err)
	r.metrics.RecordStage(ctx, name, took, err)
	if err != nil {
		infrastructure.RecordError(ctx, err)
		return err
	}
	r.logger.DebugContext(ctx, "pipeline stage completed",
		slog.String("stage", name),
		slog.Duration("duration", took))
	return nil
}
