package pipeline

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"tickpulse/internal/errors"
	"tickpulse/internal/infrastructure"
	"tickpulse/internal/microstructure"
	"tickpulse/internal/shared/testutil"
	"tickpulse/pkg/contracts/domain"
	"tickpulse/pkg/contracts/events"
)

type stubLoader struct {
	ticks []domain.Tick
	err   error
	paths []string
}

func (l *stubLoader) Load(ctx context.Context, path string) ([]domain.Tick, error) {
	l.paths = append(l.paths, path)
	return l.ticks, l.err
}

type recordingWriter struct {
	got *Result
	err error
}

func (w *recordingWriter) Write(ctx context.Context, result *Result) error {
	w.got = result
	return w.err
}

type snapshotLog struct {
	mu    sync.Mutex
	snaps []events.RunSnapshot
}

func (s *snapshotLog) Observe(ctx context.Context, snap events.RunSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps = append(s.snaps, snap)
}

func (s *snapshotLog) last() events.RunSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snaps[len(s.snaps)-1]
}

func stageStatus(snap events.RunSnapshot) map[string]string {
	out := make(map[string]string, len(snap.Stages))
	for _, s := range snap.Stages {
		out[s.ID] = s.Status
	}
	return out
}

func TestRunMatchesSequentialAnalyzers(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	loader := &stubLoader{ticks: testutil.SampleTicks()}
	runner := NewRunner(loader, DefaultOptions(), logger)

	result, err := runner.Run(context.Background(), RunRequest{Source: "ticks.csv"})
	require.NoError(t, err)

	features := microstructure.AddFeatures(testutil.SampleTicks())
	buckets, err := microstructure.ResampleAgg(features, microstructure.ResampleOptions{Freq: time.Minute})
	require.NoError(t, err)
	rolling, err := microstructure.RollingMetrics(features, microstructure.DefaultWindow)
	require.NoError(t, err)

	assert.Equal(t, []string{"ticks.csv"}, loader.paths)
	assert.Equal(t, features, result.Features)
	assert.Equal(t, buckets, result.Buckets)
	assert.Len(t, result.Rolling, len(rolling))
	assert.Equal(t, microstructure.DistributionStats(features), result.Stats)
	assert.Equal(t, microstructure.DetectOutliers(features, microstructure.DefaultZ), result.Outliers)
	assert.Equal(t, microstructure.MinuteHeatmap(features), result.Heatmap)
	assert.Equal(t, []string{"AAPL", "MSFT"}, result.Symbols())
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, "ticks.csv", result.Source)
}

func TestRunUsesContextTraceID(t *testing.T) {
	logger, handler := testutil.NewTestLogger(t)
	runner := NewRunner(&stubLoader{ticks: testutil.SampleTicks()}, DefaultOptions(), logger)

	ctx := infrastructure.WithTraceID(context.Background(), "run-123")
	result, err := runner.Run(ctx, RunRequest{Source: "x.csv"})
	require.NoError(t, err)

	assert.Equal(t, "run-123", result.RunID)
	testutil.AssertLogContains(t, handler, slog.LevelInfo, "pipeline run completed")
	testutil.AssertNoErrors(t, handler)
}

func TestRunReportsProgress(t *testing.T) {
	observed := &snapshotLog{}
	writer := &recordingWriter{}
	runner := NewRunner(&stubLoader{ticks: testutil.SampleTicks()}, DefaultOptions(), nil, WithObserver(observed))

	result, err := runner.Run(context.Background(), RunRequest{Source: "x.csv", Writer: writer})
	require.NoError(t, err)
	assert.Same(t, result, writer.got)

	final := observed.last()
	assert.Equal(t, events.StatusCompleted, final.Status)
	assert.Equal(t, 100, final.Progress)
	assert.NotNil(t, final.CompletedAt)
	assert.Equal(t, result.RunID, final.RunID)
	require.Len(t, final.Stages, len(Stages))
	for id, status := range stageStatus(final) {
		assert.Equal(t, events.StatusCompleted, status, "stage %s", id)
	}

	prev := -1
	for _, snap := range observed.snaps {
		assert.GreaterOrEqual(t, snap.Progress, prev, "progress never goes backwards")
		prev = snap.Progress
	}
}

func TestRunWithoutWriterSkipsWriteStage(t *testing.T) {
	observed := &snapshotLog{}
	runner := NewRunner(&stubLoader{ticks: testutil.SampleTicks()}, DefaultOptions(), nil)

	_, err := runner.Run(context.Background(), RunRequest{Source: "x.csv", Observer: observed})
	require.NoError(t, err)

	status := stageStatus(observed.last())
	_, ok := status[StageWrite]
	assert.False(t, ok)
	assert.Len(t, status, len(Stages)-1)
}

func TestRunFailures(t *testing.T) {
	loadErr := errors.NewSchemaError("missing required column", nil)
	writeErr := stderrors.New("disk full")

	tests := []struct {
		name        string
		loader      *stubLoader
		writer      Writer
		wantErr     error
		failedStage string
		skipped     []string
	}{
		{
			name:        "load error",
			loader:      &stubLoader{err: loadErr},
			wantErr:     loadErr,
			failedStage: StageLoad,
			skipped:     []string{StageFeatures, StageResample, StageHeatmap},
		},
		{
			name:        "write error",
			loader:      &stubLoader{ticks: testutil.SampleTicks()},
			writer:      &recordingWriter{err: writeErr},
			wantErr:     writeErr,
			failedStage: StageWrite,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			observed := &snapshotLog{}
			logger, handler := testutil.NewTestLogger(t)
			runner := NewRunner(tt.loader, DefaultOptions(), logger, WithObserver(observed))

			result, err := runner.Run(context.Background(), RunRequest{Source: "x.csv", Writer: tt.writer})
			require.Error(t, err)
			assert.Nil(t, result)
			assert.ErrorIs(t, err, tt.wantErr)

			final := observed.last()
			assert.Equal(t, events.StatusFailed, final.Status)
			assert.NotEmpty(t, final.Error)
			status := stageStatus(final)
			assert.Equal(t, events.StatusFailed, status[tt.failedStage])
			for _, s := range tt.skipped {
				assert.Equal(t, events.StatusSkipped, status[s], "stage %s", s)
			}
			testutil.AssertLogContains(t, handler, slog.LevelError, "pipeline run failed")
		})
	}

	t.Run("schema kind survives wrapping", func(t *testing.T) {
		runner := NewRunner(&stubLoader{err: loadErr}, DefaultOptions(), nil)
		_, err := runner.Run(context.Background(), RunRequest{Source: "x.csv"})
		assert.True(t, errors.IsSchemaError(err))
	})
}

func TestRunRejectsInvalidOptions(t *testing.T) {
	loader := &stubLoader{ticks: testutil.SampleTicks()}
	runner := NewRunner(loader, DefaultOptions(), nil)

	tests := []struct {
		name   string
		mutate func(*Options)
	}{
		{"zero freq", func(o *Options) { o.Freq = 0 }},
		{"zero window", func(o *Options) { o.Window = 0 }},
		{"zero z", func(o *Options) { o.Z = 0 }},
		{"long day", func(o *Options) { o.Calendar.HoursPerDay = 25 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			tt.mutate(&opts)
			_, err := runner.Run(context.Background(), RunRequest{Source: "x.csv", Options: &opts})
			require.Error(t, err)
			assert.True(t, errors.IsValidationError(err))
		})
	}
	assert.Empty(t, loader.paths, "nothing is loaded with bad options")
}

func TestRunOptionOverrides(t *testing.T) {
	runner := NewRunner(&stubLoader{ticks: testutil.SampleTicks()}, DefaultOptions(), nil)

	opts := DefaultOptions()
	opts.Freq = time.Hour
	result, err := runner.Run(context.Background(), RunRequest{Source: "x.csv", Options: &opts})
	require.NoError(t, err)

	assert.Len(t, result.Buckets, 2, "one hourly bucket per symbol")
	assert.Equal(t, time.Hour, result.Options.Freq)
}

func TestRunEmptyInput(t *testing.T) {
	runner := NewRunner(&stubLoader{}, DefaultOptions(), nil)

	result, err := runner.Run(context.Background(), RunRequest{Source: "empty.csv"})
	require.NoError(t, err)
	assert.Empty(t, result.Features)
	assert.Empty(t, result.Buckets)
	assert.Empty(t, result.Stats)
	assert.True(t, result.Heatmap.IsEmpty())
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := NewRunner(&stubLoader{ticks: testutil.SampleTicks()}, DefaultOptions(), nil)
	_, err := runner.Run(ctx, RunRequest{Source: "x.csv"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunLogsAnomalies(t *testing.T) {
	logger, handler := testutil.NewTestLogger(t)
	ticks := []domain.Tick{
		testutil.Tick("Z", 0, -1, 1, 1),
		testutil.Tick("Z", time.Second, 1, 1.1, 1),
	}
	runner := NewRunner(&stubLoader{ticks: ticks}, DefaultOptions(), logger)

	result, err := runner.Run(context.Background(), RunRequest{Source: "z.csv"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Anomalies)
	testutil.AssertLogContains(t, handler, slog.LevelWarn, "non-finite spread_bps rows")
}

func TestRunSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer tp.Shutdown(context.Background())

	runner := NewRunner(&stubLoader{ticks: testutil.SampleTicks()}, DefaultOptions(), nil,
		WithTracer(tp.Tracer("test")))
	_, err := runner.Run(context.Background(), RunRequest{Source: "x.csv", Writer: &recordingWriter{}})
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, s := range recorder.Ended() {
		names[s.Name()] = true
	}
	assert.True(t, names["pipeline.run"])
	for _, stage := range Stages {
		assert.True(t, names["pipeline."+stage], "span for %s", stage)
	}
}
