package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tickpulse/internal/config"
	"tickpulse/internal/errors"
	"tickpulse/internal/shared/testutil"
	"tickpulse/pkg/contracts/events"
)

// gateWriter blocks until release is closed or the run is cancelled
type gateWriter struct {
	release chan struct{}
	written chan *Result
}

func newGateWriter() *gateWriter {
	return &gateWriter{release: make(chan struct{}), written: make(chan *Result, 1)}
}

func (w *gateWriter) Write(ctx context.Context, result *Result) error {
	select {
	case <-w.release:
		w.written <- result
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func newTestJobs(t *testing.T, writer Writer, observer Observer) (*Jobs, *[]config.ReportConfig) {
	t.Helper()
	logger, _ := testutil.NewTestLogger(t)
	runner := NewRunner(&stubLoader{ticks: testutil.SampleTicks()}, DefaultOptions(), logger)
	var seen []config.ReportConfig
	factory := func(cfg config.ReportConfig) (Writer, error) {
		if cfg.Format == "pdf" {
			return nil, errors.NewAppValidationError("unsupported report format")
		}
		seen = append(seen, cfg)
		return writer, nil
	}
	defaults := config.ReportConfig{Output: "tick_report.xlsx", Format: "xlsx", Charts: true}
	return NewJobs(runner, factory, defaults, time.Minute, observer, logger), &seen
}

func TestJobsRunsInBackground(t *testing.T) {
	writer := newGateWriter()
	observed := &snapshotLog{}
	jobs, _ := newTestJobs(t, writer, observed)

	runID, err := jobs.Submit(context.Background(), Job{Source: "ticks.csv"})
	require.NoError(t, err)
	assert.NotEmpty(t, runID)
	assert.Equal(t, runID, jobs.Active())

	close(writer.release)
	result := <-writer.written
	assert.Equal(t, runID, result.RunID)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, jobs.Wait(ctx))

	assert.Empty(t, jobs.Active())
	last, ok := jobs.Last()
	require.True(t, ok)
	assert.Equal(t, runID, last.RunID)
	assert.Equal(t, events.StatusCompleted, last.Status)
	assert.Equal(t, last, observed.last(), "observer sees the same snapshots")
}

func TestJobsSingleFlight(t *testing.T) {
	writer := newGateWriter()
	jobs, _ := newTestJobs(t, writer, nil)

	_, err := jobs.Submit(context.Background(), Job{Source: "a.csv"})
	require.NoError(t, err)

	_, err = jobs.Submit(context.Background(), Job{Source: "b.csv"})
	assert.ErrorIs(t, err, ErrRunInProgress)

	close(writer.release)
	<-writer.written
	require.NoError(t, jobs.Wait(context.Background()))

	_, err = jobs.Submit(context.Background(), Job{Source: "c.csv"})
	require.NoError(t, err, "a finished run frees the slot")
	<-writer.written
	require.NoError(t, jobs.Wait(context.Background()))
}

func TestJobsOutlivesRequestContext(t *testing.T) {
	writer := newGateWriter()
	jobs, _ := newTestJobs(t, writer, nil)

	ctx, cancel := context.WithCancel(context.Background())
	_, err := jobs.Submit(ctx, Job{Source: "ticks.csv"})
	require.NoError(t, err)
	cancel()

	close(writer.release)
	select {
	case <-writer.written:
	case <-time.After(5 * time.Second):
		t.Fatal("run did not survive the cancelled request")
	}
	require.NoError(t, jobs.Wait(context.Background()))
}

func TestJobsRejectsBeforeStarting(t *testing.T) {
	jobs, _ := newTestJobs(t, newGateWriter(), nil)

	bad := DefaultOptions()
	bad.Window = 0
	_, err := jobs.Submit(context.Background(), Job{Source: "x.csv", Options: &bad})
	require.Error(t, err)
	assert.True(t, errors.IsValidationError(err))

	_, err = jobs.Submit(context.Background(), Job{Source: "x.csv", Format: "pdf"})
	require.Error(t, err)
	assert.True(t, errors.IsValidationError(err))

	assert.Empty(t, jobs.Active())
	_, ok := jobs.Last()
	assert.False(t, ok)
}

func TestJobsReportOverrides(t *testing.T) {
	writer := newGateWriter()
	close(writer.release)
	jobs, seen := newTestJobs(t, writer, nil)

	charts := false
	_, err := jobs.Submit(context.Background(), Job{Source: "x.csv", Output: "out/r", Format: "csv", Charts: &charts})
	require.NoError(t, err)
	<-writer.written
	require.NoError(t, jobs.Wait(context.Background()))

	_, err = jobs.Submit(context.Background(), Job{Source: "x.csv"})
	require.NoError(t, err)
	<-writer.written
	require.NoError(t, jobs.Wait(context.Background()))

	require.Len(t, *seen, 2)
	assert.Equal(t, config.ReportConfig{Output: "out/r", Format: "csv", Charts: false}, (*seen)[0])
	assert.Equal(t, config.ReportConfig{Output: "tick_report.xlsx", Format: "xlsx", Charts: true}, (*seen)[1])
}

func TestJobsStopCancelsActiveRun(t *testing.T) {
	jobs, _ := newTestJobs(t, newGateWriter(), nil)

	_, err := jobs.Submit(context.Background(), Job{Source: "ticks.csv"})
	require.NoError(t, err)

	require.NoError(t, jobs.Stop(5*time.Second))
	assert.Empty(t, jobs.Active())

	last, ok := jobs.Last()
	require.True(t, ok)
	assert.Equal(t, events.StatusFailed, last.Status)
	assert.Contains(t, last.Error, context.Canceled.Error())
}
