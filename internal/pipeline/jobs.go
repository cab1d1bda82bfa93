package pipeline

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"tickpulse/internal/config"
	"tickpulse/internal/infrastructure"
	"tickpulse/pkg/contracts/events"
)

// ErrRunInProgress is returned by Submit while another run is active
var ErrRunInProgress = stderrors.New("a report run is already in progress")

// WriterFactory builds the writer for a report destination
type WriterFactory func(cfg config.ReportConfig) (Writer, error)

// Job is one background report run. Empty report fields fall back to the
// configured defaults.
type Job struct {
	Source  string
	Output  string
	Format  string
	Charts  *bool
	Options *Options
}

// Jobs runs at most one report at a time in the background and keeps the
// latest snapshot for late readers.
type Jobs struct {
	runner   *Runner
	writers  WriterFactory
	defaults config.ReportConfig
	timeout  time.Duration
	observer Observer
	logger   *slog.Logger

	mu     sync.Mutex
	active string
	cancel context.CancelFunc
	last   *events.RunSnapshot
	wg     sync.WaitGroup
}

// NewJobs creates a job runner. observer, usually the websocket hub, gets
// every snapshot of every run; a zero timeout leaves runs unbounded.
func NewJobs(runner *Runner, writers WriterFactory, defaults config.ReportConfig, timeout time.Duration, observer Observer, logger *slog.Logger) *Jobs {
	return &Jobs{
		runner:   runner,
		writers:  writers,
		defaults: defaults,
		timeout:  timeout,
		observer: observer,
		logger:   infrastructure.WithComponent(logger, "pipeline.jobs"),
	}
}

// Submit validates job and starts it. The run outlives ctx but keeps its
// values. It returns the run id.
func (j *Jobs) Submit(ctx context.Context, job Job) (string, error) {
	if job.Options != nil {
		if err := job.Options.Validate(); err != nil {
			return "", err
		}
	}
	writer, err := j.writers(j.reportConfig(job))
	if err != nil {
		return "", err
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.active != "" {
		return "", ErrRunInProgress
	}

	runID := uuid.New().String()
	runCtx := infrastructure.WithTraceID(context.WithoutCancel(ctx), runID)
	var cancel context.CancelFunc
	if j.timeout > 0 {
		runCtx, cancel = context.WithTimeout(runCtx, j.timeout)
	} else {
		runCtx, cancel = context.WithCancel(runCtx)
	}
	j.active = runID
	j.cancel = cancel

	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		defer cancel()

		_, err := j.runner.Run(runCtx, RunRequest{
			Source:   job.Source,
			Options:  job.Options,
			Writer:   writer,
			Observer: ObserverFunc(j.observe),
		})

		j.mu.Lock()
		j.active = ""
		j.cancel = nil
		j.mu.Unlock()

		if err != nil {
			j.logger.WarnContext(runCtx, "background run ended with error",
				slog.String("run_id", runID),
				slog.String("error", err.Error()))
		}
	}()

	j.logger.InfoContext(ctx, "report run submitted",
		slog.String("run_id", runID),
		slog.String("source", job.Source))
	return runID, nil
}

func (j *Jobs) reportConfig(job Job) config.ReportConfig {
	cfg := j.defaults
	if job.Output != "" {
		cfg.Output = job.Output
	}
	if job.Format != "" {
		cfg.Format = job.Format
	}
	if job.Charts != nil {
		cfg.Charts = *job.Charts
	}
	return cfg
}

// observe runs under the tracker lock
func (j *Jobs) observe(ctx context.Context, snap events.RunSnapshot) {
	j.mu.Lock()
	j.last = &snap
	j.mu.Unlock()
	if j.observer != nil {
		j.observer.Observe(ctx, snap)
	}
}

// Active returns the id of the running job, or ""
func (j *Jobs) Active() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.active
}

// Last returns the most recent snapshot of any run
func (j *Jobs) Last() (events.RunSnapshot, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.last == nil {
		return events.RunSnapshot{}, false
	}
	return *j.last, true
}

// Wait blocks until no run is active or ctx is done
func (j *Jobs) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		j.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop cancels the active run and waits for it up to timeout
func (j *Jobs) Stop(timeout time.Duration) error {
	j.mu.Lock()
	if j.cancel != nil {
		j.cancel()
	}
	j.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return j.Wait(ctx)
}
