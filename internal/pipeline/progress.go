package pipeline

import (
	"context"
	"sync"
	"time"

	"tickpulse/pkg/contracts/events"
)

// Stage ids in execution order
const (
	StageLoad     = "load"
	StageFeatures = "features"
	StageResample = "resample"
	StageRolling  = "rolling"
	StageStats    = "stats"
	StageOutliers = "outliers"
	StageHeatmap  = "heatmap"
	StageWrite    = "write"
)

// Stages lists every stage a run with a writer goes through
var Stages = []string{
	StageLoad, StageFeatures,
	StageResample, StageRolling, StageStats, StageOutliers, StageHeatmap,
	StageWrite,
}

// Observer receives a snapshot after every stage transition. Calls are
// serialized and arrive in transition order, so Observe must not block.
type Observer interface {
	Observe(ctx context.Context, snapshot events.RunSnapshot)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(ctx context.Context, snapshot events.RunSnapshot)

// Observe calls f
func (f ObserverFunc) Observe(ctx context.Context, snapshot events.RunSnapshot) {
	f(ctx, snapshot)
}

// tracker owns the mutable run state behind the snapshots
type tracker struct {
	mu       sync.Mutex
	run      events.RunSnapshot
	index    map[string]int
	observer Observer
	now      func() time.Time
}

func newTracker(runID, source string, stages []string, observer Observer) *tracker {
	t := &tracker{
		index:    make(map[string]int, len(stages)),
		observer: observer,
		now:      time.Now,
	}
	started := t.now()
	t.run = events.RunSnapshot{
		RunID:     runID,
		Source:    source,
		Status:    events.StatusRunning,
		Stages:    make([]events.StageSnapshot, len(stages)),
		StartedAt: started,
		UpdatedAt: started,
	}
	for i, id := range stages {
		t.index[id] = i
		t.run.Stages[i] = events.StageSnapshot{ID: id, Status: events.StatusPending}
	}
	return t
}

func (t *tracker) start(ctx context.Context, stage string) {
	t.update(ctx, func(run *events.RunSnapshot) {
		run.CurrentStage = stage
		if i, ok := t.index[stage]; ok {
			run.Stages[i].Status = events.StatusRunning
		}
	})
}

func (t *tracker) finish(ctx context.Context, stage string, took time.Duration, meta map[string]interface{}, err error) {
	t.update(ctx, func(run *events.RunSnapshot) {
		i, ok := t.index[stage]
		if !ok {
			return
		}
		st := &run.Stages[i]
		st.Duration = took
		st.Metadata = meta
		if err != nil {
			st.Status = events.StatusFailed
			st.Error = err.Error()
			return
		}
		st.Status = events.StatusCompleted
	})
}

// complete closes the run; stages that never started are marked skipped
func (t *tracker) complete(ctx context.Context, err error) {
	t.update(ctx, func(run *events.RunSnapshot) {
		done := t.now()
		run.CompletedAt = &done
		run.CurrentStage = ""
		run.Status = events.StatusCompleted
		if err != nil {
			run.Status = events.StatusFailed
			run.Error = err.Error()
		}
		for i := range run.Stages {
			if run.Stages[i].Status == events.StatusPending {
				run.Stages[i].Status = events.StatusSkipped
			}
		}
	})
}

func (t *tracker) update(ctx context.Context, mutate func(run *events.RunSnapshot)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	mutate(&t.run)
	t.run.UpdatedAt = t.now()
	t.run.Progress = progressOf(t.run.Stages)
	if t.observer != nil {
		t.observer.Observe(ctx, t.snapshotLocked())
	}
}

func (t *tracker) snapshot() events.RunSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *tracker) snapshotLocked() events.RunSnapshot {
	snap := t.run
	snap.Stages = append([]events.StageSnapshot(nil), t.run.Stages...)
	return snap
}

// progressOf is the share of stages that reached a final state
func progressOf(stages []events.StageSnapshot) int {
	if len(stages) == 0 {
		return 100
	}
	done := 0
	for _, s := range stages {
		switch s.Status {
		case events.StatusCompleted, events.StatusFailed, events.StatusSkipped:
			done++
		}
	}
	return done * 100 / len(stages)
}
