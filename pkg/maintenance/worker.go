package maintenance

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"nocturne-hq/parity/pkg/analysis"
)

// State is the worker's position in its Idle -> Running -> Idle cycle.
type State int32

const (
	StateIdle State = iota
	StateRunning
)

func (s State) String() string {
	if s == StateRunning {
		return "running"
	}
	return "idle"
}

// Observer receives the outcome of every cycle that was not skipped.
// snapshot is nil when the cycle failed before a rollup was produced.
type Observer interface {
	ObserveMaintenance(err error, elapsed time.Duration, snapshot *analysis.Snapshot)
}

// Report describes a completed cycle.
type Report struct {
	StartedAt time.Time          `json:"started_at"`
	Duration  time.Duration      `json:"duration"`
	Pruned    int64              `json:"pruned"`
	Snapshot  *analysis.Snapshot `json:"snapshot"`
}

// Worker runs maintenance cycles and publishes the latest snapshot.
// Only one cycle runs at a time; snapshots are replaced, never mutated.
type Worker struct {
	storage  analysis.Storage
	pruner   *Pruner
	store    SnapshotStore
	observer Observer
	logger   *slog.Logger
	now      func() time.Time

	state  atomic.Int32
	latest atomic.Pointer[analysis.Snapshot]
}

// NewWorker creates a worker. store and observer may be nil.
func NewWorker(storage analysis.Storage, pruner *Pruner, store SnapshotStore, observer Observer) *Worker {
	if pruner == nil {
		pruner = NewPruner(storage, nil)
	}
	return &Worker{
		storage:  storage,
		pruner:   pruner,
		store:    store,
		observer: observer,
		logger:   slog.Default().With("component", "maintenance"),
		now:      time.Now,
	}
}

// Load publishes the most recent persisted snapshot, if any, so the score is
// available before the first cycle completes.
func (w *Worker) Load(ctx context.Context) error {
	if w.store == nil {
		return nil
	}
	snap, err := w.store.Latest(ctx)
	if errors.Is(err, analysis.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	w.latest.Store(snap)
	return nil
}

// State returns the current state.
func (w *Worker) State() State {
	return State(w.state.Load())
}

// Snapshot returns the latest published snapshot, or nil before the first cycle.
func (w *Worker) Snapshot() *analysis.Snapshot {
	return w.latest.Load()
}

// RunOnce executes one cycle. It returns ErrAlreadyRunning without doing any
// work if a cycle is in progress.
func (w *Worker) RunOnce(ctx context.Context) (*Report, error) {
	if !w.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return nil, ErrAlreadyRunning
	}
	defer w.state.Store(int32(StateIdle))

	report := &Report{StartedAt: w.now()}
	err := w.cycle(ctx, report)
	report.Duration = w.now().Sub(report.StartedAt)

	if w.observer != nil {
		w.observer.ObserveMaintenance(err, report.Duration, report.Snapshot)
	}

	if err != nil {
		w.logger.Error("maintenance cycle failed", "error", err, "duration", report.Duration)
		return report, err
	}

	w.logger.Info("maintenance cycle completed",
		"pruned", report.Pruned,
		"total", report.Snapshot.Overall.Total,
		"compatibility_score", report.Snapshot.Overall.CompatibilityScore,
		"duration", report.Duration,
	)
	return report, nil
}

func (w *Worker) cycle(ctx context.Context, report *Report) error {
	pruned, err := w.pruner.Prune(ctx)
	report.Pruned = pruned
	if err != nil {
		return NewCycleError("prune", err)
	}

	snap, err := Rollup(ctx, w.storage, w.now())
	if err != nil {
		return NewCycleError("rollup", err)
	}
	w.latest.Store(snap)
	report.Snapshot = snap

	if w.store != nil {
		if err := w.store.Save(ctx, snap); err != nil {
			return NewCycleError("persist", err)
		}
	}
	return nil
}
