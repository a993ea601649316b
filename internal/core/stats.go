package core

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/valter-silva-au/tasker/pkg/models"
)

// DefaultDueSoonDays is the width of the due-soon window in calendar days.
const DefaultDueSoonDays = 3

// Classify reports whether an incomplete task is overdue, due soon, or
// neither. Completed tasks and tasks without a due date are never flagged.
// The due-soon window is inclusive on both ends.
func Classify(task models.Task, now time.Time, dueSoonDays int) models.DueState {
	if task.Status == models.StatusCompleted || !task.HasDueDate() {
		return models.DueNone
	}
	due := *task.DueDate
	if due.Before(now) {
		return models.DueOverdue
	}
	if !due.After(now.AddDate(0, 0, dueSoonDays)) {
		return models.DueSoon
	}
	return models.DueNone
}

// ComputeStats derives summary statistics from the full task list using the
// default due-soon window.
func ComputeStats(tasks []models.Task, now time.Time) models.TaskStats {
	return ComputeStatsWithin(tasks, now, DefaultDueSoonDays)
}

// ComputeStatsWithin is ComputeStats with an explicit due-soon window.
func ComputeStatsWithin(tasks []models.Task, now time.Time, dueSoonDays int) models.TaskStats {
	var st models.TaskStats
	st.Total = len(tasks)
	for _, t := range tasks {
		switch t.Status {
		case models.StatusCompleted:
			st.Completed++
		case models.StatusInProgress:
			st.InProgress++
		default:
			st.Pending++
		}
		switch Classify(t, now, dueSoonDays) {
		case models.DueOverdue:
			st.Overdue++
		case models.DueSoon:
			st.DueSoon++
		}
	}
	if st.Total > 0 {
		st.CompletionRate = int(math.Round(100 * float64(st.Completed) / float64(st.Total)))
	}
	return st
}

// StatsEngine keeps TaskStats in step with a task source. Statistics are
// recomputed in full whenever the source's list is replaced.
type StatsEngine struct {
	source      TaskSource
	dueSoonDays int
	deps

	// publish orders recomputation and delivery so listeners never see
	// statistics older than ones already delivered.
	publish sync.Mutex

	mu          sync.Mutex
	stats       models.TaskStats
	version     uint64
	seq         uint64
	unsubscribe func()

	listeners listenerSet[models.TaskStats]
}

// NewStatsEngine subscribes to source. A non-positive dueSoonDays selects
// DefaultDueSoonDays.
func NewStatsEngine(source TaskSource, dueSoonDays int, opts ...Option) *StatsEngine {
	if dueSoonDays <= 0 {
		dueSoonDays = DefaultDueSoonDays
	}
	e := &StatsEngine{
		source:      source,
		dueSoonDays: dueSoonDays,
		deps:        newDeps(opts),
	}
	snap := source.Snapshot()
	e.stats = ComputeStatsWithin(snap.Tasks, e.now(), dueSoonDays)
	e.version = snap.Version
	e.seq = snap.Seq
	e.unsubscribe = source.Subscribe(e.onSnapshot)
	return e
}

func (e *StatsEngine) onSnapshot(snap TaskSnapshot) {
	e.publish.Lock()
	defer e.publish.Unlock()

	e.mu.Lock()
	if snap.Seq < e.seq {
		e.mu.Unlock()
		e.logger.Debug("ignoring out-of-order task snapshot", "seq", snap.Seq, "applied", e.seq)
		return
	}
	e.seq = snap.Seq
	if snap.Version == e.version {
		e.mu.Unlock()
		return
	}
	e.version = snap.Version
	e.stats = ComputeStatsWithin(snap.Tasks, e.now(), e.dueSoonDays)
	stats := e.stats
	e.mu.Unlock()
	e.listeners.notify(stats)
}

// Stats returns the statistics of the latest list.
func (e *StatsEngine) Stats() models.TaskStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// Recompute evaluates the current list against the clock again, so overdue
// and due-soon counts follow the passage of time without a refetch.
func (e *StatsEngine) Recompute() models.TaskStats {
	snap := e.source.Snapshot()
	e.mu.Lock()
	defer e.mu.Unlock()
	if snap.Seq < e.seq {
		return e.stats
	}
	e.seq = snap.Seq
	e.version = snap.Version
	e.stats = ComputeStatsWithin(snap.Tasks, e.now(), e.dueSoonDays)
	return e.stats
}

// Refresh asks the source to fetch again. The new statistics arrive through
// the subscription.
func (e *StatsEngine) Refresh(ctx context.Context) error {
	return e.source.FetchTasks(ctx)
}

// DueSoonDays returns the width of the due-soon window.
func (e *StatsEngine) DueSoonDays() int { return e.dueSoonDays }

// Subscribe registers fn to be called with the new statistics after each
// recomputation triggered by a list change. Calls are made one at a time in
// order; fn must not block or fetch.
func (e *StatsEngine) Subscribe(fn func(models.TaskStats)) (unsubscribe func()) {
	return e.listeners.add(fn)
}

// Close detaches the engine from its source.
func (e *StatsEngine) Close() {
	e.unsubscribe()
	e.listeners.clear()
}
