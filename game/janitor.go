package game

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/weedbox/timebank"
)

// Janitor deletes rooms older than the retention window on a fixed interval.
type Janitor struct {
	manager   *Manager
	retention time.Duration
	interval  time.Duration
	tb        *timebank.TimeBank
	now       func() time.Time

	mu      sync.Mutex
	stopped bool
}

// NewJanitor creates a janitor for the manager's rooms. Call Start to schedule sweeps.
func NewJanitor(m *Manager, retention, interval time.Duration) *Janitor {
	return &Janitor{
		manager:   m,
		retention: retention,
		interval:  interval,
		tb:        timebank.NewTimeBank(),
		now:       time.Now,
	}
}

// Start schedules the first sweep one interval from now.
func (j *Janitor) Start() {
	j.schedule()
}

func (j *Janitor) schedule() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.stopped || j.interval <= 0 {
		return
	}
	err := j.tb.NewTask(j.interval, func(isCancelled bool) {
		if isCancelled {
			return
		}
		// Re-arm outside the timebank callback.
		go func() {
			j.Sweep(context.Background())
			j.schedule()
		}()
	})
	if err != nil {
		slog.Error("scheduling cleanup failed", "tag", "janitor", "error", err)
	}
}

// Sweep deletes expired rooms from the store and stops their actors.
func (j *Janitor) Sweep(ctx context.Context) ([]string, error) {
	cutoff := j.now().Add(-j.retention)
	ids, err := j.manager.store.DeleteRoomsOlderThan(ctx, cutoff)
	if err != nil {
		slog.Error("cleanup failed", "tag", "janitor", "error", err)
		return nil, err
	}
	for _, id := range ids {
		j.manager.Remove(id)
	}
	if len(ids) > 0 {
		slog.Info("expired rooms deleted", "tag", "janitor", "count", len(ids), "cutoff", cutoff.Format(time.RFC3339))
	}
	return ids, nil
}

// Stop cancels the pending sweep.
func (j *Janitor) Stop() {
	j.mu.Lock()
	j.stopped = true
	j.mu.Unlock()
	j.tb.Cancel()
}
