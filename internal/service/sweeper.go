package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/oplink/sessionsync/internal/adapter/outbound/store"
	"github.com/oplink/sessionsync/internal/domain/session"
	"github.com/oplink/sessionsync/internal/domain/synclog"
)

// DefaultSweepInterval is the background eviction cadence when the config
// leaves it unset.
const DefaultSweepInterval = 30 * time.Second

// Sweeper evicts sessions whose expiry has passed or whose status is
// terminal. Removal is local; deletion propagation rides the reconciler's
// next push cycle. A sweep with nothing to evict has no side effects.
type Sweeper struct {
	store    *store.RecordStore
	events   *eventRecorder
	push     pusher
	stats    *Stats
	logger   *slog.Logger
	interval time.Duration

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// NewSweeper wires the expiry sweeper. interval <= 0 falls back to
// DefaultSweepInterval.
func NewSweeper(
	st *store.RecordStore,
	events *eventRecorder,
	push pusher,
	interval time.Duration,
	stats *Stats,
	logger *slog.Logger,
) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{
		store:    st,
		events:   events,
		push:     push,
		stats:    stats,
		logger:   logger,
		interval: interval,
	}
}

// Start launches the periodic sweep loop.
func (w *Sweeper) Start(ctx context.Context) {
	if w.started {
		return
	}
	w.started = true

	ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.Sweep(ctx)
			}
		}
	}()
}

// Stop cancels the sweep loop and waits for it to exit.
func (w *Sweeper) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

// Sweep removes every record with a passed expiry or terminal status,
// emitting one expired event per removal. Returns the number removed.
func (w *Sweeper) Sweep(ctx context.Context) int {
	now := time.Now().UTC()
	removed := 0

	for _, s := range w.store.All() {
		if s.Status != session.StatusExpired && now.Before(s.ExpiresAt) {
			continue
		}
		// Tombstone before removing: a pull or notification landing between
		// the two must not re-adopt the id. Also queues deletion propagation
		// for the next push cycle.
		w.push.EnqueueRevoke(s.ID, "expired")
		if !w.store.Remove(ctx, s.ID) {
			continue
		}
		w.events.record(ctx, synclog.EventExpired, s, map[string]any{
			"expired_at": s.ExpiresAt,
			"status":     string(s.Status),
		})
		removed++
	}

	if removed > 0 {
		w.stats.RecordSwept(removed)
		w.logger.Debug("swept expired sessions", "count", removed)
	}
	return removed
}
