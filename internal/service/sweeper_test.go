package service

import (
	"context"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/oplink/sessionsync/internal/adapter/outbound/store"
	"github.com/oplink/sessionsync/internal/domain/session"
	"github.com/oplink/sessionsync/internal/domain/synclog"
)

func newTestSweeper(interval time.Duration) (*Sweeper, *store.RecordStore, *fakePusher, *memorySink, *Stats) {
	logger := testLogger()
	st := store.New(nil, logger)
	sink := &memorySink{}
	stats := NewStats()
	events := newEventRecorder(sink, nil, stats, logger)
	push := newFakePusher()
	return NewSweeper(st, events, push, interval, stats, logger), st, push, sink, stats
}

func TestSweeper_RemovesPastExpiry(t *testing.T) {
	t.Parallel()

	w, st, push, sink, stats := newTestSweeper(time.Hour)
	ctx := context.Background()

	putLive(st, "sess_live", "user-1", 0)
	dead := putLive(st, "sess_dead", "user-1", 0)
	dead.ExpiresAt = time.Now().UTC().Add(-time.Minute)
	st.Put(ctx, dead)

	if got := w.Sweep(ctx); got != 1 {
		t.Fatalf("swept = %d, want 1", got)
	}
	if st.GetAny("sess_dead") != nil {
		t.Error("expired session still stored")
	}
	if st.GetAny("sess_live") == nil {
		t.Error("live session was swept")
	}
	if reason, ok := push.revokeReason("sess_dead"); !ok || reason != "expired" {
		t.Errorf("revoke hand-off = %q, %v; want \"expired\", true", reason, ok)
	}
	if got := len(sink.byType(synclog.EventExpired)); got != 1 {
		t.Errorf("expired events = %d, want 1", got)
	}
	if stats.snapshot().Swept != 1 {
		t.Errorf("swept counter = %d, want 1", stats.snapshot().Swept)
	}
}

func TestSweeper_RemovesTerminalStatus(t *testing.T) {
	t.Parallel()

	w, st, _, _, _ := newTestSweeper(time.Hour)
	ctx := context.Background()

	// Expired by status even though the timestamp has remaining lifetime,
	// e.g. after a remote deletion was applied.
	s := putLive(st, "sess_1", "user-1", 0)
	s.Status = session.StatusExpired
	st.Put(ctx, s)

	if got := w.Sweep(ctx); got != 1 {
		t.Errorf("swept = %d, want 1", got)
	}
}

func TestSweeper_EmptySweepHasNoSideEffects(t *testing.T) {
	t.Parallel()

	w, st, push, sink, stats := newTestSweeper(time.Hour)
	ctx := context.Background()

	putLive(st, "sess_1", "user-1", 0)

	if got := w.Sweep(ctx); got != 0 {
		t.Fatalf("swept = %d, want 0", got)
	}
	if push.pushCount() != 0 || len(sink.events) != 0 || stats.snapshot().Swept != 0 {
		t.Error("empty sweep produced side effects")
	}
}

func TestSweeper_StartStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	w, st, _, _, _ := newTestSweeper(20 * time.Millisecond)
	ctx := context.Background()

	dead := putLive(st, "sess_dead", "user-1", 0)
	dead.ExpiresAt = time.Now().UTC().Add(-time.Minute)
	st.Put(ctx, dead)

	w.Start(ctx)
	deadline := time.Now().Add(2 * time.Second)
	for st.GetAny("sess_dead") != nil && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	w.Stop()

	if st.GetAny("sess_dead") != nil {
		t.Error("background sweep never evicted the expired session")
	}
}
