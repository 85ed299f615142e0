package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/oplink/sessionsync/internal/domain/session"
	"github.com/oplink/sessionsync/internal/domain/synclog"
)

func TestLifecycle_Create(t *testing.T) {
	t.Parallel()

	lc, st, push, sink := newTestLifecycle(5)
	ctx := context.Background()

	s, err := lc.Create(ctx, "user-1", "org-1", "dev-1", session.PlatformWeb, []string{"read"}, nil)
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if !session.ValidID(s.ID) {
		t.Errorf("Create() id = %q, not a valid session id", s.ID)
	}
	if s.Status != session.StatusActive {
		t.Errorf("Status = %s, want active", s.Status)
	}
	if got := s.ExpiresAt.Sub(s.CreatedAt); got != session.DefaultBaseTimeout {
		t.Errorf("expiry window = %v, want base timeout %v", got, session.DefaultBaseTimeout)
	}
	if st.Get(s.ID) == nil {
		t.Error("created session not in store")
	}
	if push.pushCount() != 1 {
		t.Errorf("push count = %d, want 1", push.pushCount())
	}
	if got := sink.byType(synclog.EventCreated); len(got) != 1 {
		t.Errorf("created events = %d, want 1", len(got))
	}
}

func TestLifecycle_CreateTimeoutsByContext(t *testing.T) {
	t.Parallel()

	lc, _, _, _ := newTestLifecycle(5)
	ctx := context.Background()

	tests := []struct {
		name string
		sctx *session.Context
		want time.Duration
	}{
		{"no context", nil, session.DefaultBaseTimeout},
		{"high priority window", &session.Context{ContextID: "op", HighPriority: true}, session.DefaultHighPriorityTimeout},
		{"emergency overrides", &session.Context{ContextID: "op", HighPriority: true, EmergencyAccess: true}, session.DefaultEmergencyTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := lc.Create(ctx, "user-t", "org-1", "dev-1", session.PlatformIOS, nil, tt.sctx)
			if err != nil {
				t.Fatalf("Create() error: %v", err)
			}
			if got := s.ExpiresAt.Sub(s.CreatedAt); got != tt.want {
				t.Errorf("expiry window = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLifecycle_CreateUnknownPlatform(t *testing.T) {
	t.Parallel()

	lc, _, _, _ := newTestLifecycle(5)
	if _, err := lc.Create(context.Background(), "user-1", "org-1", "dev-1", "toaster", nil, nil); err == nil {
		t.Error("Create() with unknown platform succeeded, want error")
	}
}

func TestLifecycle_ConcurrencyLimitEvictsOldest(t *testing.T) {
	t.Parallel()

	lc, st, push, _ := newTestLifecycle(5)
	ctx := context.Background()

	// Five sessions with descending activity age: sess-1 is oldest.
	var ids []string
	for i := 0; i < 5; i++ {
		s, err := lc.Create(ctx, "user-1", "org-1", "dev-1", session.PlatformWeb, nil, nil)
		if err != nil {
			t.Fatalf("Create() error: %v", err)
		}
		// Stagger activity so ordering is unambiguous.
		s.LastActivity = time.Now().UTC().Add(time.Duration(i-10) * time.Minute)
		st.Put(ctx, s)
		ids = append(ids, s.ID)
	}

	// Touch the oldest so the next-oldest becomes the eviction candidate.
	if !lc.Touch(ctx, ids[0]) {
		t.Fatal("Touch() failed")
	}

	sixth, err := lc.Create(ctx, "user-1", "org-1", "dev-1", session.PlatformWeb, nil, nil)
	if err != nil {
		t.Fatalf("Create() sixth error: %v", err)
	}

	// sess #2 (ids[1]) had the oldest activity after the touch.
	if reason, ok := push.revokeReason(ids[1]); !ok || reason != ReasonConcurrentLimit {
		t.Errorf("revoked = (%q, %v), want ids[1] with %q", reason, ok, ReasonConcurrentLimit)
	}
	if st.Get(ids[0]) == nil {
		t.Error("touched session was evicted, want it kept")
	}
	if st.Get(ids[1]) != nil {
		t.Error("next-oldest session still live, want it revoked")
	}

	active := st.QueryByUser("user-1")
	if len(active) != 5 {
		t.Errorf("active count = %d, want 5", len(active))
	}
	found := false
	for _, s := range active {
		if s.ID == sixth.ID {
			found = true
		}
	}
	if !found {
		t.Error("sixth session missing from active set")
	}
}

func TestLifecycle_UpdateRefreshesActivity(t *testing.T) {
	t.Parallel()

	lc, st, _, sink := newTestLifecycle(5)
	ctx := context.Background()

	s, err := lc.Create(ctx, "user-1", "org-1", "dev-1", session.PlatformWeb, []string{"read"}, nil)
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	before := s.LastActivity

	time.Sleep(5 * time.Millisecond)
	updated := lc.Update(ctx, s.ID, SessionUpdates{
		Permissions: []string{"read", "write"},
		Context:     &session.Context{ContextID: "op-9"},
	})
	if updated == nil {
		t.Fatal("Update() = nil for live session")
	}
	if !updated.LastActivity.After(before) {
		t.Error("Update() did not refresh LastActivity")
	}
	if len(updated.Permissions) != 2 {
		t.Errorf("Permissions = %v, want 2 entries", updated.Permissions)
	}
	if got := st.Get(s.ID); got.ContextID() != "op-9" {
		t.Errorf("persisted context = %q, want op-9", got.ContextID())
	}
	if got := sink.byType(synclog.EventUpdated); len(got) != 1 {
		t.Errorf("updated events = %d, want 1", len(got))
	}
}

func TestLifecycle_UpdateMissingOrDead(t *testing.T) {
	t.Parallel()

	lc, st, _, _ := newTestLifecycle(5)
	ctx := context.Background()

	if got := lc.Update(ctx, "sess_missing", SessionUpdates{}); got != nil {
		t.Error("Update() on unknown id returned a session")
	}

	expired := putLive(st, "sess_dead", "user-1", 0)
	expired.ExpiresAt = time.Now().UTC().Add(-time.Minute)
	st.Put(ctx, expired)
	if got := lc.Update(ctx, "sess_dead", SessionUpdates{}); got != nil {
		t.Error("Update() on expired session returned a session")
	}
}

func TestLifecycle_Revoke(t *testing.T) {
	t.Parallel()

	lc, st, push, sink := newTestLifecycle(5)
	ctx := context.Background()

	s, _ := lc.Create(ctx, "user-1", "org-1", "dev-1", session.PlatformWeb, nil, nil)

	if !lc.Revoke(ctx, s.ID, "logout") {
		t.Fatal("Revoke() = false for existing session")
	}
	if st.Get(s.ID) != nil {
		t.Error("revoked session still live")
	}
	if got := st.GetAny(s.ID); got == nil || got.Status != session.StatusExpired {
		t.Error("revoked session not marked expired")
	}
	if reason, ok := push.revokeReason(s.ID); !ok || reason != "logout" {
		t.Errorf("revoke propagation = (%q, %v), want logout", reason, ok)
	}
	if got := sink.byType(synclog.EventRevoked); len(got) != 1 {
		t.Errorf("revoked events = %d, want 1", len(got))
	}

	// Idempotent on an already-expired record, no second event.
	if !lc.Revoke(ctx, s.ID, "logout") {
		t.Error("Revoke() on expired session = false, want true")
	}
	if got := sink.byType(synclog.EventRevoked); len(got) != 1 {
		t.Errorf("revoked events after repeat = %d, want 1", len(got))
	}

	if lc.Revoke(ctx, "sess_missing", "logout") {
		t.Error("Revoke() = true for unknown id")
	}
}

func TestLifecycle_RevokeAllForUser(t *testing.T) {
	t.Parallel()

	lc, st, _, _ := newTestLifecycle(10)
	ctx := context.Background()

	// Three active, two already expired.
	for i := 0; i < 3; i++ {
		if _, err := lc.Create(ctx, "user-1", "org-1", "dev-1", session.PlatformWeb, nil, nil); err != nil {
			t.Fatalf("Create() error: %v", err)
		}
	}
	for _, id := range []string{"sess_old1", "sess_old2"} {
		s := putLive(st, id, "user-1", 0)
		s.Status = session.StatusExpired
		st.Put(ctx, s)
	}

	if got := lc.RevokeAllForUser(ctx, "user-1", "security"); got != 3 {
		t.Errorf("RevokeAllForUser() = %d, want 3", got)
	}
	if got := st.QueryByUser("user-1"); len(got) != 0 {
		t.Errorf("live sessions after mass revoke = %d, want 0", len(got))
	}
}

func TestLifecycle_SuspendAndReinstate(t *testing.T) {
	t.Parallel()

	lc, st, _, _ := newTestLifecycle(5)
	ctx := context.Background()

	s, _ := lc.Create(ctx, "user-1", "org-1", "dev-1", session.PlatformDesktop, nil, nil)

	if !lc.Suspend(ctx, s.ID) {
		t.Fatal("Suspend() = false")
	}
	if st.Get(s.ID) != nil {
		t.Error("suspended session still served by Get")
	}
	// Suspending again fails: not active.
	if lc.Suspend(ctx, s.ID) {
		t.Error("Suspend() on suspended session = true")
	}

	if !lc.Reinstate(ctx, s.ID) {
		t.Fatal("Reinstate() = false")
	}
	if st.Get(s.ID) == nil {
		t.Error("reinstated session not live")
	}
	if lc.Reinstate(ctx, s.ID) {
		t.Error("Reinstate() on active session = true")
	}
	if lc.Reinstate(ctx, "sess_missing") {
		t.Error("Reinstate() on unknown id = true")
	}
}

func TestLifecycle_ConcurrentCreatesHoldLimit(t *testing.T) {
	t.Parallel()

	const limit = 3
	lc, st, _, _ := newTestLifecycle(limit)
	ctx := context.Background()

	// A sampler watches the user's active count while creators race: the
	// bound must hold at every instant, not only after the last eviction.
	done := make(chan struct{})
	violations := make(chan int, 1)
	var sampler sync.WaitGroup
	sampler.Add(1)
	go func() {
		defer sampler.Done()
		worst := 0
		for {
			select {
			case <-done:
				if worst > limit {
					violations <- worst
				}
				close(violations)
				return
			default:
				if n := len(st.QueryByUser("user-1")); n > worst {
					worst = n
				}
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if _, err := lc.Create(ctx, "user-1", "org-1", "dev-1", session.PlatformWeb, nil, nil); err != nil {
					t.Errorf("Create() error: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()
	close(done)
	sampler.Wait()

	if worst, ok := <-violations; ok {
		t.Errorf("sampler observed %d active sessions, limit is %d", worst, limit)
	}
	if n := len(st.QueryByUser("user-1")); n != limit {
		t.Errorf("final active count = %d, want %d", n, limit)
	}
}
