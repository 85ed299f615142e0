package synclog

import (
	"context"
	"fmt"
	"testing"

	domain "github.com/oplink/sessionsync/internal/domain/synclog"
)

func TestRingSink_RecentNewestFirst(t *testing.T) {
	t.Parallel()

	sink := NewRingSink(10)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := sink.Append(ctx, &domain.SyncEvent{ID: fmt.Sprintf("evt-%d", i), Type: domain.EventCreated}); err != nil {
			t.Fatalf("Append() error: %v", err)
		}
	}

	got := sink.Recent(2)
	if len(got) != 2 {
		t.Fatalf("Recent(2) returned %d events", len(got))
	}
	if got[0].ID != "evt-4" || got[1].ID != "evt-3" {
		t.Errorf("Recent(2) = [%s, %s], want [evt-4, evt-3]", got[0].ID, got[1].ID)
	}
}

func TestRingSink_Eviction(t *testing.T) {
	t.Parallel()

	sink := NewRingSink(3)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_ = sink.Append(ctx, &domain.SyncEvent{ID: fmt.Sprintf("evt-%d", i), Type: domain.EventUpdated})
	}

	got := sink.Recent(0)
	if len(got) != 3 {
		t.Fatalf("ring holds %d events, want 3", len(got))
	}
	if got[len(got)-1].ID != "evt-2" {
		t.Errorf("oldest retained = %s, want evt-2", got[len(got)-1].ID)
	}
}
