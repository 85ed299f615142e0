package outbound

import (
	"context"

	"github.com/oplink/sessionsync/internal/domain/device"
	"github.com/oplink/sessionsync/internal/domain/session"
	"github.com/oplink/sessionsync/internal/domain/synclog"
)

// DurableStore is the outbound port for the local durable key-value store.
// It holds three indexed collections: sessions, devices, and sync_events.
// Exactly one engine instance owns the store per device, so implementations
// need no cross-process locking.
//
// Durability is best-effort from the engine's point of view: a failed write
// is logged and the in-memory state stands; the store is re-read on next boot.
// A failed open, by contrast, is fatal.
type DurableStore interface {
	// PutSession upserts a session record.
	PutSession(ctx context.Context, s *session.AuthSession) error
	// DeleteSession removes a session record. Deleting an absent id is a no-op.
	DeleteSession(ctx context.Context, id string) error
	// AllSessions returns every persisted session record.
	AllSessions(ctx context.Context) ([]*session.AuthSession, error)

	// PutDevice upserts a device record.
	PutDevice(ctx context.Context, d *device.DeviceSession) error
	// AllDevices returns every persisted device record.
	AllDevices(ctx context.Context) ([]*device.DeviceSession, error)

	// AppendEvent appends to the sync_events collection. Events are never
	// updated or deleted.
	AppendEvent(ctx context.Context, e *synclog.SyncEvent) error
	// RecentEvents returns up to n events, newest first.
	RecentEvents(ctx context.Context, n int) ([]*synclog.SyncEvent, error)

	// Close releases the store handle. Called only after background loops
	// have been cancelled.
	Close() error
}

// EventSink receives lifecycle events for audit consumers. Implementations
// must not block the mutation path; append failures are logged, not returned
// to API callers.
type EventSink interface {
	Append(ctx context.Context, e *synclog.SyncEvent) error
	Recent(n int) []*synclog.SyncEvent
	Close() error
}
