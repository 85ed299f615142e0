// Package outbound defines the outbound port interfaces for the remote
// session directory and local persistence.
package outbound

import (
	"context"

	"github.com/oplink/sessionsync/internal/domain/session"
)

// EventKind classifies a directory change notification.
type EventKind string

const (
	EventCreate EventKind = "create"
	EventUpdate EventKind = "update"
	EventDelete EventKind = "delete"
)

// DirectoryEvent is one change notification pushed by the remote directory.
type DirectoryEvent struct {
	// Kind is the change class.
	Kind EventKind `json:"kind"`
	// SessionID is always set. Session is nil for delete events.
	SessionID string `json:"session_id"`
	// Session is the full record for create/update events.
	Session *session.AuthSession `json:"session,omitempty"`
	// Origin identifies the engine instance that produced the change, so a
	// device can skip echoes of its own pushes.
	Origin string `json:"origin,omitempty"`
}

// Directory is the outbound port for the remote session directory. The
// directory is shared across devices and never serializes concurrent
// writers; convergence relies on the reconciler's merge policy.
// All errors from this port are transient-network class: callers log and
// retry on the next cycle, they never surface them to the API.
type Directory interface {
	// Upsert writes a full session record keyed by session id.
	Upsert(ctx context.Context, s *session.AuthSession) error

	// FetchByIDs returns the records for the given ids. Ids unknown to the
	// directory are simply absent from the result map.
	FetchByIDs(ctx context.Context, ids []string) (map[string]*session.AuthSession, error)

	// FetchByUser returns all records the directory holds for a user.
	FetchByUser(ctx context.Context, userID string) ([]*session.AuthSession, error)

	// MarkRevoked flags a session as expired in the directory.
	MarkRevoked(ctx context.Context, sessionID, reason string) error

	// Subscribe opens the change-notification stream. The channel is closed
	// when ctx is cancelled or the subscription fails; callers resubscribe
	// on their next cycle.
	Subscribe(ctx context.Context) (<-chan DirectoryEvent, error)

	// Close releases the client. In-flight calls may fail afterwards.
	Close() error
}
