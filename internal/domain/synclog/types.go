// Package synclog contains the append-only lifecycle event model consumed
// for audit and debugging.
package synclog

import "time"

// Event type constants. One constant per lifecycle transition the engine
// records.
const (
	EventCreated         = "created"
	EventUpdated         = "updated"
	EventExpired         = "expired"
	EventRevoked         = "revoked"
	EventEmergencyAccess = "emergency_access"
)

// SyncEvent is an immutable record of one lifecycle transition.
type SyncEvent struct {
	// ID is a unique event identifier.
	ID string `json:"id"`
	// Type is one of the Event* constants.
	Type string `json:"type"`
	// SessionID is the affected session, or "" for aggregate events.
	SessionID string `json:"session_id,omitempty"`
	// UserID and DeviceID scope the event.
	UserID   string `json:"user_id,omitempty"`
	DeviceID string `json:"device_id,omitempty"`
	// Timestamp is when the transition happened (UTC).
	Timestamp time.Time `json:"timestamp"`
	// Payload carries event-specific details (revocation reason, affected
	// count for aggregate events, and so on).
	Payload map[string]any `json:"payload,omitempty"`
}
