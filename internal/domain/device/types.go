// Package device contains the per-device metadata model. A DeviceSession
// outlives any individual AuthSession from that device and is never deleted
// by the synchronization engine.
package device

import (
	"time"

	"github.com/oplink/sessionsync/internal/domain/session"
)

// DeviceSession tracks metadata for one physical device.
type DeviceSession struct {
	// DeviceID is the stable device identifier supplied by the caller.
	DeviceID string `json:"device_id"`
	// Platform is the device class reported on first sight.
	Platform session.Platform `json:"platform"`
	// DisplayName is a best-effort human-readable name derived from the
	// platform. Cosmetic only.
	DisplayName string `json:"display_name"`
	// LastSeen is refreshed every time a session is created from the device.
	LastSeen time.Time `json:"last_seen"`
	// SessionCount is a lifetime counter of sessions created from the device.
	SessionCount int64 `json:"session_count"`
	// TrustedDevice is an explicit opt-in flag. Trust is advisory metadata:
	// policy consumers decide what relaxed behavior it implies.
	TrustedDevice bool `json:"trusted_device"`
}

// Clone returns a copy safe to hand to callers.
func (d *DeviceSession) Clone() *DeviceSession {
	cp := *d
	return &cp
}
