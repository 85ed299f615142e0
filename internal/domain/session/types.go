// Package session defines the authenticated-session domain model shared by
// the lifecycle, reconciliation, and sweep services.
package session

import (
	"errors"
	"time"
)

// Status is the lifecycle state of a session.
type Status string

const (
	// StatusActive marks a session that is currently valid.
	StatusActive Status = "active"
	// StatusSuspended marks a session administratively paused. It can be
	// reinstated to active.
	StatusSuspended Status = "suspended"
	// StatusExpired is terminal. No field mutation is permitted once reached.
	StatusExpired Status = "expired"
)

// Platform identifies the device class a session was created from.
type Platform string

const (
	PlatformIOS     Platform = "mobile-ios"
	PlatformAndroid Platform = "mobile-android"
	PlatformWeb     Platform = "web"
	PlatformDesktop Platform = "desktop"
)

// KnownPlatforms lists every accepted platform value.
var KnownPlatforms = []Platform{PlatformIOS, PlatformAndroid, PlatformWeb, PlatformDesktop}

// ValidPlatform reports whether p is a member of the closed platform set.
func ValidPlatform(p Platform) bool {
	for _, k := range KnownPlatforms {
		if p == k {
			return true
		}
	}
	return false
}

// Context is the optional operational-scope extension attached to a session.
// A context groups sessions across devices (for example, all devices
// coordinating one live event) so they can be elevated as a unit.
type Context struct {
	// ContextID identifies the operation or event this session is scoped to.
	ContextID string `json:"context_id"`
	// HighPriority marks a bounded high-priority operational window, which
	// extends the session timeout.
	HighPriority bool `json:"high_priority"`
	// EmergencyAccess marks the session as part of an emergency elevation.
	EmergencyAccess bool `json:"emergency_access"`
	// OverrideGranted is set only on sessions owned by the coordinating user
	// of an emergency elevation.
	OverrideGranted bool `json:"override_granted"`
}

// Clone returns a copy of the context, or nil for a nil receiver.
func (c *Context) Clone() *Context {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

// AuthSession is one authenticated presence of a user on one device.
type AuthSession struct {
	// ID is an opaque namespaced identifier, unique across devices.
	ID string `json:"id"`
	// UserID, OrgID, and DeviceID are the ownership and scoping keys.
	UserID   string `json:"user_id"`
	OrgID    string `json:"org_id"`
	DeviceID string `json:"device_id"`
	// Platform is the device class, one of KnownPlatforms.
	Platform Platform `json:"platform"`
	// CreatedAt, LastActivity, ExpiresAt satisfy
	// CreatedAt <= LastActivity < ExpiresAt while the session is active.
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	ExpiresAt    time.Time `json:"expires_at"`
	// Status is the lifecycle state. StatusExpired is terminal.
	Status Status `json:"status"`
	// Permissions is the set of capability strings granted to this session.
	Permissions []string `json:"permissions"`
	// Context is the optional operational-scope payload.
	Context *Context `json:"context,omitempty"`
}

// ErrTerminal is returned when a transition is attempted out of the expired state.
var ErrTerminal = errors.New("session is expired: state is terminal")

// ErrBadTransition is returned for transitions the state machine does not permit.
var ErrBadTransition = errors.New("invalid session state transition")

// Live reports whether the session is active and unexpired at the given instant.
func (s *AuthSession) Live(now time.Time) bool {
	return s.Status == StatusActive && now.Before(s.ExpiresAt)
}

// Touch refreshes LastActivity to now.
func (s *AuthSession) Touch(now time.Time) {
	s.LastActivity = now.UTC()
}

// NewerThan reports whether this record should win a last-writer-wins merge
// against other. Ties are not newer, which keeps merge application idempotent.
func (s *AuthSession) NewerThan(other *AuthSession) bool {
	return s.LastActivity.After(other.LastActivity)
}

// Transition moves the session to the target status, enforcing the state
// machine: active->suspended, active->expired, suspended->active,
// suspended->expired. Expired is terminal.
func (s *AuthSession) Transition(to Status) error {
	if s.Status == StatusExpired {
		return ErrTerminal
	}
	switch {
	case s.Status == StatusActive && (to == StatusSuspended || to == StatusExpired):
	case s.Status == StatusSuspended && (to == StatusActive || to == StatusExpired):
	default:
		return ErrBadTransition
	}
	s.Status = to
	return nil
}

// ContextID returns the session's context scope, or "" when unscoped.
func (s *AuthSession) ContextID() string {
	if s.Context == nil {
		return ""
	}
	return s.Context.ContextID
}

// Clone returns a deep copy safe to hand across goroutine boundaries.
func (s *AuthSession) Clone() *AuthSession {
	cp := *s
	cp.Context = s.Context.Clone()
	if s.Permissions != nil {
		cp.Permissions = make([]string, len(s.Permissions))
		copy(cp.Permissions, s.Permissions)
	}
	return &cp
}
