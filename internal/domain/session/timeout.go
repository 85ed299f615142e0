package session

import "time"

// Default timeout values. Emergency windows are deliberately the shortest:
// elevated access is bounded, not open-ended.
const (
	DefaultBaseTimeout         = 30 * time.Minute
	DefaultHighPriorityTimeout = 4 * time.Hour
	DefaultEmergencyTimeout    = 15 * time.Minute
)

// TimeoutPolicy computes context-sensitive session lifetimes.
type TimeoutPolicy struct {
	// Base applies when a session carries no context flags.
	Base time.Duration
	// HighPriority applies to sessions inside a bounded high-priority window.
	HighPriority time.Duration
	// Emergency applies when emergency access is set. It overrides the other
	// two regardless of which would be longer.
	Emergency time.Duration
}

// DefaultTimeoutPolicy returns the built-in timeout values.
func DefaultTimeoutPolicy() TimeoutPolicy {
	return TimeoutPolicy{
		Base:         DefaultBaseTimeout,
		HighPriority: DefaultHighPriorityTimeout,
		Emergency:    DefaultEmergencyTimeout,
	}
}

// normalized fills zero fields with defaults.
func (p TimeoutPolicy) normalized() TimeoutPolicy {
	if p.Base == 0 {
		p.Base = DefaultBaseTimeout
	}
	if p.HighPriority == 0 {
		p.HighPriority = DefaultHighPriorityTimeout
	}
	if p.Emergency == 0 {
		p.Emergency = DefaultEmergencyTimeout
	}
	return p
}

// For returns the timeout for a session context. Priority order:
// emergency access, then high-priority window, then base.
func (p TimeoutPolicy) For(ctx *Context) time.Duration {
	p = p.normalized()
	switch {
	case ctx != nil && ctx.EmergencyAccess:
		return p.Emergency
	case ctx != nil && ctx.HighPriority:
		return p.HighPriority
	default:
		return p.Base
	}
}

// ExpiryFor computes the expiry instant for a session created or extended at
// now under the given context.
func (p TimeoutPolicy) ExpiryFor(ctx *Context, now time.Time) time.Time {
	return now.UTC().Add(p.For(ctx))
}
