package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/oplink/sessionsync/internal/adapter/outbound/store"
	"github.com/oplink/sessionsync/internal/domain/session"
	"github.com/oplink/sessionsync/internal/domain/synclog"
)

// ReasonConcurrentLimit is the revocation reason recorded when the oldest
// session loses the per-user concurrency race.
const ReasonConcurrentLimit = "concurrent_limit_exceeded"

// DefaultMaxConcurrentSessions bounds active sessions per user when the
// config leaves it unset.
const DefaultMaxConcurrentSessions = 5

// pusher is the lifecycle's hand-off to the reconciler. Pushes are
// asynchronous: the lifecycle returns as soon as the local mutation is
// committed, and remote propagation failures are retried by the reconciler.
type pusher interface {
	EnqueuePush(sessionID string)
	EnqueueRevoke(sessionID, reason string)
}

// SessionUpdates carries the mutable fields of UpdateSession. Nil fields are
// left unchanged.
type SessionUpdates struct {
	Permissions []string
	Context     *session.Context
}

// Lifecycle creates, updates, and revokes sessions. It enforces the per-user
// concurrency limit and computes context-sensitive expiry. All mutations go
// through the record store's serialized mutation path.
type Lifecycle struct {
	store    *store.RecordStore
	registry *DeviceRegistry
	events   *eventRecorder
	push     pusher
	policy   session.TimeoutPolicy
	maxConc  int
	stats    *Stats
	logger   *slog.Logger
}

// NewLifecycle wires the lifecycle manager. maxConcurrent <= 0 falls back to
// DefaultMaxConcurrentSessions.
func NewLifecycle(
	st *store.RecordStore,
	registry *DeviceRegistry,
	events *eventRecorder,
	push pusher,
	policy session.TimeoutPolicy,
	maxConcurrent int,
	stats *Stats,
	logger *slog.Logger,
) *Lifecycle {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentSessions
	}
	return &Lifecycle{
		store:    st,
		registry: registry,
		events:   events,
		push:     push,
		policy:   policy,
		maxConc:  maxConcurrent,
		stats:    stats,
		logger:   logger,
	}
}

// Create authenticates a new presence of userID on deviceID. When the user
// is at the concurrency limit, the active session with the oldest activity
// is revoked first. The only error paths are a broken entropy source and an
// unknown platform value.
func (l *Lifecycle) Create(
	ctx context.Context,
	userID, orgID, deviceID string,
	platform session.Platform,
	permissions []string,
	sctx *session.Context,
) (*session.AuthSession, error) {
	if !session.ValidPlatform(platform) {
		return nil, fmt.Errorf("unknown platform %q", platform)
	}

	id, err := session.GenerateID()
	if err != nil {
		// Entropy failure means a broken environment; propagate.
		return nil, err
	}

	now := time.Now().UTC()
	s := &session.AuthSession{
		ID:           id,
		UserID:       userID,
		OrgID:        orgID,
		DeviceID:     deviceID,
		Platform:     platform,
		CreatedAt:    now,
		LastActivity: now,
		ExpiresAt:    l.policy.ExpiryFor(sctx, now),
		Status:       session.StatusActive,
		Permissions:  permissions,
		Context:      sctx.Clone(),
	}

	// Insert enforces the per-user bound inside the store's critical
	// section; evictions come back for event emission and propagation.
	evicted := l.store.Insert(ctx, s, l.maxConc)
	for _, v := range evicted {
		l.events.record(ctx, synclog.EventRevoked, v, map[string]any{"reason": ReasonConcurrentLimit})
		l.stats.RecordRevoked()
		l.push.EnqueueRevoke(v.ID, ReasonConcurrentLimit)
		l.logger.Info("concurrency limit reached, evicted oldest session",
			"user_id", userID, "session_id", v.ID, "last_activity", v.LastActivity)
	}

	l.registry.RegisterOrTouch(ctx, deviceID, platform)
	l.events.record(ctx, synclog.EventCreated, s, map[string]any{
		"platform":   string(platform),
		"context_id": s.ContextID(),
	})
	l.stats.RecordCreated()
	l.push.EnqueuePush(s.ID)

	l.logger.Info("session created",
		"session_id", s.ID, "user_id", userID, "device_id", deviceID, "platform", platform)
	return s.Clone(), nil
}

// Update applies permission/context updates to an active session, refreshing
// its activity timestamp. Returns nil without error when the session is not
// found or not currently live.
func (l *Lifecycle) Update(ctx context.Context, sessionID string, updates SessionUpdates) *session.AuthSession {
	now := time.Now().UTC()
	s := l.store.Mutate(ctx, sessionID, func(s *session.AuthSession) bool {
		if !s.Live(now) {
			return false
		}
		if updates.Permissions != nil {
			s.Permissions = append([]string(nil), updates.Permissions...)
		}
		if updates.Context != nil {
			s.Context = updates.Context.Clone()
		}
		s.Touch(now)
		return true
	})
	if s == nil {
		return nil
	}

	l.events.record(ctx, synclog.EventUpdated, s, nil)
	l.push.EnqueuePush(s.ID)
	return s
}

// Touch refreshes a live session's activity timestamp without other changes.
func (l *Lifecycle) Touch(ctx context.Context, sessionID string) bool {
	now := time.Now().UTC()
	s := l.store.Mutate(ctx, sessionID, func(s *session.AuthSession) bool {
		if !s.Live(now) {
			return false
		}
		s.Touch(now)
		return true
	})
	if s == nil {
		return false
	}
	l.push.EnqueuePush(s.ID)
	return true
}

// Revoke terminates a session. Returns false if the session does not exist.
// Revoking an already-expired record is a no-op that still reports true.
func (l *Lifecycle) Revoke(ctx context.Context, sessionID, reason string) bool {
	now := time.Now().UTC()
	alreadyTerminal := false
	s := l.store.Mutate(ctx, sessionID, func(s *session.AuthSession) bool {
		if s.Status == session.StatusExpired {
			alreadyTerminal = true
			return false
		}
		if err := s.Transition(session.StatusExpired); err != nil {
			return false
		}
		s.Touch(now)
		return true
	})
	if s == nil {
		return alreadyTerminal
	}

	l.events.record(ctx, synclog.EventRevoked, s, map[string]any{"reason": reason})
	l.stats.RecordRevoked()
	l.push.EnqueueRevoke(s.ID, reason)

	l.logger.Info("session revoked", "session_id", sessionID, "reason", reason)
	return true
}

// RevokeAllForUser revokes every active session for a user and returns the
// count revoked. Used for security-driven mass invalidation.
func (l *Lifecycle) RevokeAllForUser(ctx context.Context, userID, reason string) int {
	count := 0
	for _, s := range l.store.QueryByUser(userID) {
		if l.Revoke(ctx, s.ID, reason) {
			count++
		}
	}
	return count
}

// Suspend administratively pauses an active session. Returns false when the
// session is absent or not active.
func (l *Lifecycle) Suspend(ctx context.Context, sessionID string) bool {
	now := time.Now().UTC()
	s := l.store.Mutate(ctx, sessionID, func(s *session.AuthSession) bool {
		if err := s.Transition(session.StatusSuspended); err != nil {
			return false
		}
		s.Touch(now)
		return true
	})
	if s == nil {
		return false
	}
	l.events.record(ctx, synclog.EventUpdated, s, map[string]any{"status": string(session.StatusSuspended)})
	l.push.EnqueuePush(s.ID)
	return true
}

// Reinstate explicitly returns a suspended session to active.
func (l *Lifecycle) Reinstate(ctx context.Context, sessionID string) bool {
	now := time.Now().UTC()
	s := l.store.Mutate(ctx, sessionID, func(s *session.AuthSession) bool {
		if s.Status != session.StatusSuspended {
			return false
		}
		if err := s.Transition(session.StatusActive); err != nil {
			return false
		}
		s.Touch(now)
		return true
	})
	if s == nil {
		return false
	}
	l.events.record(ctx, synclog.EventUpdated, s, map[string]any{"status": string(session.StatusActive)})
	l.push.EnqueuePush(s.ID)
	return true
}
