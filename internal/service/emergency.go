package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/oplink/sessionsync/internal/adapter/outbound/store"
	"github.com/oplink/sessionsync/internal/domain/session"
	"github.com/oplink/sessionsync/internal/domain/synclog"
)

// Emergency elevates timeout and access flags across all sessions sharing an
// operational context, such as every device coordinating one live event.
type Emergency struct {
	store  *store.RecordStore
	events *eventRecorder
	push   pusher
	policy session.TimeoutPolicy
	logger *slog.Logger
}

// NewEmergency wires the emergency access controller.
func NewEmergency(
	st *store.RecordStore,
	events *eventRecorder,
	push pusher,
	policy session.TimeoutPolicy,
	logger *slog.Logger,
) *Emergency {
	return &Emergency{store: st, events: events, push: push, policy: policy, logger: logger}
}

// Enable elevates every live session scoped to contextID: emergencyAccess on
// all of them, overrideGranted only on the coordinating user's sessions, and
// expiry reassigned to the emergency timeout. The emergency value always
// wins, even when a session had more remaining lifetime. Returns false with
// no mutation when the context has no live sessions.
func (e *Emergency) Enable(ctx context.Context, contextID, coordinatingUserID, reason string) bool {
	sessions := e.store.QueryByContext(contextID)
	if len(sessions) == 0 {
		return false
	}

	now := time.Now().UTC()
	affected := 0
	for _, found := range sessions {
		// Liveness is re-checked inside the mutation lock; a session revoked
		// since the query stays revoked.
		s := e.store.Mutate(ctx, found.ID, func(s *session.AuthSession) bool {
			if !s.Live(now) {
				return false
			}
			if s.Context == nil {
				s.Context = &session.Context{ContextID: contextID}
			}
			s.Context.EmergencyAccess = true
			s.Context.OverrideGranted = s.UserID == coordinatingUserID
			s.ExpiresAt = e.policy.ExpiryFor(s.Context, now)
			s.Touch(now)
			return true
		})
		if s != nil {
			e.push.EnqueuePush(s.ID)
			affected++
		}
	}
	if affected == 0 {
		return false
	}

	e.events.recordAggregate(ctx, synclog.EventEmergencyAccess, coordinatingUserID, map[string]any{
		"context_id": contextID,
		"reason":     reason,
		"affected":   affected,
	})
	e.logger.Info("emergency access enabled",
		"context_id", contextID, "coordinating_user", coordinatingUserID,
		"affected", affected, "reason", reason)
	return true
}
