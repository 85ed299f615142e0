package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/oplink/sessionsync/internal/domain/session"
	"github.com/oplink/sessionsync/internal/domain/synclog"
	"github.com/oplink/sessionsync/internal/port/outbound"
)

// eventRecorder appends lifecycle events to the sink and the durable
// sync_events collection. Both writes are best-effort: a failed append is
// logged and never unwinds into the mutation path that triggered it.
type eventRecorder struct {
	sink    outbound.EventSink
	durable outbound.DurableStore
	stats   *Stats
	logger  *slog.Logger
}

func newEventRecorder(sink outbound.EventSink, durable outbound.DurableStore, stats *Stats, logger *slog.Logger) *eventRecorder {
	return &eventRecorder{sink: sink, durable: durable, stats: stats, logger: logger}
}

// record emits one event for a session-scoped transition.
func (r *eventRecorder) record(ctx context.Context, eventType string, s *session.AuthSession, payload map[string]any) {
	r.emit(ctx, &synclog.SyncEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		SessionID: s.ID,
		UserID:    s.UserID,
		DeviceID:  s.DeviceID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	})
}

// recordAggregate emits one event spanning multiple sessions.
func (r *eventRecorder) recordAggregate(ctx context.Context, eventType, userID string, payload map[string]any) {
	r.emit(ctx, &synclog.SyncEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		UserID:    userID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	})
}

func (r *eventRecorder) emit(ctx context.Context, e *synclog.SyncEvent) {
	if r.sink != nil {
		if err := r.sink.Append(ctx, e); err != nil {
			r.logger.Warn("event sink append failed", "event_type", e.Type, "error", err)
		}
	}
	if r.durable != nil {
		if err := r.durable.AppendEvent(ctx, e); err != nil {
			r.logger.Warn("durable event append failed", "event_type", e.Type, "error", err)
		}
	}
	r.stats.RecordEvent()
}
