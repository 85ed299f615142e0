package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/oplink/sessionsync/internal/adapter/outbound/store"
	"github.com/oplink/sessionsync/internal/domain/device"
	"github.com/oplink/sessionsync/internal/domain/session"
	"github.com/oplink/sessionsync/internal/domain/synclog"
	"github.com/oplink/sessionsync/internal/port/outbound"
)

// Options configures an Engine.
type Options struct {
	// MaxConcurrentSessions bounds active sessions per user.
	MaxConcurrentSessions int
	// Timeouts is the context-sensitive expiry policy.
	Timeouts session.TimeoutPolicy
	// ReconcileInterval drives the periodic pull and push retry.
	ReconcileInterval time.Duration
	// SweepInterval drives background expiry eviction.
	SweepInterval time.Duration
	// Origin identifies this engine instance on outgoing directory writes.
	// Must match the origin the directory client stamps on notifications so
	// the reconciler can skip echoes. Defaults to a random uuid.
	Origin string
}

// Engine is the consuming application's entry point: one engine instance per
// device, owning the record store, the device registry, and the background
// reconciliation and sweep loops.
type Engine struct {
	origin string

	store     *store.RecordStore
	registry  *DeviceRegistry
	lifecycle *Lifecycle
	reconcile *Reconciler
	sweeper   *Sweeper
	emergency *Emergency
	stats     *Stats

	sink    outbound.EventSink
	durable outbound.DurableStore
	dir     outbound.Directory
	logger  *slog.Logger

	startedAt time.Time
}

// NewEngine wires all engine components. Nothing runs until Start.
func NewEngine(
	durable outbound.DurableStore,
	dir outbound.Directory,
	sink outbound.EventSink,
	opts Options,
	logger *slog.Logger,
) *Engine {
	origin := opts.Origin
	if origin == "" {
		origin = uuid.NewString()
	}
	stats := NewStats()
	st := store.New(durable, logger)
	registry := NewDeviceRegistry(durable, logger)
	events := newEventRecorder(sink, durable, stats, logger)
	reconcile := NewReconciler(st, dir, origin, opts.ReconcileInterval, stats, logger)
	lifecycle := NewLifecycle(st, registry, events, reconcile, opts.Timeouts, opts.MaxConcurrentSessions, stats, logger)
	sweeper := NewSweeper(st, events, reconcile, opts.SweepInterval, stats, logger)
	emergency := NewEmergency(st, events, reconcile, opts.Timeouts, logger)

	return &Engine{
		origin:    origin,
		store:     st,
		registry:  registry,
		lifecycle: lifecycle,
		reconcile: reconcile,
		sweeper:   sweeper,
		emergency: emergency,
		stats:     stats,
		sink:      sink,
		durable:   durable,
		dir:       dir,
		logger:    logger,
	}
}

// Start rehydrates local state from the durable store and launches the
// background loops. A durable read failure here is fatal.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.store.Load(ctx); err != nil {
		return err
	}
	if err := e.registry.Load(ctx); err != nil {
		return err
	}
	e.startedAt = time.Now().UTC()
	e.reconcile.Start(ctx)
	e.sweeper.Start(ctx)
	e.logger.Info("session sync engine started", "origin", e.origin)
	return nil
}

// Shutdown cancels the timer loops and the subscription, then releases the
// event sink, directory client, and durable store handle — in that order, so
// nothing writes to a closed store. In-flight network operations are allowed
// to fail silently.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.sweeper.Stop()
	e.reconcile.Stop()

	if e.sink != nil {
		if err := e.sink.Close(); err != nil {
			e.logger.Warn("event sink close failed", "error", err)
		}
	}
	if e.dir != nil {
		if err := e.dir.Close(); err != nil {
			e.logger.Warn("directory close failed", "error", err)
		}
	}
	var err error
	if e.durable != nil {
		err = e.durable.Close()
	}
	e.logger.Info("session sync engine stopped", "origin", e.origin)
	return err
}

// CreateSession authenticates a new presence of the user on the device.
func (e *Engine) CreateSession(
	ctx context.Context,
	userID, orgID, deviceID string,
	platform session.Platform,
	permissions []string,
	sctx *session.Context,
) (*session.AuthSession, error) {
	return e.lifecycle.Create(ctx, userID, orgID, deviceID, platform, permissions, sctx)
}

// UpdateSession applies permission/context updates to a live session.
// Returns nil when the session is absent or not live.
func (e *Engine) UpdateSession(ctx context.Context, sessionID string, updates SessionUpdates) *session.AuthSession {
	return e.lifecycle.Update(ctx, sessionID, updates)
}

// TouchSession refreshes a live session's activity timestamp.
func (e *Engine) TouchSession(ctx context.Context, sessionID string) bool {
	return e.lifecycle.Touch(ctx, sessionID)
}

// RevokeSession terminates one session. False when the id is unknown.
func (e *Engine) RevokeSession(ctx context.Context, sessionID, reason string) bool {
	return e.lifecycle.Revoke(ctx, sessionID, reason)
}

// RevokeAllForUser terminates every active session for the user, returning
// the count revoked.
func (e *Engine) RevokeAllForUser(ctx context.Context, userID, reason string) int {
	return e.lifecycle.RevokeAllForUser(ctx, userID, reason)
}

// SuspendSession administratively pauses an active session.
func (e *Engine) SuspendSession(ctx context.Context, sessionID string) bool {
	return e.lifecycle.Suspend(ctx, sessionID)
}

// ReinstateSession returns a suspended session to active.
func (e *Engine) ReinstateSession(ctx context.Context, sessionID string) bool {
	return e.lifecycle.Reinstate(ctx, sessionID)
}

// GetSession returns the session only while it is active and unexpired.
func (e *Engine) GetSession(sessionID string) *session.AuthSession {
	return e.store.Get(sessionID)
}

// GetUserSessions returns all live sessions for a user.
func (e *Engine) GetUserSessions(userID string) []*session.AuthSession {
	return e.store.QueryByUser(userID)
}

// GetContextSessions returns all live sessions scoped to a context.
func (e *Engine) GetContextSessions(contextID string) []*session.AuthSession {
	return e.store.QueryByContext(contextID)
}

// EnableEmergencyAccess elevates every live session in the context. False
// with no mutation when the context resolves to zero sessions.
func (e *Engine) EnableEmergencyAccess(ctx context.Context, contextID, coordinatingUserID, reason string) bool {
	return e.emergency.Enable(ctx, contextID, coordinatingUserID, reason)
}

// TrustDevice marks a device as explicitly trusted. False when unknown.
func (e *Engine) TrustDevice(ctx context.Context, deviceID string) bool {
	return e.registry.Trust(ctx, deviceID)
}

// GetDeviceSessions returns all tracked devices, most recently seen first.
func (e *Engine) GetDeviceSessions() []*device.DeviceSession {
	return e.registry.List()
}

// RecentEvents returns up to n lifecycle events, newest first.
func (e *Engine) RecentEvents(n int) []*synclog.SyncEvent {
	if e.sink == nil {
		return nil
	}
	return e.sink.Recent(n)
}

// GetSyncStats returns a snapshot of engine state and counters.
func (e *Engine) GetSyncStats() SyncStats {
	snap := e.stats.snapshot()
	snap.ActiveSessions = e.store.LiveCount()
	snap.TrackedDevices = e.registry.Size()
	snap.PendingPushes = e.reconcile.PendingPushes()
	return snap
}

// Sweep runs one eviction pass immediately. Exposed for operational tooling;
// the background loop calls it on its own interval.
func (e *Engine) Sweep(ctx context.Context) int {
	return e.sweeper.Sweep(ctx)
}

// Origin is this engine instance's identifier, stamped on outgoing
// directory notifications.
func (e *Engine) Origin() string {
	return e.origin
}

// StartedAt reports when Start completed, for uptime reporting.
func (e *Engine) StartedAt() time.Time {
	return e.startedAt
}
