package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/oplink/sessionsync/internal/adapter/outbound/store"
	"github.com/oplink/sessionsync/internal/domain/session"
	"github.com/oplink/sessionsync/internal/port/outbound"
)

// DefaultReconcileInterval drives the periodic pull and push-retry cycle.
const DefaultReconcileInterval = 30 * time.Second

// Reconciler keeps the local store and the remote session directory
// convergent under intermittent connectivity. Three paths feed it: the
// lifecycle's asynchronous push hand-off, the periodic pull, and the
// directory's change-notification subscription. Conflicts resolve
// last-writer-wins on LastActivity.
//
// Every remote failure is contained here: logged, counted, and retried on
// the next cycle. Nothing propagates to the API surface.
type Reconciler struct {
	store    *store.RecordStore
	dir      outbound.Directory
	stats    *Stats
	logger   *slog.Logger
	origin   string
	interval time.Duration

	mu            sync.Mutex
	pendingPush   map[string]struct{}
	pendingRevoke map[string]string

	// tombstones remembers ids that were swept or revoked locally so an
	// adopted remote record cannot resurrect them (a swept session never
	// reappears under the same id).
	tombstones *boundedSet[string]
	// seen dedups redelivered notifications; delivery is at-least-once.
	seen *boundedSet[uint64]

	kick    chan struct{}
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// NewReconciler wires a reconciler. origin identifies this engine instance
// so echoes of its own pushes are skipped. interval <= 0 falls back to
// DefaultReconcileInterval.
func NewReconciler(
	st *store.RecordStore,
	dir outbound.Directory,
	origin string,
	interval time.Duration,
	stats *Stats,
	logger *slog.Logger,
) *Reconciler {
	if interval <= 0 {
		interval = DefaultReconcileInterval
	}
	return &Reconciler{
		store:         st,
		dir:           dir,
		stats:         stats,
		logger:        logger,
		origin:        origin,
		interval:      interval,
		pendingPush:   make(map[string]struct{}),
		pendingRevoke: make(map[string]string),
		tombstones:    newBoundedSet[string](4096),
		seen:          newBoundedSet[uint64](4096),
		kick:          make(chan struct{}, 1),
	}
}

// Start launches the pull/push loop and the subscription consumer. Both stop
// when Stop is called or ctx is cancelled.
func (r *Reconciler) Start(ctx context.Context) {
	if r.started {
		return
	}
	r.started = true

	ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(2)
	go r.runLoop(ctx)
	go r.subscribeLoop(ctx)
}

// Stop cancels the timer loop and the subscription and waits for both to
// exit. In-flight directory calls are allowed to fail, not force-aborted.
func (r *Reconciler) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

// EnqueuePush schedules an asynchronous push of the session's current local
// state. Returns immediately; a failed push stays queued for the next cycle.
func (r *Reconciler) EnqueuePush(sessionID string) {
	r.mu.Lock()
	r.pendingPush[sessionID] = struct{}{}
	r.mu.Unlock()
	r.wake()
}

// EnqueueRevoke schedules revocation propagation and tombstones the id so
// the session cannot be re-adopted from the directory.
func (r *Reconciler) EnqueueRevoke(sessionID, reason string) {
	r.tombstones.Add(sessionID)
	r.mu.Lock()
	delete(r.pendingPush, sessionID)
	r.pendingRevoke[sessionID] = reason
	r.mu.Unlock()
	r.wake()
}

// PendingPushes reports the number of queued outbound operations.
func (r *Reconciler) PendingPushes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pendingPush) + len(r.pendingRevoke)
}

// Tombstoned reports whether the id was swept or revoked locally.
func (r *Reconciler) Tombstoned(sessionID string) bool {
	return r.tombstones.Has(sessionID)
}

func (r *Reconciler) wake() {
	select {
	case r.kick <- struct{}{}:
	default:
	}
}

// runLoop flushes queued pushes when kicked and runs the full pull cycle on
// the configured interval.
func (r *Reconciler) runLoop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.kick:
			r.Flush(ctx)
		case <-ticker.C:
			r.Pull(ctx)
			r.Flush(ctx)
		}
	}
}

// subscribeLoop maintains the standing change-notification subscription,
// resubscribing after the interval when it drops.
func (r *Reconciler) subscribeLoop(ctx context.Context) {
	defer r.wg.Done()

	for {
		events, err := r.dir.Subscribe(ctx)
		if err != nil {
			r.logger.Warn("directory subscription failed, will retry", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(r.interval):
				continue
			}
		}

		for ev := range events {
			r.applyEvent(ctx, ev)
		}
		if ctx.Err() != nil {
			return
		}
		r.logger.Warn("directory subscription dropped, resubscribing")
	}
}

// Pull runs one reconciliation cycle against the remote directory:
//
//   - known locally and remotely: adopt whichever side has newer activity;
//     a locally-newer record is queued for push.
//   - active locally, absent remotely: re-push (assume a missed write, not
//     an authoritative deletion).
//   - present remotely under a known user, never seen locally: adopt the
//     remote record as authoritative.
func (r *Reconciler) Pull(ctx context.Context) {
	r.stats.RecordPull()

	local := r.store.All()
	ids := make([]string, 0, len(local))
	users := make(map[string]struct{})
	for _, s := range local {
		ids = append(ids, s.ID)
		users[s.UserID] = struct{}{}
	}

	remote, err := r.dir.FetchByIDs(ctx, ids)
	if err != nil {
		r.stats.RecordPullFailure()
		r.logger.Warn("reconcile pull failed, will retry next cycle", "error", err)
		return
	}

	for _, s := range local {
		rem, ok := remote[s.ID]
		if !ok {
			if s.Status == session.StatusActive {
				r.EnqueuePush(s.ID)
			}
			continue
		}
		switch {
		case rem.NewerThan(s):
			r.adoptRemote(ctx, rem)
		case s.NewerThan(rem):
			r.EnqueuePush(s.ID)
		}
	}

	// Cross-device discovery: adopt records the directory holds for our
	// known users that this device has never seen.
	for userID := range users {
		records, err := r.dir.FetchByUser(ctx, userID)
		if err != nil {
			r.stats.RecordPullFailure()
			r.logger.Warn("reconcile user fetch failed", "user_id", userID, "error", err)
			continue
		}
		for _, rem := range records {
			if r.store.GetAny(rem.ID) == nil {
				r.adoptRemote(ctx, rem)
			}
		}
	}
}

// Flush attempts every queued push and revocation once. Failures stay
// queued for the next cycle.
func (r *Reconciler) Flush(ctx context.Context) {
	r.mu.Lock()
	pushes := make([]string, 0, len(r.pendingPush))
	for id := range r.pendingPush {
		pushes = append(pushes, id)
	}
	revokes := make(map[string]string, len(r.pendingRevoke))
	for id, reason := range r.pendingRevoke {
		revokes[id] = reason
	}
	r.mu.Unlock()

	for id, reason := range revokes {
		if err := r.dir.MarkRevoked(ctx, id, reason); err != nil {
			r.stats.RecordPushFailure()
			r.logger.Warn("revocation push failed, will retry", "session_id", id, "error", err)
			continue
		}
		r.stats.RecordPush()
		r.mu.Lock()
		delete(r.pendingRevoke, id)
		r.mu.Unlock()
	}

	for _, id := range pushes {
		s := r.store.GetAny(id)
		if s == nil {
			// Swept between enqueue and flush; nothing left to push.
			r.mu.Lock()
			delete(r.pendingPush, id)
			r.mu.Unlock()
			continue
		}
		if err := r.dir.Upsert(ctx, s); err != nil {
			r.stats.RecordPushFailure()
			r.logger.Warn("session push failed, will retry", "session_id", id, "error", err)
			continue
		}
		r.stats.RecordPush()
		r.mu.Lock()
		delete(r.pendingPush, id)
		r.mu.Unlock()
	}
}

// applyEvent applies one change notification with the same merge policy as
// the pull path. Idempotent: echoes of our own pushes and redelivered
// notifications are skipped.
func (r *Reconciler) applyEvent(ctx context.Context, ev outbound.DirectoryEvent) {
	if ev.Origin == r.origin {
		r.stats.RecordEchoSkipped()
		return
	}
	if r.seen.Add(eventDigest(ev)) {
		return
	}
	r.stats.RecordNotification()

	switch ev.Kind {
	case outbound.EventDelete:
		r.tombstones.Add(ev.SessionID)
		s := r.store.Mutate(ctx, ev.SessionID, func(s *session.AuthSession) bool {
			if s.Status == session.StatusExpired {
				return false
			}
			return s.Transition(session.StatusExpired) == nil
		})
		if s != nil {
			r.logger.Debug("remote deletion applied", "session_id", ev.SessionID)
		}

	case outbound.EventCreate, outbound.EventUpdate:
		if ev.Session == nil {
			return
		}
		r.adoptRemote(ctx, ev.Session)
	}
}

// adoptRemote folds a remote record into the local store under the
// last-writer-wins policy. No-ops: tombstoned ids, remote records that are
// not newer, remote-expired records never seen locally, and local records
// already terminal. The decision runs inside the store's critical section,
// against whatever is stored at that moment — a session revoked between our
// earlier read and now stays revoked.
func (r *Reconciler) adoptRemote(ctx context.Context, rem *session.AuthSession) {
	adopted := r.store.Swap(ctx, rem, func(local *session.AuthSession) bool {
		if r.tombstones.Has(rem.ID) {
			return false
		}
		if local == nil {
			return rem.Status != session.StatusExpired
		}
		if local.Status == session.StatusExpired {
			// Terminal locally; our revocation propagates on the push path.
			return false
		}
		return rem.NewerThan(local)
	})
	if adopted {
		r.stats.RecordMerge()
		r.logger.Debug("remote record adopted", "session_id", rem.ID, "last_activity", rem.LastActivity)
	}
}
