// Package store implements the session record store: the authoritative local
// view of session state, held in memory with secondary indices and mirrored
// best-effort to the durable backing store.
package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/oplink/sessionsync/internal/domain/session"
	"github.com/oplink/sessionsync/internal/port/outbound"
)

// RecordStore is the sole source of truth for what this device currently
// believes about session state.
//
// Every mutation serializes through one mutex, which is the store's logical
// mutation queue: API calls, timer callbacks, and subscription callbacks can
// never interleave a read-modify-write on the same session id. Compound
// sequences — conditional updates, merge decisions, bounded inserts — go
// through Mutate, Swap, and Insert, which run their read and write inside
// one critical section; callers must not re-implement them as Get-then-Put.
// Reads return deep copies and never block on network or durable-store I/O.
//
// Durable writes are best-effort: a persistence failure is logged and the
// in-memory mutation stands. Whatever was durably written is re-read on the
// next boot via Load.
type RecordStore struct {
	mu        sync.Mutex
	sessions  map[string]*session.AuthSession
	byUser    map[string]map[string]struct{}
	byDevice  map[string]map[string]struct{}
	byContext map[string]map[string]struct{}

	durable outbound.DurableStore
	logger  *slog.Logger
}

// New creates a RecordStore over the given durable backing store.
// durable may be nil in tests; the store is then memory-only.
func New(durable outbound.DurableStore, logger *slog.Logger) *RecordStore {
	return &RecordStore{
		sessions:  make(map[string]*session.AuthSession),
		byUser:    make(map[string]map[string]struct{}),
		byDevice:  make(map[string]map[string]struct{}),
		byContext: make(map[string]map[string]struct{}),
		durable:   durable,
		logger:    logger,
	}
}

// Load rehydrates the in-memory view from the durable store. Terminal
// records are skipped; they were swept or revoked before shutdown and a
// swept session must not reappear.
func (r *RecordStore) Load(ctx context.Context) error {
	if r.durable == nil {
		return nil
	}
	persisted, err := r.durable.AllSessions(ctx)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	loaded := 0
	for _, s := range persisted {
		if s.Status == session.StatusExpired {
			continue
		}
		r.index(s.Clone())
		loaded++
	}
	r.logger.Info("session store loaded", "persisted", len(persisted), "live", loaded)
	return nil
}

// Get returns the session only if it is active and unexpired; otherwise it
// behaves as absent. This is the lazy-expiry check that backstops the sweeper.
func (r *RecordStore) Get(id string) *session.AuthSession {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok || !s.Live(time.Now().UTC()) {
		return nil
	}
	return s.Clone()
}

// GetAny returns the record regardless of status or expiry. Used by the
// lifecycle and reconciliation paths, which need to see suspended and
// just-expired records.
func (r *RecordStore) GetAny(id string) *session.AuthSession {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil
	}
	return s.Clone()
}

// Put upserts the session into the in-memory indices and the durable store.
// Idempotent: putting an identical record twice leaves the same state.
func (r *RecordStore) Put(ctx context.Context, s *session.AuthSession) {
	cp := s.Clone()

	r.mu.Lock()
	r.unindex(cp.ID)
	r.index(cp)
	r.mu.Unlock()

	r.persist(ctx, cp)
}

// Mutate runs fn against the stored record under the mutation lock, so the
// read-modify-write cannot interleave with any other mutation on the same
// id. fn receives a copy; returning false discards it. Returns the state
// after the write, or nil when the id is unknown or fn declined.
//
// fn must not call back into the store.
func (r *RecordStore) Mutate(ctx context.Context, id string, fn func(*session.AuthSession) bool) *session.AuthSession {
	r.mu.Lock()
	cur, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	cp := cur.Clone()
	if !fn(cp) {
		r.mu.Unlock()
		return nil
	}
	r.unindex(id)
	r.index(cp)
	out := cp.Clone()
	r.mu.Unlock()

	r.persist(ctx, cp)
	return out
}

// Swap replaces the record for incoming.ID when accept approves, judged
// against the record actually stored at decision time — not a snapshot a
// caller read earlier. local is nil when the id is unknown. accept must not
// retain or mutate local, and must not call back into the store.
func (r *RecordStore) Swap(ctx context.Context, incoming *session.AuthSession, accept func(local *session.AuthSession) bool) bool {
	cp := incoming.Clone()

	r.mu.Lock()
	if !accept(r.sessions[cp.ID]) {
		r.mu.Unlock()
		return false
	}
	r.unindex(cp.ID)
	r.index(cp)
	r.mu.Unlock()

	r.persist(ctx, cp)
	return true
}

// Insert upserts a new session while holding the user's live count under
// maxActive: within one critical section it expires as many oldest-activity
// live sessions of s.UserID as needed, then indexes s. Two concurrent
// inserts therefore cannot both pass the count check, and the bound holds
// at every instant, not just after the dust settles. Returns the evicted
// records so the caller can emit events and propagate the revocations.
// maxActive <= 0 means unbounded.
func (r *RecordStore) Insert(ctx context.Context, s *session.AuthSession, maxActive int) []*session.AuthSession {
	cp := s.Clone()
	now := time.Now().UTC()

	r.mu.Lock()
	var evicted []*session.AuthSession
	if maxActive > 0 {
		for {
			var victim *session.AuthSession
			live := 0
			for id := range r.byUser[cp.UserID] {
				rec := r.sessions[id]
				if rec == nil || !rec.Live(now) {
					continue
				}
				live++
				if victim == nil || rec.LastActivity.Before(victim.LastActivity) {
					victim = rec
				}
			}
			// The loop drains a store already over the bound, for example
			// after adopting remote records.
			if live < maxActive || victim == nil {
				break
			}
			ev := victim.Clone()
			if err := ev.Transition(session.StatusExpired); err != nil {
				break
			}
			ev.Touch(now)
			r.unindex(ev.ID)
			r.index(ev)
			evicted = append(evicted, ev.Clone())
		}
	}
	r.unindex(cp.ID)
	r.index(cp)
	r.mu.Unlock()

	for _, ev := range evicted {
		r.persist(ctx, ev)
	}
	r.persist(ctx, cp)
	return evicted
}

// Remove deletes the record from the indices and the durable store.
// Returns false if the id was unknown.
func (r *RecordStore) Remove(ctx context.Context, id string) bool {
	r.mu.Lock()
	_, ok := r.sessions[id]
	if ok {
		r.unindex(id)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	if r.durable != nil {
		if err := r.durable.DeleteSession(ctx, id); err != nil {
			r.logger.Warn("durable delete failed", "session_id", id, "error", err)
		}
	}
	return true
}

// QueryByUser returns all currently-live sessions for a user.
func (r *RecordStore) QueryByUser(userID string) []*session.AuthSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.liveSubset(r.byUser[userID])
}

// QueryByContext returns all currently-live sessions scoped to a context.
func (r *RecordStore) QueryByContext(contextID string) []*session.AuthSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.liveSubset(r.byContext[contextID])
}

// QueryByDevice returns all currently-live sessions from a device.
func (r *RecordStore) QueryByDevice(deviceID string) []*session.AuthSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.liveSubset(r.byDevice[deviceID])
}

// CountActive returns the number of live sessions for a user.
func (r *RecordStore) CountActive(userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	n := 0
	for id := range r.byUser[userID] {
		if s := r.sessions[id]; s != nil && s.Live(now) {
			n++
		}
	}
	return n
}

// All returns a copy of every record, live or not. Used by the sweeper and
// the periodic pull, which must see expired and suspended records too.
func (r *RecordStore) All() []*session.AuthSession {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*session.AuthSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.Clone())
	}
	return out
}

// IDs returns every known session id.
func (r *RecordStore) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		out = append(out, id)
	}
	return out
}

// Size returns the number of records currently indexed, expired or not.
func (r *RecordStore) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// LiveCount returns the number of records that are active and unexpired.
func (r *RecordStore) LiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	n := 0
	for _, s := range r.sessions {
		if s.Live(now) {
			n++
		}
	}
	return n
}

// persist mirrors the record to the durable store. Failure is logged; the
// in-memory state is the fast path and stands regardless.
func (r *RecordStore) persist(ctx context.Context, s *session.AuthSession) {
	if r.durable == nil {
		return
	}
	if err := r.durable.PutSession(ctx, s); err != nil {
		r.logger.Warn("durable write failed", "session_id", s.ID, "error", err)
	}
}

// index inserts the record into the primary map and every secondary index.
// Caller holds mu.
func (r *RecordStore) index(s *session.AuthSession) {
	r.sessions[s.ID] = s
	addKey(r.byUser, s.UserID, s.ID)
	addKey(r.byDevice, s.DeviceID, s.ID)
	if cid := s.ContextID(); cid != "" {
		addKey(r.byContext, cid, s.ID)
	}
}

// unindex removes the record from the primary map and every secondary index.
// Caller holds mu.
func (r *RecordStore) unindex(id string) {
	s, ok := r.sessions[id]
	if !ok {
		return
	}
	delete(r.sessions, id)
	dropKey(r.byUser, s.UserID, id)
	dropKey(r.byDevice, s.DeviceID, id)
	if cid := s.ContextID(); cid != "" {
		dropKey(r.byContext, cid, id)
	}
}

// liveSubset resolves an index bucket to live session copies. Caller holds mu.
func (r *RecordStore) liveSubset(ids map[string]struct{}) []*session.AuthSession {
	now := time.Now().UTC()
	out := make([]*session.AuthSession, 0, len(ids))
	for id := range ids {
		if s := r.sessions[id]; s != nil && s.Live(now) {
			out = append(out, s.Clone())
		}
	}
	return out
}

func addKey(idx map[string]map[string]struct{}, key, id string) {
	if key == "" {
		return
	}
	bucket, ok := idx[key]
	if !ok {
		bucket = make(map[string]struct{})
		idx[key] = bucket
	}
	bucket[id] = struct{}{}
}

func dropKey(idx map[string]map[string]struct{}, key, id string) {
	if bucket, ok := idx[key]; ok {
		delete(bucket, id)
		if len(bucket) == 0 {
			delete(idx, key)
		}
	}
}
