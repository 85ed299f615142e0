package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/oplink/sessionsync/internal/adapter/outbound/store"
	"github.com/oplink/sessionsync/internal/domain/device"
	"github.com/oplink/sessionsync/internal/domain/session"
	"github.com/oplink/sessionsync/internal/domain/synclog"
	"github.com/oplink/sessionsync/internal/port/outbound"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakePusher records hand-offs from the lifecycle, sweeper, and emergency
// controller without any network behavior.
type fakePusher struct {
	mu      sync.Mutex
	pushes  []string
	revokes map[string]string
}

func newFakePusher() *fakePusher {
	return &fakePusher{revokes: make(map[string]string)}
}

func (p *fakePusher) EnqueuePush(sessionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushes = append(p.pushes, sessionID)
}

func (p *fakePusher) EnqueueRevoke(sessionID, reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.revokes[sessionID] = reason
}

func (p *fakePusher) pushCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pushes)
}

func (p *fakePusher) revokeReason(sessionID string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	reason, ok := p.revokes[sessionID]
	return reason, ok
}

// memorySink collects emitted events in memory.
type memorySink struct {
	mu     sync.Mutex
	events []*synclog.SyncEvent
}

func (s *memorySink) Append(_ context.Context, e *synclog.SyncEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *memorySink) Recent(n int) []*synclog.SyncEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 || n > len(s.events) {
		n = len(s.events)
	}
	out := make([]*synclog.SyncEvent, 0, n)
	for i := len(s.events) - 1; i >= len(s.events)-n; i-- {
		out = append(out, s.events[i])
	}
	return out
}

func (s *memorySink) Close() error { return nil }

func (s *memorySink) byType(eventType string) []*synclog.SyncEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*synclog.SyncEvent
	for _, e := range s.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// fakeDirectory is an in-memory stand-in for the remote session directory
// with injectable failures and a notification channel.
type fakeDirectory struct {
	mu       sync.Mutex
	sessions map[string]*session.AuthSession
	failAll  bool
	upserts  int
	revokes  int

	events    chan outbound.DirectoryEvent
	subscribe bool
}

var errDirectoryDown = errors.New("directory unavailable")

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		sessions: make(map[string]*session.AuthSession),
		events:   make(chan outbound.DirectoryEvent, 64),
	}
}

func (d *fakeDirectory) Upsert(_ context.Context, s *session.AuthSession) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failAll {
		return errDirectoryDown
	}
	d.sessions[s.ID] = s.Clone()
	d.upserts++
	return nil
}

func (d *fakeDirectory) FetchByIDs(_ context.Context, ids []string) (map[string]*session.AuthSession, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failAll {
		return nil, errDirectoryDown
	}
	out := make(map[string]*session.AuthSession)
	for _, id := range ids {
		if s, ok := d.sessions[id]; ok {
			out[id] = s.Clone()
		}
	}
	return out, nil
}

func (d *fakeDirectory) FetchByUser(_ context.Context, userID string) ([]*session.AuthSession, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failAll {
		return nil, errDirectoryDown
	}
	var out []*session.AuthSession
	for _, s := range d.sessions {
		if s.UserID == userID {
			out = append(out, s.Clone())
		}
	}
	return out, nil
}

func (d *fakeDirectory) MarkRevoked(_ context.Context, sessionID, _ string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failAll {
		return errDirectoryDown
	}
	if s, ok := d.sessions[sessionID]; ok {
		s.Status = session.StatusExpired
	}
	d.revokes++
	return nil
}

func (d *fakeDirectory) Subscribe(ctx context.Context) (<-chan outbound.DirectoryEvent, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failAll {
		return nil, errDirectoryDown
	}
	d.subscribe = true
	out := make(chan outbound.DirectoryEvent)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-d.events:
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (d *fakeDirectory) Close() error { return nil }

func (d *fakeDirectory) setFail(fail bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failAll = fail
}

func (d *fakeDirectory) get(id string) *session.AuthSession {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.sessions[id]; ok {
		return s.Clone()
	}
	return nil
}

func (d *fakeDirectory) put(s *session.AuthSession) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sessions[s.ID] = s.Clone()
}

func (d *fakeDirectory) upsertCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.upserts
}

var _ outbound.Directory = (*fakeDirectory)(nil)

// memoryDurable is an in-memory DurableStore for rehydration tests.
type memoryDurable struct {
	mu       sync.Mutex
	sessions map[string]*session.AuthSession
	devices  []*device.DeviceSession
	events   []*synclog.SyncEvent
	closed   bool
}

func (m *memoryDurable) PutSession(_ context.Context, s *session.AuthSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions == nil {
		m.sessions = make(map[string]*session.AuthSession)
	}
	m.sessions[s.ID] = s.Clone()
	return nil
}

func (m *memoryDurable) DeleteSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *memoryDurable) AllSessions(_ context.Context) ([]*session.AuthSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*session.AuthSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Clone())
	}
	return out, nil
}

func (m *memoryDurable) PutDevice(_ context.Context, d *device.DeviceSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, have := range m.devices {
		if have.DeviceID == d.DeviceID {
			m.devices[i] = d.Clone()
			return nil
		}
	}
	m.devices = append(m.devices, d.Clone())
	return nil
}

func (m *memoryDurable) AllDevices(_ context.Context) ([]*device.DeviceSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*device.DeviceSession, 0, len(m.devices))
	for _, d := range m.devices {
		out = append(out, d.Clone())
	}
	return out, nil
}

func (m *memoryDurable) AppendEvent(_ context.Context, e *synclog.SyncEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *memoryDurable) RecentEvents(_ context.Context, n int) ([]*synclog.SyncEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n > len(m.events) {
		n = len(m.events)
	}
	out := make([]*synclog.SyncEvent, 0, n)
	for i := len(m.events) - 1; i >= len(m.events)-n; i-- {
		out = append(out, m.events[i])
	}
	return out, nil
}

func (m *memoryDurable) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

var _ outbound.DurableStore = (*memoryDurable)(nil)

// newTestLifecycle builds a lifecycle over a memory-only store with the
// given limit and default test timeouts.
func newTestLifecycle(maxConcurrent int) (*Lifecycle, *store.RecordStore, *fakePusher, *memorySink) {
	logger := testLogger()
	st := store.New(nil, logger)
	registry := NewDeviceRegistry(nil, logger)
	sink := &memorySink{}
	stats := NewStats()
	events := newEventRecorder(sink, nil, stats, logger)
	push := newFakePusher()
	lc := NewLifecycle(st, registry, events, push, session.DefaultTimeoutPolicy(), maxConcurrent, stats, logger)
	return lc, st, push, sink
}

// putLive inserts an active session with the given activity age.
func putLive(st *store.RecordStore, id, userID string, activityAge time.Duration) *session.AuthSession {
	now := time.Now().UTC()
	s := &session.AuthSession{
		ID:           id,
		UserID:       userID,
		DeviceID:     "dev-" + userID,
		Platform:     session.PlatformWeb,
		CreatedAt:    now.Add(-time.Hour),
		LastActivity: now.Add(-activityAge),
		ExpiresAt:    now.Add(time.Hour),
		Status:       session.StatusActive,
	}
	st.Put(context.Background(), s)
	return s
}
