package service

import (
	"strconv"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/oplink/sessionsync/internal/port/outbound"
)

// boundedSet is a fixed-capacity membership set with FIFO eviction. Used for
// notification dedup and sweep tombstones, where an unbounded set would grow
// with engine uptime.
type boundedSet[K comparable] struct {
	mu    sync.Mutex
	set   map[K]struct{}
	order []K
	cap   int
}

func newBoundedSet[K comparable](capacity int) *boundedSet[K] {
	return &boundedSet[K]{
		set: make(map[K]struct{}, capacity),
		cap: capacity,
	}
}

// Add inserts k and reports whether it was already present.
func (b *boundedSet[K]) Add(k K) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.set[k]; ok {
		return true
	}
	b.set[k] = struct{}{}
	b.order = append(b.order, k)
	if len(b.order) > b.cap {
		oldest := b.order[0]
		b.order = b.order[1:]
		delete(b.set, oldest)
	}
	return false
}

// Has reports membership without inserting.
func (b *boundedSet[K]) Has(k K) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.set[k]
	return ok
}

// eventDigest produces a stable digest for a directory notification, so a
// redelivered notification is recognized and applied at most once. Delete
// notifications carry no record timestamp; the session id alone identifies
// them because a session id is never reused after deletion.
func eventDigest(ev outbound.DirectoryEvent) uint64 {
	h := xxhash.New()
	_, _ = h.WriteString(string(ev.Kind))
	_, _ = h.WriteString("|")
	_, _ = h.WriteString(ev.SessionID)
	if ev.Session != nil {
		_, _ = h.WriteString("|")
		_, _ = h.WriteString(strconv.FormatInt(ev.Session.LastActivity.UnixNano(), 10))
		_, _ = h.WriteString("|")
		_, _ = h.WriteString(string(ev.Session.Status))
	}
	return h.Sum64()
}
