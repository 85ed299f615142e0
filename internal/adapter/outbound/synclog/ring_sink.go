package synclog

import (
	"context"
	"sync"

	"github.com/oplink/sessionsync/internal/domain/synclog"
	"github.com/oplink/sessionsync/internal/port/outbound"
)

// RingSink keeps recent events in memory without writing a log file. Used
// when the file log is disabled in config.
type RingSink struct {
	mu   sync.Mutex
	ring []*synclog.SyncEvent
	size int
}

// NewRingSink returns a memory-only sink. ringSize <= 0 uses DefaultRingSize.
func NewRingSink(ringSize int) *RingSink {
	if ringSize <= 0 {
		ringSize = DefaultRingSize
	}
	return &RingSink{size: ringSize}
}

func (s *RingSink) Append(_ context.Context, e *synclog.SyncEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ring = append(s.ring, e)
	if len(s.ring) > s.size {
		s.ring = s.ring[len(s.ring)-s.size:]
	}
	return nil
}

// Recent returns up to n events, newest first.
func (s *RingSink) Recent(n int) []*synclog.SyncEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 || n > len(s.ring) {
		n = len(s.ring)
	}
	out := make([]*synclog.SyncEvent, 0, n)
	for i := len(s.ring) - 1; i >= len(s.ring)-n; i-- {
		out = append(out, s.ring[i])
	}
	return out
}

func (s *RingSink) Close() error { return nil }

var _ outbound.EventSink = (*RingSink)(nil)
