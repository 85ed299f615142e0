// Package synclog provides the append-only event log sink: JSON Lines on
// disk plus an in-memory ring of recent events for debugging consumers.
package synclog

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/oplink/sessionsync/internal/domain/synclog"
	"github.com/oplink/sessionsync/internal/port/outbound"
)

// DefaultRingSize is the number of recent events kept in memory.
const DefaultRingSize = 1000

// FileSink appends lifecycle events to a JSON Lines file. Appends never
// mutate earlier lines; the file is the audit trail.
type FileSink struct {
	mu     sync.Mutex
	file   *os.File
	w      *bufio.Writer
	ring   []*synclog.SyncEvent
	size   int
	logger *slog.Logger
	closed bool
}

// NewFileSink opens (or creates) the event log at path in append mode.
// ringSize <= 0 uses DefaultRingSize.
func NewFileSink(path string, ringSize int, logger *slog.Logger) (*FileSink, error) {
	if ringSize <= 0 {
		ringSize = DefaultRingSize
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	return &FileSink{
		file:   f,
		w:      bufio.NewWriter(f),
		size:   ringSize,
		logger: logger,
	}, nil
}

// Append writes one event line and records it in the ring.
func (s *FileSink) Append(ctx context.Context, e *synclog.SyncEvent) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("event log closed")
	}

	if _, err := s.w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	if err := s.w.Flush(); err != nil {
		return fmt.Errorf("flush event log: %w", err)
	}

	s.ring = append(s.ring, e)
	if len(s.ring) > s.size {
		s.ring = s.ring[len(s.ring)-s.size:]
	}
	return nil
}

// Recent returns up to n events, newest first. n <= 0 returns the whole ring.
func (s *FileSink) Recent(n int) []*synclog.SyncEvent {
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

// Close flushes and closes the underlying file. Safe to call once.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.w.Flush(); err != nil {
		s.logger.Warn("event log flush on close failed", "error", err)
	}
	return s.file.Close()
}

// Compile-time interface verification.
var _ outbound.EventSink = (*FileSink)(nil)
