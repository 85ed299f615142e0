package directory

import (
	"context"

	"github.com/oplink/sessionsync/internal/domain/session"
	"github.com/oplink/sessionsync/internal/port/outbound"
)

// Noop is a session directory that synchronizes nothing. Used when no
// directory address is configured: the engine runs local-only and every
// push or pull is a successful no-op.
type Noop struct{}

// NewNoop returns the local-only directory.
func NewNoop() *Noop { return &Noop{} }

func (*Noop) Upsert(context.Context, *session.AuthSession) error { return nil }

func (*Noop) FetchByIDs(context.Context, []string) (map[string]*session.AuthSession, error) {
	return map[string]*session.AuthSession{}, nil
}

func (*Noop) FetchByUser(context.Context, string) ([]*session.AuthSession, error) {
	return nil, nil
}

func (*Noop) MarkRevoked(context.Context, string, string) error { return nil }

// Subscribe returns a channel that never delivers and closes when ctx ends.
func (*Noop) Subscribe(ctx context.Context) (<-chan outbound.DirectoryEvent, error) {
	out := make(chan outbound.DirectoryEvent)
	go func() {
		<-ctx.Done()
		close(out)
	}()
	return out, nil
}

func (*Noop) Close() error { return nil }

var _ outbound.Directory = (*Noop)(nil)
