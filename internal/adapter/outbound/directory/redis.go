// Package directory implements the remote session directory port on Redis.
// Session records are JSON values keyed by session id, with a per-user id
// set for user-scoped fetches, and change notifications are fanned out over
// a pub/sub channel.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/oplink/sessionsync/internal/domain/session"
	"github.com/oplink/sessionsync/internal/port/outbound"
)

const (
	sessionPrefix = "sessiondir:session:"
	userPrefix    = "sessiondir:user:"
	eventsChannel = "sessiondir:events"

	// subscribeBuffer bounds the local notification queue. A slow consumer
	// drops notifications rather than blocking the receive loop; the dropped
	// change is recovered by the next periodic pull.
	subscribeBuffer = 64
)

// RedisDirectory implements outbound.Directory over a Redis backend.
type RedisDirectory struct {
	client *backend.Client
	origin string
	logger *slog.Logger
}

// Config holds connection settings for the directory backend.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// New creates a directory client. origin identifies this engine instance in
// outgoing notifications so it can recognize echoes of its own writes.
func New(cfg Config, origin string, logger *slog.Logger) *RedisDirectory {
	client := backend.NewClient(&backend.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewFromClient(client, origin, logger)
}

// NewFromClient wraps an existing Redis client. Used by tests.
func NewFromClient(client *backend.Client, origin string, logger *slog.Logger) *RedisDirectory {
	return &RedisDirectory{client: client, origin: origin, logger: logger}
}

// Upsert writes the full record and publishes a change notification.
func (d *RedisDirectory) Upsert(ctx context.Context, s *session.AuthSession) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", s.ID, err)
	}

	existed, err := d.client.Exists(ctx, sessionPrefix+s.ID).Result()
	if err != nil {
		return fmt.Errorf("directory exists check: %w", err)
	}

	kind := outbound.EventCreate
	if existed > 0 {
		kind = outbound.EventUpdate
	}

	pipe := d.client.Pipeline()
	pipe.Set(ctx, sessionPrefix+s.ID, data, 0)
	pipe.SAdd(ctx, userPrefix+s.UserID, s.ID)
	d.publish(ctx, pipe, outbound.DirectoryEvent{
		Kind:      kind,
		SessionID: s.ID,
		Session:   s,
		Origin:    d.origin,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("directory upsert %s: %w", s.ID, err)
	}
	return nil
}

// FetchByIDs returns the records the directory holds for the given ids.
// Unknown ids are absent from the result map.
func (d *RedisDirectory) FetchByIDs(ctx context.Context, ids []string) (map[string]*session.AuthSession, error) {
	out := make(map[string]*session.AuthSession, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = sessionPrefix + id
	}
	vals, err := d.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("directory batch fetch: %w", err)
	}

	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue // absent
		}
		var s session.AuthSession
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			d.logger.Warn("skipping undecodable directory record", "session_id", ids[i], "error", err)
			continue
		}
		out[s.ID] = &s
	}
	return out, nil
}

// FetchByUser returns all records the directory holds for a user.
func (d *RedisDirectory) FetchByUser(ctx context.Context, userID string) ([]*session.AuthSession, error) {
	ids, err := d.client.SMembers(ctx, userPrefix+userID).Result()
	if err != nil {
		return nil, fmt.Errorf("directory user fetch: %w", err)
	}
	byID, err := d.FetchByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]*session.AuthSession, 0, len(byID))
	for _, s := range byID {
		out = append(out, s)
	}
	return out, nil
}

// MarkRevoked flags the record as expired and publishes a delete
// notification. Unknown ids are a no-op.
func (d *RedisDirectory) MarkRevoked(ctx context.Context, sessionID, reason string) error {
	raw, err := d.client.Get(ctx, sessionPrefix+sessionID).Result()
	if err == backend.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("directory revoke fetch %s: %w", sessionID, err)
	}

	var s session.AuthSession
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return fmt.Errorf("directory revoke decode %s: %w", sessionID, err)
	}
	s.Status = session.StatusExpired
	s.LastActivity = time.Now().UTC()

	data, err := json.Marshal(&s)
	if err != nil {
		return fmt.Errorf("directory revoke encode %s: %w", sessionID, err)
	}

	pipe := d.client.Pipeline()
	pipe.Set(ctx, sessionPrefix+sessionID, data, 0)
	d.publish(ctx, pipe, outbound.DirectoryEvent{
		Kind:      outbound.EventDelete,
		SessionID: sessionID,
		Origin:    d.origin,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("directory revoke %s: %w", sessionID, err)
	}
	d.logger.Debug("directory revocation pushed", "session_id", sessionID, "reason", reason)
	return nil
}

// Subscribe opens the change-notification stream. The returned channel is
// closed when ctx is cancelled or the underlying subscription drops.
func (d *RedisDirectory) Subscribe(ctx context.Context) (<-chan outbound.DirectoryEvent, error) {
	pubsub := d.client.Subscribe(ctx, eventsChannel)
	// Force the subscription handshake so a dead backend fails here, where
	// the reconciler can log and retry, rather than silently later.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("directory subscribe: %w", err)
	}

	out := make(chan outbound.DirectoryEvent, subscribeBuffer)
	msgs := pubsub.Channel()

	go func() {
		defer close(out)
		defer func() { _ = pubsub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev outbound.DirectoryEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					d.logger.Warn("dropping undecodable directory notification", "error", err)
					continue
				}
				select {
				case out <- ev:
				default:
					// Consumer is behind; the periodic pull recovers the gap.
					d.logger.Warn("dropping directory notification, consumer backlogged",
						"session_id", ev.SessionID)
				}
			}
		}
	}()
	return out, nil
}

// Close releases the Redis client.
func (d *RedisDirectory) Close() error {
	return d.client.Close()
}

// publish queues a notification onto the pipeline. Encoding failures are
// logged and skipped; the record write itself still goes through.
func (d *RedisDirectory) publish(ctx context.Context, pipe backend.Pipeliner, ev outbound.DirectoryEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		d.logger.Warn("skipping notification publish", "session_id", ev.SessionID, "error", err)
		return
	}
	pipe.Publish(ctx, eventsChannel, data)
}

// Compile-time interface verification.
var _ outbound.Directory = (*RedisDirectory)(nil)
