// Package sqlite implements the durable local store on an embedded SQLite
// database. Records are stored as JSON payloads with extracted key columns
// for the secondary indices (owning user, device, context, status, expiry).
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"

	"github.com/oplink/sessionsync/internal/domain/device"
	"github.com/oplink/sessionsync/internal/domain/session"
	"github.com/oplink/sessionsync/internal/domain/synclog"
	"github.com/oplink/sessionsync/internal/port/outbound"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	device_id  TEXT NOT NULL,
	context_id TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL,
	expires_at INTEGER NOT NULL,
	payload    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_user    ON sessions(user_id);
CREATE INDEX IF NOT EXISTS idx_sessions_device  ON sessions(device_id);
CREATE INDEX IF NOT EXISTS idx_sessions_context ON sessions(context_id);
CREATE INDEX IF NOT EXISTS idx_sessions_status  ON sessions(status);
CREATE INDEX IF NOT EXISTS idx_sessions_expiry  ON sessions(expires_at);

CREATE TABLE IF NOT EXISTS devices (
	device_id TEXT PRIMARY KEY,
	payload   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sync_events (
	id      TEXT PRIMARY KEY,
	ts      INTEGER NOT NULL,
	payload TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sync_events_ts ON sync_events(ts);
`

// Store implements outbound.DurableStore on a single SQLite file.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) the database at path and applies the schema.
// An open or schema failure here is fatal to the engine.
func Open(path string, logger *slog.Logger) (*Store, error) {
	// busy_timeout guards against transient locking from leftover handles.
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open durable store: %w", err)
	}
	// One writer per device; a single connection sidesteps SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply durable store schema: %w", err)
	}

	logger.Debug("durable store opened", "path", path)
	return &Store{db: db, logger: logger}, nil
}

// PutSession upserts a session record.
func (s *Store) PutSession(ctx context.Context, sess *session.AuthSession) error {
	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", sess.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, device_id, context_id, status, expires_at, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			device_id = excluded.device_id,
			context_id = excluded.context_id,
			status = excluded.status,
			expires_at = excluded.expires_at,
			payload = excluded.payload`,
		sess.ID, sess.UserID, sess.DeviceID, sess.ContextID(),
		string(sess.Status), sess.ExpiresAt.UnixMilli(), string(payload))
	if err != nil {
		return fmt.Errorf("persist session %s: %w", sess.ID, err)
	}
	return nil
}

// DeleteSession removes a session record. Absent ids are a no-op.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return nil
}

// AllSessions returns every persisted session record.
func (s *Store) AllSessions(ctx context.Context) ([]*session.AuthSession, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM sessions`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []*session.AuthSession
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		var sess session.AuthSession
		if err := json.Unmarshal([]byte(payload), &sess); err != nil {
			// A corrupt row should not block boot; skip and keep going.
			s.logger.Warn("skipping corrupt session row", "error", err)
			continue
		}
		out = append(out, &sess)
	}
	return out, rows.Err()
}

// PutDevice upserts a device record.
func (s *Store) PutDevice(ctx context.Context, d *device.DeviceSession) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal device %s: %w", d.DeviceID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO devices (device_id, payload) VALUES (?, ?)
		ON CONFLICT(device_id) DO UPDATE SET payload = excluded.payload`,
		d.DeviceID, string(payload))
	if err != nil {
		return fmt.Errorf("persist device %s: %w", d.DeviceID, err)
	}
	return nil
}

// AllDevices returns every persisted device record.
func (s *Store) AllDevices(ctx context.Context) ([]*device.DeviceSession, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM devices`)
	if err != nil {
		return nil, fmt.Errorf("query devices: %w", err)
	}
	defer rows.Close()

	var out []*device.DeviceSession
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan device row: %w", err)
		}
		var d device.DeviceSession
		if err := json.Unmarshal([]byte(payload), &d); err != nil {
			s.logger.Warn("skipping corrupt device row", "error", err)
			continue
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}

// AppendEvent appends to the sync_events collection.
func (s *Store) AppendEvent(ctx context.Context, e *synclog.SyncEvent) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", e.ID, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO sync_events (id, ts, payload) VALUES (?, ?, ?)`,
		e.ID, e.Timestamp.UnixMilli(), string(payload))
	if err != nil {
		return fmt.Errorf("append event %s: %w", e.ID, err)
	}
	return nil
}

// RecentEvents returns up to n events, newest first.
func (s *Store) RecentEvents(ctx context.Context, n int) ([]*synclog.SyncEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM sync_events ORDER BY ts DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []*synclog.SyncEvent
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		var e synclog.SyncEvent
		if err := json.Unmarshal([]byte(payload), &e); err != nil {
			s.logger.Warn("skipping corrupt event row", "error", err)
			continue
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Compile-time interface verification.
var _ outbound.DurableStore = (*Store)(nil)
