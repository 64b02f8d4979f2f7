package localstore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/tally/internal/models"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// WriteHook is called after every successful Set or Delete.
type WriteHook func(key models.Key)

// Store is a Provider backed by a single SQLite table.
type Store struct {
	conn   *sql.DB
	logger *slog.Logger

	mu   sync.RWMutex
	hook WriteHook
}

var _ Provider = (*Store)(nil)

// Open opens (or creates) the SQLite database at dsn and applies the schema.
func Open(dsn string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("localstore: open db: %w", err)
	}
	// One writer keeps writes strictly ordered.
	conn.SetMaxOpenConns(1)
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("localstore: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("localstore: apply schema: %w", err)
	}
	return &Store{conn: conn, logger: logger}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// SetWriteHook registers the function fired after each write.
func (s *Store) SetWriteHook(h WriteHook) {
	s.mu.Lock()
	s.hook = h
	s.mu.Unlock()
}

func (s *Store) fire(key models.Key) {
	s.mu.RLock()
	h := s.hook
	s.mu.RUnlock()
	if h != nil {
		h(key)
	}
}

// Raw returns the stored JSON for key.
func (s *Store) Raw(key models.Key) (json.RawMessage, bool, error) {
	var v string
	err := s.conn.QueryRow(`SELECT value FROM kv WHERE key = ?`, string(key)).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		s.logger.Warn("localstore: read failed", slog.String("key", key.String()), slog.String("error", err.Error()))
		return nil, false, fmt.Errorf("localstore: read %s: %w", key, err)
	}
	if !json.Valid([]byte(v)) {
		s.logger.Warn("localstore: malformed value", slog.String("key", key.String()))
		return nil, false, nil
	}
	return json.RawMessage(v), true, nil
}

// Set encodes value, upserts it and fires the write hook.
func (s *Store) Set(key models.Key, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("localstore: encode %s: %w", key, err)
	}
	if _, err := s.conn.Exec(upsertSQL, string(key), string(data), time.Now().UTC()); err != nil {
		return fmt.Errorf("localstore: write %s: %w", key, err)
	}
	s.fire(key)
	return nil
}

// Delete removes key and fires the write hook.
func (s *Store) Delete(key models.Key) error {
	if _, err := s.conn.Exec(`DELETE FROM kv WHERE key = ?`, string(key)); err != nil {
		return fmt.Errorf("localstore: delete %s: %w", key, err)
	}
	s.fire(key)
	return nil
}

const upsertSQL = `
	INSERT INTO kv (key, value, updated_at)
	VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET
		value      = excluded.value,
		updated_at = excluded.updated_at
`

// Snapshot reads every synced key. Keys whose stored value is malformed are
// skipped so one bad entry cannot block replication of the rest.
func (s *Store) Snapshot() (models.Snapshot, error) {
	entries := make(map[models.Key]json.RawMessage)
	for _, k := range models.SyncedKeys() {
		raw, ok, err := s.Raw(k)
		if err != nil {
			return models.Snapshot{}, err
		}
		if !ok {
			continue
		}
		if _, err := models.SnapshotFromEntries(map[models.Key]json.RawMessage{k: raw}); err != nil {
			s.logger.Warn("localstore: skipping undecodable key", slog.String("key", k.String()), slog.String("error", err.Error()))
			continue
		}
		entries[k] = raw
	}
	return models.SnapshotFromEntries(entries)
}

// Apply writes every present key of snap in one transaction. It does not
// fire the write hook: applied data came from a remote store and must not
// bounce back to it.
func (s *Store) Apply(snap models.Snapshot) error {
	if err := snap.Validate(); err != nil {
		return fmt.Errorf("localstore: apply: %w", err)
	}
	entries, err := snap.Entries()
	if err != nil {
		return fmt.Errorf("localstore: apply: %w", err)
	}

	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("localstore: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	now := time.Now().UTC()
	for k, raw := range entries {
		if !k.Synced() {
			continue
		}
		if _, err := tx.Exec(upsertSQL, string(k), string(raw), now); err != nil {
			return fmt.Errorf("localstore: apply %s: %w", k, err)
		}
	}
	return tx.Commit()
}

// Keys returns every key currently stored.
func (s *Store) Keys() ([]models.Key, error) {
	rows, err := s.conn.Query(`SELECT key FROM kv ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("localstore: keys: %w", err)
	}
	defer rows.Close()
	var out []models.Key
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		out = append(out, models.Key(k))
	}
	return out, rows.Err()
}
