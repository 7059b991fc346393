// Package store provides the local SQLite database for the aio desktop client.
//
// The store holds the three-level chat hierarchy (assistants, topics, messages)
// plus a small key-value table used by the sync engine for its watermark. Rows
// are never physically removed during normal operation: deletion sets the
// is_deleted tombstone flag and bumps updated_at so the deletion can propagate
// through sync.
//
// All access to the store goes through a single process-wide mutex. CRUD
// methods lock internally; the sync engine uses With to run a whole phase
// (watermark read + change collection, or change application + watermark
// advance) under one acquisition. The lock is never held across network I/O.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// TimeLayout is the timestamp format used throughout the store. It matches
// SQLite's CURRENT_TIMESTAMP output, so string comparison orders correctly.
const TimeLayout = "2006-01-02 15:04:05"

// Clock abstracts time retrieval so row timestamps are deterministic in tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Store wraps the SQLite connection for the chat history database.
type Store struct {
	mu    sync.Mutex
	conn  *sql.DB
	path  string
	clock Clock
}

// Open creates a new database connection at the specified path.
//
// The parent directory is created if needed. The caller MUST call Close()
// when done.
//
// Example:
//
//	st, err := store.Open(filepath.Join(dataDir, "chat_history.db"))
//	if err != nil {
//	    return err
//	}
//	defer st.Close()
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetConnMaxLifetime(5 * time.Minute)

	st := &Store{
		conn:  conn,
		path:  path,
		clock: systemClock{},
	}

	// Enable WAL mode for concurrent reads
	if _, err := st.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := st.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if _, err := st.conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return st, nil
}

// Close closes the database connection.
// Performs a WAL checkpoint to ensure all changes are persisted.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}

	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	s.conn = nil
	return nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// With runs fn with the store lock held, passing the raw connection.
//
// This is the lock-scoped accessor used by the sync engine: acquire, act,
// release. fn must not retain the connection and must not perform network
// I/O while the lock is held.
func (s *Store) With(fn func(conn *sql.DB) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.conn)
}

// InitSchema creates the database schema if it doesn't exist.
//
// This creates the assistants, topics, messages and sync_metadata tables
// along with indexes used by change collection. Idempotent - safe to call
// multiple times.
func (s *Store) InitSchema() error {
	return s.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the database schema with context support.
func (s *Store) InitSchemaContext(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	schema := `
	CREATE TABLE IF NOT EXISTS assistants (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		prompt TEXT,
		updated_at TEXT NOT NULL DEFAULT (datetime('now')),
		is_deleted INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS topics (
		id TEXT PRIMARY KEY,
		assistant_id TEXT NOT NULL,
		name TEXT NOT NULL,
		summary TEXT,
		updated_at TEXT NOT NULL DEFAULT (datetime('now')),
		is_deleted INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY(assistant_id) REFERENCES assistants(id)
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		topic_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		model_id TEXT,
		display_files TEXT,
		display_text TEXT,
		timestamp TEXT NOT NULL DEFAULT (datetime('now')),
		updated_at TEXT NOT NULL DEFAULT (datetime('now')),
		is_deleted INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY(topic_id) REFERENCES topics(id)
	);

	-- Sync state, kept in the same database so backup/restore carries it along
	CREATE TABLE IF NOT EXISTS sync_metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	-- Indexes for change collection (updated_at > watermark)
	CREATE INDEX IF NOT EXISTS idx_assistants_updated ON assistants(updated_at);
	CREATE INDEX IF NOT EXISTS idx_topics_updated ON topics(updated_at);
	CREATE INDEX IF NOT EXISTS idx_messages_updated ON messages(updated_at);

	CREATE INDEX IF NOT EXISTS idx_topics_assistant ON topics(assistant_id);
	CREATE INDEX IF NOT EXISTS idx_messages_topic ON messages(topic_id);
	`

	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// GetMeta returns the value stored under key in sync_metadata.
// Returns defaultValue if the key has never been written.
func (s *Store) GetMeta(ctx context.Context, key, defaultValue string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var value string
	err := s.conn.QueryRowContext(ctx,
		"SELECT value FROM sync_metadata WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return defaultValue, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read metadata %s: %w", key, err)
	}
	return value, nil
}

// SetMeta stores value under key in sync_metadata, replacing any prior value.
func (s *Store) SetMeta(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.conn.ExecContext(ctx,
		"INSERT OR REPLACE INTO sync_metadata (key, value) VALUES (?, ?)", key, value)
	if err != nil {
		return fmt.Errorf("failed to write metadata %s: %w", key, err)
	}
	return nil
}

// now returns the current time formatted for storage.
func (s *Store) now() string {
	return s.clock.Now().UTC().Format(TimeLayout)
}
