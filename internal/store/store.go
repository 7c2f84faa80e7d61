// Package store provides durable storage for task and user records on an
// embedded SQLite database.
//
// The database runs in embedded mode using the ncruces/go-sqlite3 driver
// with WAL enabled for concurrent readers during writes. A `libsql://` URL
// selects the libSQL driver instead, for a remote/hosted database.
//
// Tasks carry a version column used as a compare-and-swap token: every
// successful mutation increments it by exactly one, and conditional updates
// are rejected atomically when the caller's expected version is stale.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	_ "github.com/tursodatabase/go-libsql"
)

// Store wraps the database connection.
type Store struct {
	conn *sql.DB
	path string
}

// Open creates a database connection for the given path.
//
// A plain filesystem path opens an embedded SQLite database (created on
// first use, parent directory included). A path starting with "libsql://"
// connects to a remote libSQL database instead.
//
// The caller MUST call Close() when done.
func Open(path string) (*Store, error) {
	var conn *sql.DB
	var err error

	if strings.HasPrefix(path, "libsql://") {
		conn, err = sql.Open("libsql", path)
		if err != nil {
			return nil, fmt.Errorf("failed to open libsql database: %w", err)
		}
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		conn, err = sql.Open("sqlite3", "file:"+path)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{conn: conn, path: path}

	if !strings.HasPrefix(path, "libsql://") {
		pragmas := []string{
			"PRAGMA journal_mode=WAL",
			"PRAGMA busy_timeout=5000",
			"PRAGMA foreign_keys=ON",
			"PRAGMA synchronous=NORMAL",
		}
		for _, pragma := range pragmas {
			if _, err := s.conn.Exec(pragma); err != nil {
				_ = s.Close()
				return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
			}
		}
	}

	return s, nil
}

// RawDB returns the underlying sql.DB connection.
func (s *Store) RawDB() *sql.DB {
	return s.conn
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	s.conn = nil
	return nil
}

// InitSchema creates the database schema if it doesn't exist.
// Idempotent - safe to call multiple times.
func (s *Store) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		password TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS todos (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT,
		status TEXT NOT NULL DEFAULT 'todo'
			CHECK (status IN ('todo','in_progress','done','archived')),
		priority INTEGER NOT NULL DEFAULT 3 CHECK (priority BETWEEN 1 AND 5),
		due_at TEXT,
		assignee INTEGER REFERENCES users(id) ON DELETE SET NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS todo_tags (
		todo_id TEXT NOT NULL,
		tag TEXT NOT NULL,
		PRIMARY KEY (todo_id, tag),
		FOREIGN KEY (todo_id) REFERENCES todos(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_todos_status ON todos(status);
	CREATE INDEX IF NOT EXISTS idx_todos_due_at ON todos(due_at);
	CREATE INDEX IF NOT EXISTS idx_todos_updated_at ON todos(updated_at);
	CREATE INDEX IF NOT EXISTS idx_todos_assignee ON todos(assignee);
	CREATE INDEX IF NOT EXISTS idx_tags_tag ON todo_tags(tag);
	`

	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// timeToNullString converts a time pointer to a nullable string for SQL.
func timeToNullString(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

// nullStringToTime converts a nullable SQL string to a time pointer.
func nullStringToTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339, ns.String)
	if err != nil {
		return nil
	}
	return &t
}
