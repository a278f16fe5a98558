// Package sqlite implements the relational record store and its companion
// vector index on a single SQLite database with the sqlite-vec extension.
//
// All access goes through one connection (SetMaxOpenConns(1)): concurrent
// callers are serialized by database/sql, so every operation is atomic
// relative to the others without external locking.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spetr/mcp-knowledge/pkg/types"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	"github.com/mattn/go-sqlite3"
)

var (
	// Ensure sqlite-vec Auto() is called exactly once before any db connection
	vecAutoOnce sync.Once
)

// timeLayout is the canonical timestamp format, matching what SQLite's
// CURRENT_TIMESTAMP produces. All stored times are UTC.
const timeLayout = "2006-01-02 15:04:05"

// DefaultDimensions matches text-embedding-ada-002.
const DefaultDimensions = 1536

// Store owns the SQLite connection shared by the relational tables and the
// vector index. The embedding dimension is fixed when the store is opened.
type Store struct {
	db   *sql.DB
	path string
	dims int
}

// Open opens (creating if necessary) the database at path with vector tables
// of the given dimension. dims <= 0 selects DefaultDimensions.
func Open(path string, dims int) (*Store, error) {
	if dims <= 0 {
		dims = DefaultDimensions
	}

	// Register sqlite-vec extension before opening any database connection.
	// This must be called once before sql.Open() to ensure vec_* functions are available.
	vecAutoOnce.Do(func() {
		sqlite_vec.Auto()
	})

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	// WAL mode for concurrent reads, busy_timeout to wait for locks instead of
	// failing immediately, foreign_keys so bad channel/account ids are rejected.
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single logical connection: every operation is serialized onto it.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("SELECT vec_version()"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite-vec extension not available: %w", err)
	}

	s := &Store{db: db, path: path, dims: dims}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return s, nil
}

// createSchema creates all necessary tables.
func (s *Store) createSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS accounts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			source TEXT NOT NULL,
			source_id TEXT NOT NULL UNIQUE,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_accounts_source ON accounts(source, source_id)`)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS channels (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			channel_id TEXT NOT NULL UNIQUE,
			kind TEXT NOT NULL,
			name TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_channels_id_kind ON channels(channel_id, kind)`)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			channel_id INTEGER NOT NULL,
			account_id INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			reply_to_id INTEGER,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (channel_id) REFERENCES channels(id),
			FOREIGN KEY (account_id) REFERENCES accounts(id)
		)
	`)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_messages_channel ON messages(channel_id)`)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_messages_account ON messages(account_id)`)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS documents (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			doc_id TEXT NOT NULL UNIQUE,
			content TEXT NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_documents_doc_id ON documents(doc_id)`)
	if err != nil {
		return err
	}

	// Companion vector tables, keyed back to the owning row through row_id.
	// A row may own several vectors (chunked documents).
	for _, table := range []string{docVectorTable, msgVectorTable} {
		_, err = s.db.Exec(fmt.Sprintf(`
			CREATE VIRTUAL TABLE IF NOT EXISTS %s USING vec0(
				embedding float[%d],
				+row_id INTEGER
			)
		`, table, s.dims))
		if err != nil {
			return fmt.Errorf("failed to create vector table %s: %w", table, err)
		}
	}

	return nil
}

// Dimensions returns the embedding dimension the store was opened with.
func (s *Store) Dimensions() int {
	return s.dims
}

// Begin opens a write transaction. The caller must commit or roll back.
func (s *Store) Begin(ctx context.Context) (*sql.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return tx, nil
}

// Close releases resources and closes the connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Stats returns row counts and database size.
func (s *Store) Stats() (*types.StoreStats, error) {
	stats := &types.StoreStats{}

	counts := []struct {
		query string
		dest  *int64
	}{
		{"SELECT COUNT(*) FROM accounts", &stats.Accounts},
		{"SELECT COUNT(*) FROM channels", &stats.Channels},
		{"SELECT COUNT(*) FROM messages", &stats.Messages},
		{"SELECT COUNT(*) FROM documents", &stats.Documents},
		{"SELECT COUNT(*) FROM " + docVectorTable, &stats.DocVectors},
		{"SELECT COUNT(*) FROM " + msgVectorTable, &stats.MsgVectors},
	}
	for _, c := range counts {
		if err := s.db.QueryRow(c.query).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("stats query failed: %w", err)
		}
	}

	if info, err := os.Stat(s.path); err == nil {
		stats.DBSizeBytes = info.Size()
	}

	return stats, nil
}

// wrapErr wraps store errors, tagging constraint violations so callers can
// branch with errors.Is(err, types.ErrConstraint) without importing the driver.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var serr sqlite3.Error
	if errors.As(err, &serr) && serr.Code == sqlite3.ErrConstraint {
		return fmt.Errorf("%s: %w: %v", op, types.ErrConstraint, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsConstraintViolation reports whether err is a foreign key or uniqueness
// breach.
func IsConstraintViolation(err error) bool {
	if errors.Is(err, types.ErrConstraint) {
		return true
	}
	var serr sqlite3.Error
	return errors.As(err, &serr) && serr.Code == sqlite3.ErrConstraint
}

// formatTime renders a timestamp the way CURRENT_TIMESTAMP stores it, so
// string comparison in SQL matches chronological order.
func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
