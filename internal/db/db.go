// Package db is the local embedded store for todos, categories and their
// history.
//
// The database is a single SQLite file opened through the ncruces driver
// in WAL mode, so the CLI and a running daemon can read concurrently while
// SQLite's own file locking serializes writers. There is no application
// level lock between processes.
//
// Tables:
//   - categories, todos: current-state rows with updated_at and sync_status
//   - operations: append-only history, newest-first indexes on (created_at, seq)
//   - stash: entities temporarily removed from the store, one row per entity id
//   - tombstones: locally deleted ids not yet confirmed deleted by the remote
//   - sync_state: download checkpoints
//
// Every mutation that must be paired with a history entry runs inside
// Atomic, which commits both or neither.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

var (
	// ErrNotFound is returned when no row exists for the requested id.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyStashed is returned when a stash entry already exists for an id.
	ErrAlreadyStashed = errors.New("already stashed")
)

// querier is the subset of *sql.DB and *sql.Tx used by Queries.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries runs statements against either the pool or an open transaction.
type Queries struct {
	q   querier
	now func() time.Time
}

// DB wraps the SQLite connection pool.
type DB struct {
	*Queries

	conn *sql.DB
	path string
}

// Open creates a new database connection at the specified path.
//
// If the database doesn't exist, it is created. The schema is initialized
// before Open returns.
//
// The caller MUST call Close() when done.
//
// Example:
//
//	database, err := db.Open(filepath.Join(dir, "cache.db"))
//	if err != nil {
//	    return err
//	}
//	defer database.Close()
func Open(path string) (*DB, error) {
	return OpenContext(context.Background(), path)
}

// OpenContext opens the database with context support.
func OpenContext(ctx context.Context, path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Pragmas in the DSN apply to every pooled connection.
	connStr := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_txlock=immediate", path)
	conn, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{
		Queries: &Queries{q: conn, now: utcNow},
		conn:    conn,
		path:    path,
	}

	if _, err := db.conn.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if err := db.InitSchemaContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// SetClock replaces the time source used to stamp rows. Tests use it to get
// deterministic timestamps.
func (db *DB) SetClock(now func() time.Time) {
	db.Queries.now = func() time.Time { return now().UTC() }
}

// RawDB returns the underlying sql.DB connection.
func (db *DB) RawDB() *sql.DB {
	return db.conn
}

// Close closes the database connection.
// Performs a WAL checkpoint to ensure all changes are persisted.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	db.conn = nil
	return nil
}

// InitSchema creates the database schema if it doesn't exist.
// This is idempotent - safe to call multiple times.
func (db *DB) InitSchema() error {
	return db.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the database schema with context support.
func (db *DB) InitSchemaContext(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS categories (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		color TEXT,
		is_ai_generated INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		sync_status TEXT NOT NULL DEFAULT 'pending'
	);

	CREATE TABLE IF NOT EXISTS todos (
		id TEXT PRIMARY KEY,
		category_id TEXT,
		title TEXT NOT NULL,
		description TEXT,
		due_date TEXT,
		reminder_at TEXT,
		priority INTEGER NOT NULL DEFAULT 2,
		is_completed INTEGER NOT NULL DEFAULT 0,
		completed_at TEXT,
		ai_metadata TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		sync_status TEXT NOT NULL DEFAULT 'pending'
	);

	CREATE TABLE IF NOT EXISTS operations (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		operation_type TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		previous_state TEXT,
		new_state TEXT,
		note TEXT,
		created_at TEXT NOT NULL,
		undone INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS stash (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		entity_id TEXT NOT NULL UNIQUE,
		entity_type TEXT NOT NULL,
		snapshot TEXT NOT NULL,
		message TEXT,
		stashed_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tombstones (
		entity_id TEXT PRIMARY KEY,
		entity_type TEXT NOT NULL,
		deleted_at TEXT NOT NULL,
		confirmed_at TEXT
	);

	CREATE TABLE IF NOT EXISTS sync_state (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_todos_due_date ON todos(due_date);
	CREATE INDEX IF NOT EXISTS idx_todos_sync_status ON todos(sync_status);
	CREATE INDEX IF NOT EXISTS idx_todos_category ON todos(category_id);
	CREATE INDEX IF NOT EXISTS idx_categories_sync_status ON categories(sync_status);

	CREATE INDEX IF NOT EXISTS idx_operations_created
	    ON operations(created_at DESC, seq DESC);
	CREATE INDEX IF NOT EXISTS idx_operations_undone
	    ON operations(undone, created_at DESC, seq DESC);
	`

	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// Atomic runs fn inside a single transaction.
//
// Once the transaction has begun it is detached from ctx cancellation: a
// mutation and its history entry either both commit or both roll back, and
// an interrupt cannot split them. fn receives the detached context.
func (db *DB) Atomic(ctx context.Context, fn func(ctx context.Context, q *Queries) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ctx = context.WithoutCancel(ctx)

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, &Queries{q: tx, now: db.Queries.now}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Now returns the current time from the clock the Queries were built with.
func (q *Queries) Now() time.Time {
	return q.now()
}

func utcNow() time.Time {
	return time.Now().UTC()
}
