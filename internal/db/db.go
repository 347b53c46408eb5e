// Package db provides the SQLite-backed cache leadsync reconciles against.
//
// The cache holds everything that must survive between runs of the batch job:
//   - contacts: CRM contacts per location, queried by phone, email or name
//   - locations: lead data sheet link and per-location sync status
//   - tokens: CRM OAuth credentials per location
//   - sync_runs: one summary row per reconciliation run
//
// Every write is an upsert on the record's natural key, so replaying an
// ingestion or a directory load never duplicates rows.
//
// The database uses WAL mode so `leadsync status` can read while a run writes.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// DB wraps the SQLite connection used as the local contact and state cache.
type DB struct {
	conn *sql.DB
	path string
}

// Open creates a new database connection at the specified path.
//
// If the database doesn't exist it is created. Callers must call InitSchema
// before use and Close when done.
//
// Example:
//
//	store, err := db.Open(".leadsync/leadsync.db")
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Pragmas go in the DSN so every pooled connection gets them.
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// The job is sequential; a small pool is enough for the status command
	// reading alongside a running reconcile.
	conn.SetMaxOpenConns(4)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{
		conn: conn,
		path: path,
	}

	return db, nil
}

// Path returns the file path the database was opened with.
func (db *DB) Path() string {
	return db.path
}

// Ping checks that the database is still reachable.
func (db *DB) Ping(ctx context.Context) error {
	if db.conn == nil {
		return fmt.Errorf("database is closed")
	}
	return db.conn.PingContext(ctx)
}

// Close checkpoints the WAL and closes the connection.
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
// This is idempotent - safe to call on every start.
func (db *DB) InitSchema() error {
	return db.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the database schema with context support.
func (db *DB) InitSchemaContext(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS locations (
		id TEXT PRIMARY KEY,
		lead_sheet_link TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'not_started',
		last_error TEXT NOT NULL DEFAULT '',
		attempts INTEGER NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS contacts (
		id TEXT PRIMARY KEY,
		location_id TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		first_name TEXT NOT NULL DEFAULT '',
		last_name TEXT NOT NULL DEFAULT '',

		-- Comparison keys for the name tier: lower-cased, trailing space removed
		first_name_key TEXT NOT NULL DEFAULT '',
		last_name_key TEXT NOT NULL DEFAULT '',

		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tokens (
		user_type TEXT NOT NULL DEFAULT '',
		company_id TEXT NOT NULL DEFAULT '',
		location_id TEXT NOT NULL,
		access_token TEXT NOT NULL,
		refresh_token TEXT NOT NULL DEFAULT '',
		scope TEXT NOT NULL DEFAULT '',
		expires_at TEXT,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (user_type, company_id, location_id)
	);

	CREATE TABLE IF NOT EXISTS sync_runs (
		run_id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		done INTEGER NOT NULL DEFAULT 0,
		errored INTEGER NOT NULL DEFAULT 0,
		skipped INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_locations_status ON locations(status);
	CREATE INDEX IF NOT EXISTS idx_contacts_phone ON contacts(location_id, phone) WHERE phone != '';
	CREATE INDEX IF NOT EXISTS idx_contacts_email ON contacts(location_id, email) WHERE email != '';
	CREATE INDEX IF NOT EXISTS idx_contacts_name ON contacts(location_id, first_name_key, last_name_key);
	CREATE INDEX IF NOT EXISTS idx_tokens_location ON tokens(location_id);
	`

	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// timeToNullString converts a time to a nullable RFC3339 string for SQL.
func timeToNullString(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

// nullStringToTime parses a nullable RFC3339 column. Invalid values yield the zero time.
func nullStringToTime(ns sql.NullString) time.Time {
	if !ns.Valid {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, ns.String)
	if err != nil {
		return time.Time{}
	}
	return t
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
