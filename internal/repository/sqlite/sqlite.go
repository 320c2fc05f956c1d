// Package sqlite implements repository.UserRepository on SQLite.
//
// WHY modernc.org/sqlite?
// It is a pure Go translation of SQLite: no CGo, no C compiler, and
// cross-compilation works like any other Go package.
//
// DATABASE/SQL OVERVIEW:
//   - sql.DB      a connection pool (NOT a single connection!)
//   - sql.Row     a single result row
//
// The pattern is always:
//  1. sql.Open(driverName, dataSourceName) creates a pool
//  2. db.QueryRowContext / db.ExecContext runs queries
//  3. row.Scan(&field1, &field2) reads results into Go variables
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// DB wraps a sql.DB connection pool and provides repository methods.
type DB struct {
	conn *sql.DB
}

// New creates a new SQLite database connection and runs migrations.
//
// dbPath examples:
//   - "data/videotube.db"  file-based database (persistent)
//   - ":memory:"           in-memory database (tests)
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Every pooled connection to ":memory:" would get its own empty database.
	if dbPath == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets readers proceed while a write is in progress.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	// Foreign keys are OFF by default in SQLite; watch_history relies on them.
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	// Concurrent writers wait instead of failing with SQLITE_BUSY.
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting busy timeout: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the schema. CREATE ... IF NOT EXISTS makes it safe to run
// on every start.
//
// username and email are UNIQUE: the store, not the application, is what
// guarantees no two accounts share either value.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			username      TEXT NOT NULL UNIQUE,
			email         TEXT NOT NULL UNIQUE,
			full_name     TEXT NOT NULL,
			avatar        TEXT NOT NULL,
			cover_image   TEXT NOT NULL DEFAULT '',
			password      TEXT NOT NULL,
			refresh_token TEXT,
			created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_users_full_name ON users(full_name);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS watch_history (
			user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			position   INTEGER NOT NULL,
			video_id   TEXT NOT NULL,
			PRIMARY KEY (user_id, position)
		);
	`)
	if err != nil {
		return fmt.Errorf("creating watch_history table: %w", err)
	}

	return nil
}

// uniqueViolation reports which column a UNIQUE constraint failure was on,
// or "" if err is not one.
//
// SQLite reports it as extended code SQLITE_CONSTRAINT_UNIQUE with a message
// like "UNIQUE constraint failed: users.email".
func uniqueViolation(err error) string {
	var se *sqlite.Error
	if !errors.As(err, &se) || se.Code() != sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return ""
	}
	msg := se.Error()
	switch {
	case strings.Contains(msg, "users.username"):
		return "username"
	case strings.Contains(msg, "users.email"):
		return "email"
	default:
		return "id"
	}
}
