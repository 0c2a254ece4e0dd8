// Package sqlite implements the repository interfaces using SQLite as the
// storage backend.
//
// WHY SQLITE?
// SQLite is an embedded database — it lives inside the Go binary as a single
// file. No separate database server to install, configure, or manage. That
// suits a single-writer batch system like this one: the reconciler is one
// process, and WAL mode lets API reads proceed while it writes.
//
// WHY modernc.org/sqlite INSTEAD OF github.com/mattn/go-sqlite3?
// mattn/go-sqlite3 uses CGo, which needs a C compiler and makes
// cross-compilation painful. modernc.org/sqlite is a pure Go translation of
// the SQLite sources — works everywhere Go works.
//
// The uniqueness invariant on contribution claims lives HERE, as two compound
// UNIQUE indexes, not in application code. Concurrent submissions of the same
// claim are possible, and only the storage layer can referee that race.
package sqlite

import (
	"database/sql"
	"fmt"
	"strings"

	// Blank import: the driver registers itself with database/sql under the
	// name "sqlite" in its init().
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool and implements the repository interfaces
// (ContributionRepository, UserRepository, RepoCatalog).
type DB struct {
	conn *sql.DB
}

// New creates a new SQLite database connection and runs migrations.
//
// dbPath examples:
//   - "data/contribtrack.db"  → file-based database (persistent)
//   - ":memory:"              → in-memory database (tests, lost on close)
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Ping forces an immediate connection so a bad path or permissions issue
	// surfaces now instead of on the first query.
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL mode allows concurrent reads while a write is in progress —
	// needed so API reads don't block behind a reconciliation run.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
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

// migrate creates the schema. CREATE TABLE IF NOT EXISTS is idempotent, so
// running this on an existing database is safe.
func (db *DB) migrate() error {
	// Participants + their ledgers. The ledger lists (merged_prs,
	// cancelled_prs) and badges are stored as JSON text: they are only ever
	// read and written whole, by the reconciler, so there is nothing to gain
	// from normalising them into their own tables.
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			github_id     INTEGER NOT NULL UNIQUE,
			login         TEXT NOT NULL,
			email         TEXT NOT NULL DEFAULT '',
			avatar_url    TEXT NOT NULL DEFAULT '',
			points        INTEGER NOT NULL DEFAULT 0,
			badges        TEXT NOT NULL DEFAULT '[]',
			merged_prs    TEXT NOT NULL DEFAULT '[]',
			cancelled_prs TEXT NOT NULL DEFAULT '[]',
			created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_users_login  ON users(login);
		CREATE INDEX IF NOT EXISTS idx_users_points ON users(points);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	// Pending-contribution claims. The two compound UNIQUE indexes enforce
	// the claim-uniqueness invariant under BOTH identity conventions: sync
	// jobs key rows by numeric GitHub ID, manual submissions sometimes only
	// carry the login. Either way, the same PR can be claimed once.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS contributions (
			id               TEXT PRIMARY KEY,
			user_key         TEXT NOT NULL,
			username         TEXT NOT NULL,
			repo_url         TEXT NOT NULL,
			pr_number        INTEGER NOT NULL,
			title            TEXT NOT NULL DEFAULT '',
			merged_at        DATETIME NOT NULL,
			suggested_points INTEGER NOT NULL,
			status           TEXT NOT NULL DEFAULT 'pending',
			reviewed_by      TEXT NOT NULL DEFAULT '',
			reviewed_at      DATETIME,
			rejection_reason TEXT NOT NULL DEFAULT '',
			submitted_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_contributions_claim_key
			ON contributions(user_key, repo_url, pr_number);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_contributions_claim_login
			ON contributions(username, repo_url, pr_number);
		CREATE INDEX IF NOT EXISTS idx_contributions_status
			ON contributions(status);
	`)
	if err != nil {
		return fmt.Errorf("creating contributions table: %w", err)
	}

	// Registered-repository point policies.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS registered_repos (
			id          TEXT PRIMARY KEY,
			url         TEXT NOT NULL UNIQUE,
			point_value INTEGER NOT NULL DEFAULT 50,
			approved    INTEGER NOT NULL DEFAULT 1,
			created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating registered_repos table: %w", err)
	}

	return nil
}

// isUniqueViolation reports whether err is SQLite's UNIQUE-constraint error.
// modernc.org/sqlite surfaces it as a generic error whose message carries
// "UNIQUE constraint failed: <table>.<column>", so string matching is the
// practical test.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
