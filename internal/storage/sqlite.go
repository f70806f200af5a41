// Package storage persists swarm state in SQLite.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/ssd-technologies/swarmgov/internal/swarm"
)

// DB wraps a sql.DB connection to a SQLite database and implements
// swarm.Store.
type DB struct {
	db *sql.DB
}

var _ swarm.Store = (*DB)(nil)

// NewDB opens (or creates) a SQLite database at path and runs schema migrations.
func NewDB(path string) (*DB, error) {
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_txlock=immediate"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// A single connection serializes writers and keeps per-connection
	// pragmas in effect for every query.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	d := &DB{db: sqlDB}
	if err := d.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return d, nil
}

// Close closes the underlying database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping checks that the database is reachable.
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// migrate creates all required tables if they do not already exist.
func (d *DB) migrate() error {
	schema := `
CREATE TABLE IF NOT EXISTS swarm (
    key TEXT PRIMARY KEY,
    authority TEXT NOT NULL,
    max_agents INTEGER NOT NULL,
    active_agents INTEGER NOT NULL DEFAULT 0,
    min_votes_required INTEGER NOT NULL,
    proposal_timeout INTEGER NOT NULL,
    total_proposals INTEGER NOT NULL DEFAULT 0,
    executed_proposals INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS agents (
    key TEXT PRIMARY KEY,
    owner TEXT NOT NULL UNIQUE,
    agent_type TEXT NOT NULL,
    name TEXT NOT NULL,
    reputation INTEGER NOT NULL,
    proposals_created INTEGER NOT NULL DEFAULT 0,
    votes_cast INTEGER NOT NULL DEFAULT 0,
    successful_proposals INTEGER NOT NULL DEFAULT 0,
    registered_at INTEGER NOT NULL,
    last_active INTEGER NOT NULL,
    is_active INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS proposals (
    key TEXT PRIMARY KEY,
    id INTEGER NOT NULL UNIQUE,
    proposer TEXT NOT NULL,
    proposal_type TEXT NOT NULL,
    data BLOB,
    description TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    expires_at INTEGER NOT NULL,
    executed INTEGER NOT NULL DEFAULT 0,
    executed_at INTEGER NOT NULL DEFAULT 0,
    votes_for INTEGER NOT NULL DEFAULT 0,
    votes_against INTEGER NOT NULL DEFAULT 0,
    votes_abstain INTEGER NOT NULL DEFAULT 0,
    weighted_votes_for INTEGER NOT NULL DEFAULT 0,
    weighted_votes_against INTEGER NOT NULL DEFAULT 0,
    total_voters INTEGER NOT NULL DEFAULT 0,
    FOREIGN KEY (proposer) REFERENCES agents(owner)
);

CREATE TABLE IF NOT EXISTS ballots (
    proposal_key TEXT NOT NULL,
    proposal_id INTEGER NOT NULL,
    voter TEXT NOT NULL,
    choice TEXT NOT NULL,
    weight INTEGER NOT NULL,
    reasoning TEXT NOT NULL DEFAULT '',
    cast_at INTEGER NOT NULL,
    UNIQUE (proposal_key, voter),
    FOREIGN KEY (proposal_key) REFERENCES proposals(key),
    FOREIGN KEY (voter) REFERENCES agents(owner)
);

CREATE TABLE IF NOT EXISTS outcomes (
    key TEXT PRIMARY KEY,
    proposal_key TEXT NOT NULL UNIQUE,
    proposal_id INTEGER NOT NULL,
    executed_by TEXT NOT NULL,
    success INTEGER NOT NULL,
    metrics BLOB,
    executed_at INTEGER NOT NULL,
    FOREIGN KEY (proposal_key) REFERENCES proposals(key)
);

CREATE INDEX IF NOT EXISTS idx_ballots_proposal ON ballots(proposal_key);
`
	_, err := d.db.Exec(schema)
	return err
}

// Update runs fn in a read-write transaction, committing only if fn succeeds.
func (d *DB) Update(ctx context.Context, fn func(swarm.Tx) error) error {
	return d.run(ctx, true, fn)
}

// View runs fn in a transaction that is always rolled back.
func (d *DB) View(ctx context.Context, fn func(swarm.Tx) error) error {
	return d.run(ctx, false, fn)
}

func (d *DB) run(ctx context.Context, writable bool, fn func(swarm.Tx) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&sqlTx{ctx: ctx, tx: tx, writable: writable}); err != nil {
		return err
	}
	if !writable {
		return nil
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

var errReadOnly = errors.New("storage: write in read-only transaction")

// isUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY
// constraint failure.
func isUniqueViolation(err error) bool {
	var serr *sqlite.Error
	if !errors.As(err, &serr) {
		return false
	}
	switch serr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		return strings.Contains(serr.Error(), "UNIQUE constraint failed")
	}
	return false
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
