// Package ledger records the remote state of published notes and every
// publish attempt in SQLite.
package ledger

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS publications (
	path          TEXT NOT NULL,
	publication   TEXT NOT NULL,
	draft_id      TEXT NOT NULL DEFAULT '',
	title         TEXT NOT NULL DEFAULT '',
	canonical_url TEXT NOT NULL DEFAULT '',
	body_checksum TEXT NOT NULL DEFAULT '',
	published     INTEGER NOT NULL DEFAULT 0,
	updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (path, publication)
);

CREATE TABLE IF NOT EXISTS attempts (
	id              TEXT PRIMARY KEY,
	path            TEXT NOT NULL,
	publication     TEXT NOT NULL DEFAULT '',
	title           TEXT NOT NULL DEFAULT '',
	draft_id        TEXT NOT NULL DEFAULT '',
	created         INTEGER NOT NULL DEFAULT 0,
	published       INTEGER NOT NULL DEFAULT 0,
	outcome         TEXT NOT NULL,
	error           TEXT NOT NULL DEFAULT '',
	images_uploaded INTEGER NOT NULL DEFAULT 0,
	image_errors    INTEGER NOT NULL DEFAULT 0,
	started_at      DATETIME NOT NULL,
	finished_at     DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_attempts_path ON attempts(path);
CREATE INDEX IF NOT EXISTS idx_attempts_started ON attempts(started_at);
`

// DB wraps a sql.DB with ledger operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the ledger database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("ledger: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ledger: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ledger: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// PingContext reports whether the database is reachable.
func (db *DB) PingContext(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}
