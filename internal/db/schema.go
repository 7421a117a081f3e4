// Package db provides SQLite database management for the local operator state.
// A single append-only audit database lives in the state directory.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

const AuditDBFile = "audit.db"

// AuditSchema defines the append-only audit log table.
const AuditSchema = `
PRAGMA journal_mode=WAL;

CREATE TABLE IF NOT EXISTS audit_log (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp       TEXT NOT NULL,
    operator        TEXT NOT NULL DEFAULT '',
    event_type      TEXT NOT NULL,
    environment     TEXT DEFAULT '',
    request_id      TEXT DEFAULT '',
    detail          TEXT DEFAULT '{}',
    record_hash     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_event_type ON audit_log(event_type);
CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_log(timestamp);
CREATE INDEX IF NOT EXISTS idx_audit_operator ON audit_log(operator);
`

// OpenAuditDB opens or creates the audit database in stateDir.
func OpenAuditDB(stateDir string) (*sql.DB, error) {
	if err := EnsureStateDir(stateDir); err != nil {
		return nil, err
	}

	dbPath := filepath.Join(stateDir, AuditDBFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("opening audit db: %w", err)
	}

	if _, err := db.Exec(AuditSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing audit schema: %w", err)
	}

	return db, nil
}

// EnsureStateDir creates the state directory with owner-only permissions.
func EnsureStateDir(path string) error {
	if err := os.MkdirAll(path, 0700); err != nil {
		return fmt.Errorf("creating directory %s: %w", path, err)
	}
	return nil
}
