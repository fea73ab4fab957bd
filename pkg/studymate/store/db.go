// Package store provides the central SQLite database for StudyMate.
// A single studymate.db file holds student profiles and the turn audit
// log. The WhatsApp session tables (whatsmeow_*) live in the same file
// when the channel is configured to share it.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3" // SQLite driver.
)

// schema is the DDL executed on every startup (idempotent via IF NOT EXISTS).
const schema = `
-- Student profiles (the profile gateway's backing table).
CREATE TABLE IF NOT EXISTS students (
    id           TEXT PRIMARY KEY,
    display_name TEXT DEFAULT '',
    status       TEXT NOT NULL DEFAULT 'active',
    credits      INTEGER NOT NULL DEFAULT 0,
    created_at   TEXT NOT NULL,
    updated_at   TEXT NOT NULL
);

-- Turn audit log (append-only, one row per resolved turn).
CREATE TABLE IF NOT EXISTS turns (
    id           TEXT PRIMARY KEY,
    student_id   TEXT NOT NULL,
    media_kind   TEXT NOT NULL,
    message_text TEXT DEFAULT '',
    intent       TEXT NOT NULL,
    result_type  TEXT NOT NULL,
    content      TEXT NOT NULL,
    delegated    INTEGER NOT NULL DEFAULT 0,
    created_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_turns_student ON turns(student_id, created_at);
`

// Open opens (or creates) the central studymate.db at the given path,
// enables WAL mode, and applies the schema.
func Open(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_foreign_keys=1&_journal_mode=WAL&_busy_timeout=5000", path))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return db, nil
}
