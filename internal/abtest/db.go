package abtest

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// Open opens (creating if needed) the test-tracking database and applies
// migrations.
func Open(path string) (*sql.DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

func migrate(db *sql.DB) error {
	migrations := []string{
		migrationTests,
		migrationVariants,
		migrationSends,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

const migrationTests = `
CREATE TABLE IF NOT EXISTS tests (
    test_id TEXT PRIMARY KEY,
    test_name TEXT NOT NULL,
    variant_type TEXT NOT NULL,
    status TEXT DEFAULT 'running',
    winner_id TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

const migrationVariants = `
CREATE TABLE IF NOT EXISTS variants (
    variant_id TEXT PRIMARY KEY,
    test_id TEXT NOT NULL REFERENCES tests(test_id) ON DELETE CASCADE,
    ordinal INTEGER NOT NULL,
    content TEXT NOT NULL,
    sends INTEGER DEFAULT 0,
    opens INTEGER DEFAULT 0,
    replies INTEGER DEFAULT 0,
    positive_replies INTEGER DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_variants_test_id ON variants(test_id);
`

const migrationSends = `
CREATE TABLE IF NOT EXISTS sends (
    send_id TEXT PRIMARY KEY,
    variant_id TEXT NOT NULL REFERENCES variants(variant_id),
    recipient TEXT NOT NULL,
    sent_at TIMESTAMP NOT NULL,
    opened_at TIMESTAMP,
    replied_at TIMESTAMP,
    reply_sentiment TEXT
);
CREATE INDEX IF NOT EXISTS idx_sends_variant_id ON sends(variant_id);
CREATE INDEX IF NOT EXISTS idx_sends_recipient ON sends(recipient);
`
