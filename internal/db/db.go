// Package db provides the SQLite connection and schema for treeremote.
package db

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite database connection
type DB struct {
	*sql.DB
}

// Open opens the database and initializes the schema
func Open(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &DB{db}, nil
}

// initSchema creates all required tables
func initSchema(db *sql.DB) error {
	// Command ledger - one row per command sent to the tree server
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS command_ledger (
			id TEXT PRIMARY KEY,
			command TEXT NOT NULL,
			path TEXT NOT NULL,
			source TEXT,
			timestamp INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			http_status INTEGER,
			payload TEXT,
			error TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_command_ledger_ts ON command_ledger(timestamp);
	`)
	if err != nil {
		return fmt.Errorf("failed to create command_ledger table: %w", err)
	}

	return nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}
