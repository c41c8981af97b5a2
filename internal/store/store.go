// Package store provides sqlite persistence for announcements, the delivery
// ledger, broadcast jobs, the chat directory cache, and templates.
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	. "github.com/user/wa-announcer/internal/logging"
	"github.com/user/wa-announcer/internal/paths"
)

// Store wraps the announcer database
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the announcer database at path and
// initializes the schema.
func Open(path string) (*Store, error) {
	if err := paths.EnsureParentDir(path); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	L_info("store: database ready", "path", path)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing database handle and initializes the schema.
// Used by tests.
func NewWithDB(db *sql.DB) (*Store, error) {
	if err := initSchema(db); err != nil {
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
