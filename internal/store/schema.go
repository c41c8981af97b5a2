package store

import (
	"database/sql"
	"fmt"

	. "github.com/user/wa-announcer/internal/logging"
)

// initSchema creates the announcer tables and indexes
func initSchema(db *sql.DB) error {
	L_debug("store: initializing schema")

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS announcements (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			original_input TEXT NOT NULL,
			formatted_content TEXT NOT NULL,
			ai_provider TEXT NOT NULL,
			formatting_time_ms INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'draft',
			created_at INTEGER NOT NULL,
			sent_at INTEGER
		)
	`); err != nil {
		return fmt.Errorf("create announcements table: %w", err)
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_announcements_user ON announcements(user_id)`); err != nil {
		return fmt.Errorf("create idx_announcements_user: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS delivery_records (
			id TEXT PRIMARY KEY,
			announcement_id TEXT NOT NULL,
			target_type TEXT NOT NULL,
			target_id TEXT NOT NULL,
			target_name TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'pending',
			error_detail TEXT,
			created_at INTEGER NOT NULL,
			sent_at INTEGER
		)
	`); err != nil {
		return fmt.Errorf("create delivery_records table: %w", err)
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_delivery_announcement ON delivery_records(announcement_id)`); err != nil {
		return fmt.Errorf("create idx_delivery_announcement: %w", err)
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_delivery_target ON delivery_records(target_id)`); err != nil {
		return fmt.Errorf("create idx_delivery_target: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS broadcast_jobs (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			announcement_id TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			recipients_count INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'sending',
			created_at INTEGER NOT NULL,
			completed_at INTEGER
		)
	`); err != nil {
		return fmt.Errorf("create broadcast_jobs table: %w", err)
	}

	// Chat directory cache. rowid preserves discovery order, which the
	// resolver relies on for positional indexing.
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS directory_entries (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			kind TEXT NOT NULL,
			members_count INTEGER NOT NULL DEFAULT 0,
			synced_at INTEGER NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("create directory_entries table: %w", err)
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_directory_kind ON directory_entries(kind)`); err != nil {
		return fmt.Errorf("create idx_directory_kind: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS templates (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			name TEXT NOT NULL,
			content TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT 'umum',
			usage_count INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			UNIQUE(user_id, name)
		)
	`); err != nil {
		return fmt.Errorf("create templates table: %w", err)
	}

	L_debug("store: schema ready")
	return nil
}
