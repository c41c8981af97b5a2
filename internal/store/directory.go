package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Directory entry kinds
const (
	KindGroup   = "group"
	KindContact = "contact"
)

// DirectoryEntry is a cached record of a chat visible to the live session.
// Entries are owned by the directory sync; the resolver only reads them.
// Stale entries persist until overwritten by a later sync pass.
type DirectoryEntry struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Kind     string    `json:"kind"`
	Members  int       `json:"members,omitempty"`
	SyncedAt time.Time `json:"syncedAt"`
}

// UpsertDirectoryEntry inserts or refreshes a directory entry by id. The
// sqlite upsert keeps the original rowid, so discovery order is stable across
// sync passes.
func (s *Store) UpsertDirectoryEntry(e *DirectoryEntry) error {
	if e.SyncedAt.IsZero() {
		e.SyncedAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO directory_entries (id, name, kind, members_count, synced_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, kind = excluded.kind,
			members_count = excluded.members_count, synced_at = excluded.synced_at`,
		e.ID, e.Name, e.Kind, e.Members, e.SyncedAt.Unix())
	if err != nil {
		return fmt.Errorf("upsert directory entry: %w", err)
	}
	return nil
}

// GetDirectoryEntry returns the entry with the given chat id, or nil if absent.
func (s *Store) GetDirectoryEntry(id string) (*DirectoryEntry, error) {
	var e DirectoryEntry
	var syncedAt int64
	err := s.db.QueryRow(`
		SELECT id, name, kind, members_count, synced_at FROM directory_entries WHERE id = ?`, id).
		Scan(&e.ID, &e.Name, &e.Kind, &e.Members, &syncedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan directory entry: %w", err)
	}
	e.SyncedAt = time.Unix(syncedAt, 0)
	return &e, nil
}

// ListDirectory returns all entries of a kind in discovery order (first seen
// first), which is the order positional descriptors index into.
func (s *Store) ListDirectory(kind string) ([]*DirectoryEntry, error) {
	rows, err := s.db.Query(`
		SELECT id, name, kind, members_count, synced_at FROM directory_entries
		WHERE kind = ? ORDER BY rowid`, kind)
	if err != nil {
		return nil, fmt.Errorf("query directory: %w", err)
	}
	defer rows.Close()

	var out []*DirectoryEntry
	for rows.Next() {
		var e DirectoryEntry
		var syncedAt int64
		if err := rows.Scan(&e.ID, &e.Name, &e.Kind, &e.Members, &syncedAt); err != nil {
			return nil, fmt.Errorf("scan directory entry: %w", err)
		}
		e.SyncedAt = time.Unix(syncedAt, 0)
		out = append(out, &e)
	}
	return out, rows.Err()
}

// CountDirectory returns the number of cached entries of a kind.
func (s *Store) CountDirectory(kind string) (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM directory_entries WHERE kind = ?`, kind).Scan(&n); err != nil {
		return 0, fmt.Errorf("count directory: %w", err)
	}
	return n, nil
}
