package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Announcement statuses
const (
	AnnouncementDraft = "draft"
	AnnouncementSent  = "sent"
)

// Announcement is a raw user input plus its AI-formatted output.
// Immutable once formatted, except for the draft -> sent transition.
type Announcement struct {
	ID               string     `json:"id"`
	UserID           string     `json:"userId"`
	OriginalInput    string     `json:"originalInput"`
	FormattedContent string     `json:"formattedContent"`
	Provider         string     `json:"provider"`
	FormattingMs     int64      `json:"formattingMs"`
	Status           string     `json:"status"`
	CreatedAt        time.Time  `json:"createdAt"`
	SentAt           *time.Time `json:"sentAt,omitempty"`
}

// CreateAnnouncement inserts a new announcement in draft status.
func (s *Store) CreateAnnouncement(a *Announcement) error {
	if a.Status == "" {
		a.Status = AnnouncementDraft
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO announcements (id, user_id, original_input, formatted_content, ai_provider, formatting_time_ms, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.OriginalInput, a.FormattedContent, a.Provider, a.FormattingMs, a.Status, a.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("insert announcement: %w", err)
	}
	return nil
}

// GetAnnouncement returns the announcement with the given id, or nil if absent.
func (s *Store) GetAnnouncement(id string) (*Announcement, error) {
	row := s.db.QueryRow(`
		SELECT id, user_id, original_input, formatted_content, ai_provider, formatting_time_ms, status, created_at, sent_at
		FROM announcements WHERE id = ?`, id)
	return scanAnnouncement(row)
}

// ListAnnouncementsByUser returns a user's announcements, newest first.
func (s *Store) ListAnnouncementsByUser(userID string, limit int) ([]*Announcement, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, user_id, original_input, formatted_content, ai_provider, formatting_time_ms, status, created_at, sent_at
		FROM announcements WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query announcements: %w", err)
	}
	defer rows.Close()

	var out []*Announcement
	for rows.Next() {
		a, err := scanAnnouncement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// MarkAnnouncementSent transitions an announcement to sent and stamps sent_at.
func (s *Store) MarkAnnouncementSent(id string) error {
	_, err := s.db.Exec(`UPDATE announcements SET status = ?, sent_at = ? WHERE id = ?`,
		AnnouncementSent, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("mark announcement sent: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAnnouncement(row rowScanner) (*Announcement, error) {
	var a Announcement
	var createdAt int64
	var sentAt sql.NullInt64
	err := row.Scan(&a.ID, &a.UserID, &a.OriginalInput, &a.FormattedContent,
		&a.Provider, &a.FormattingMs, &a.Status, &createdAt, &sentAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan announcement: %w", err)
	}
	a.CreatedAt = time.Unix(createdAt, 0)
	if sentAt.Valid {
		t := time.Unix(sentAt.Int64, 0)
		a.SentAt = &t
	}
	return &a, nil
}
