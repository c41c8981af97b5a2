package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Template is a saved announcement body a user can reuse.
type Template struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	Name       string    `json:"name"`
	Content    string    `json:"content"`
	Category   string    `json:"category"`
	UsageCount int       `json:"usageCount"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// CreateTemplate saves a new template. Names are unique per user.
func (s *Store) CreateTemplate(t *Template) error {
	now := time.Now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	if t.Category == "" {
		t.Category = "umum"
	}
	_, err := s.db.Exec(`
		INSERT INTO templates (id, user_id, name, content, category, usage_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, ?, ?)`,
		t.ID, t.UserID, t.Name, t.Content, t.Category, t.CreatedAt.Unix(), t.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("insert template: %w", err)
	}
	return nil
}

// FindTemplate returns a user's template by name, or nil if absent.
func (s *Store) FindTemplate(userID, name string) (*Template, error) {
	row := s.db.QueryRow(`
		SELECT id, user_id, name, content, category, usage_count, created_at, updated_at
		FROM templates WHERE user_id = ? AND name = ?`, userID, name)
	return scanTemplate(row)
}

// ListTemplates returns a user's templates, most recently updated first.
func (s *Store) ListTemplates(userID string) ([]*Template, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, name, content, category, usage_count, created_at, updated_at
		FROM templates WHERE user_id = ? ORDER BY updated_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query templates: %w", err)
	}
	defer rows.Close()

	var out []*Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// IncrementTemplateUsage bumps a template's usage counter.
func (s *Store) IncrementTemplateUsage(id string) error {
	_, err := s.db.Exec(`UPDATE templates SET usage_count = usage_count + 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("increment template usage: %w", err)
	}
	return nil
}

// DeleteTemplate removes a template.
func (s *Store) DeleteTemplate(id string) error {
	_, err := s.db.Exec(`DELETE FROM templates WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	return nil
}

func scanTemplate(row rowScanner) (*Template, error) {
	var t Template
	var createdAt, updatedAt int64
	err := row.Scan(&t.ID, &t.UserID, &t.Name, &t.Content, &t.Category, &t.UsageCount, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan template: %w", err)
	}
	t.CreatedAt = time.Unix(createdAt, 0)
	t.UpdatedAt = time.Unix(updatedAt, 0)
	return &t, nil
}
