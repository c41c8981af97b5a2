package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Delivery statuses. Transitions are monotonic: pending -> sent | failed.
const (
	DeliveryPending = "pending"
	DeliverySent    = "sent"
	DeliveryFailed  = "failed"
)

// Target types for delivery records
const (
	TargetGroup     = "group"
	TargetPersonal  = "personal"
	TargetBroadcast = "broadcast"
)

// Broadcast job statuses
const (
	BroadcastSending   = "sending"
	BroadcastCompleted = "completed"
	BroadcastPartial   = "partial"
)

// DeliveryRecord is one ledger entry: a single send attempt against a single
// target. Records are never deleted; status transitions happen in place.
type DeliveryRecord struct {
	ID             string     `json:"id"`
	AnnouncementID string     `json:"announcementId"`
	TargetType     string     `json:"targetType"`
	TargetID       string     `json:"targetId"`
	TargetName     string     `json:"targetName"`
	Status         string     `json:"status"`
	ErrorDetail    string     `json:"errorDetail,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	SentAt         *time.Time `json:"sentAt,omitempty"`
}

// BroadcastJob groups the delivery records of one fan-out. Its child records
// carry target_type 'broadcast' and the job id as target_id.
type BroadcastJob struct {
	ID             string     `json:"id"`
	UserID         string     `json:"userId"`
	AnnouncementID string     `json:"announcementId"`
	Name           string     `json:"name"`
	Recipients     int        `json:"recipients"`
	Status         string     `json:"status"`
	CreatedAt      time.Time  `json:"createdAt"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
}

// CreateDeliveryRecord appends a ledger entry. New records start pending
// unless the caller set a status explicitly (ad-hoc sends record the outcome
// directly).
func (s *Store) CreateDeliveryRecord(r *DeliveryRecord) error {
	if r.Status == "" {
		r.Status = DeliveryPending
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	var sentAt interface{}
	if r.SentAt != nil {
		sentAt = r.SentAt.Unix()
	}
	_, err := s.db.Exec(`
		INSERT INTO delivery_records (id, announcement_id, target_type, target_id, target_name, status, error_detail, created_at, sent_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.AnnouncementID, r.TargetType, r.TargetID, r.TargetName, r.Status, nullString(r.ErrorDetail), r.CreatedAt.Unix(), sentAt)
	if err != nil {
		return fmt.Errorf("insert delivery record: %w", err)
	}
	return nil
}

// UpdateDeliveryStatus records the outcome of a send attempt. Only terminal
// statuses are accepted: a record never reverts to pending.
func (s *Store) UpdateDeliveryStatus(id, status, errorDetail string) error {
	if status != DeliverySent && status != DeliveryFailed {
		return fmt.Errorf("invalid delivery status transition to %q", status)
	}
	_, err := s.db.Exec(`
		UPDATE delivery_records SET status = ?, error_detail = ?, sent_at = ? WHERE id = ?`,
		status, nullString(errorDetail), time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("update delivery status: %w", err)
	}
	return nil
}

// ListDeliveriesByAnnouncement returns all ledger entries for an announcement,
// oldest first. Status counts are computed by the caller.
func (s *Store) ListDeliveriesByAnnouncement(announcementID string) ([]*DeliveryRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, announcement_id, target_type, target_id, target_name, status, error_detail, created_at, sent_at
		FROM delivery_records WHERE announcement_id = ? ORDER BY created_at, rowid`, announcementID)
	if err != nil {
		return nil, fmt.Errorf("query deliveries: %w", err)
	}
	defer rows.Close()
	return scanDeliveries(rows)
}

// ListDeliveriesByTarget returns all ledger entries whose target_id matches,
// used to inspect a broadcast job's children.
func (s *Store) ListDeliveriesByTarget(targetID string) ([]*DeliveryRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, announcement_id, target_type, target_id, target_name, status, error_detail, created_at, sent_at
		FROM delivery_records WHERE target_id = ? ORDER BY created_at, rowid`, targetID)
	if err != nil {
		return nil, fmt.Errorf("query deliveries by target: %w", err)
	}
	defer rows.Close()
	return scanDeliveries(rows)
}

// GetDeliveryRecord returns a single ledger entry, or nil if absent.
func (s *Store) GetDeliveryRecord(id string) (*DeliveryRecord, error) {
	row := s.db.QueryRow(`
		SELECT id, announcement_id, target_type, target_id, target_name, status, error_detail, created_at, sent_at
		FROM delivery_records WHERE id = ?`, id)
	r, err := scanDelivery(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

// CreateBroadcastJob inserts a broadcast job in sending status.
func (s *Store) CreateBroadcastJob(j *BroadcastJob) error {
	if j.Status == "" {
		j.Status = BroadcastSending
	}
	if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO broadcast_jobs (id, user_id, announcement_id, name, recipients_count, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.UserID, j.AnnouncementID, j.Name, j.Recipients, j.Status, j.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("insert broadcast job: %w", err)
	}
	return nil
}

// FinishBroadcastJob records the terminal status of a fan-out: completed when
// every child record is sent, partial otherwise.
func (s *Store) FinishBroadcastJob(id, status string) error {
	if status != BroadcastCompleted && status != BroadcastPartial {
		return fmt.Errorf("invalid broadcast status %q", status)
	}
	_, err := s.db.Exec(`UPDATE broadcast_jobs SET status = ?, completed_at = ? WHERE id = ?`,
		status, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("finish broadcast job: %w", err)
	}
	return nil
}

// GetBroadcastJob returns the broadcast job with the given id, or nil if absent.
func (s *Store) GetBroadcastJob(id string) (*BroadcastJob, error) {
	var j BroadcastJob
	var createdAt int64
	var completedAt sql.NullInt64
	err := s.db.QueryRow(`
		SELECT id, user_id, announcement_id, name, recipients_count, status, created_at, completed_at
		FROM broadcast_jobs WHERE id = ?`, id).
		Scan(&j.ID, &j.UserID, &j.AnnouncementID, &j.Name, &j.Recipients, &j.Status, &createdAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan broadcast job: %w", err)
	}
	j.CreatedAt = time.Unix(createdAt, 0)
	if completedAt.Valid {
		t := time.Unix(completedAt.Int64, 0)
		j.CompletedAt = &t
	}
	return &j, nil
}

func scanDeliveries(rows *sql.Rows) ([]*DeliveryRecord, error) {
	var out []*DeliveryRecord
	for rows.Next() {
		r, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanDelivery(row rowScanner) (*DeliveryRecord, error) {
	var r DeliveryRecord
	var errDetail sql.NullString
	var createdAt int64
	var sentAt sql.NullInt64
	err := row.Scan(&r.ID, &r.AnnouncementID, &r.TargetType, &r.TargetID, &r.TargetName,
		&r.Status, &errDetail, &createdAt, &sentAt)
	if err != nil {
		return nil, err
	}
	if errDetail.Valid {
		r.ErrorDetail = errDetail.String
	}
	r.CreatedAt = time.Unix(createdAt, 0)
	if sentAt.Valid {
		t := time.Unix(sentAt.Int64, 0)
		r.SentAt = &t
	}
	return &r, nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
