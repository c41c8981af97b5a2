package dispatch

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	. "github.com/user/wa-announcer/internal/logging"
	"github.com/user/wa-announcer/internal/store"
)

// WhatsApp rejects payloads over ~4096 characters; anything over the safety
// threshold is cut down before transmission.
const (
	maxMessageLength  = 4096
	truncateThreshold = 4000
	truncationMarker  = "..."
)

// DefaultBroadcastDelay paces sequential fan-out to respect upstream rate
// limits.
const DefaultBroadcastDelay = 500 * time.Millisecond

// SendResult is the structured outcome of a single send.
type SendResult struct {
	Success       bool      `json:"success"`
	GroupID       string    `json:"groupId,omitempty"`
	GroupName     string    `json:"groupName,omitempty"`
	Contact       string    `json:"contact,omitempty"`
	PhoneNumber   string    `json:"phoneNumber,omitempty"`
	MessageLength int       `json:"messageLength,omitempty"`
	Truncated     bool      `json:"truncated,omitempty"`
	Timestamp     time.Time `json:"timestamp,omitempty"`
	Error         string    `json:"error,omitempty"`
}

// Recipient is one broadcast destination.
type Recipient struct {
	Phone string `json:"phone"`
	Name  string `json:"name,omitempty"`
}

// RecipientResult is the per-recipient outcome inside a broadcast.
type RecipientResult struct {
	Recipient string `json:"recipient"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

// BroadcastResult is the aggregated outcome of a fan-out. Success means at
// least one recipient got the message.
type BroadcastResult struct {
	Success     bool              `json:"success"`
	BroadcastID string            `json:"broadcastId,omitempty"`
	Total       int               `json:"total"`
	Sent        int               `json:"sent"`
	Failed      int               `json:"failed"`
	Results     []RecipientResult `json:"results,omitempty"`
	Error       string            `json:"error,omitempty"`
}

// Dispatcher orchestrates sends to groups, personal targets, and broadcast
// lists. Single sends are effect-only (the caller owns ledger writes);
// SendBroadcast writes its own ledger rows. Resolution and transmission
// failures are recovered into the result, never returned as errors.
type Dispatcher struct {
	session     ChatSession
	store       *store.Store
	countryCode string
	delay       time.Duration
	sleep       func(time.Duration) // injected for tests
}

// Options tunes dispatcher policy.
type Options struct {
	CountryCode string
	Delay       time.Duration // inter-send pacing during broadcasts; 0 means default
	Sleep       func(time.Duration)
}

// New creates a dispatcher over a live session and the announcer store.
func New(session ChatSession, st *store.Store, opts Options) *Dispatcher {
	if opts.CountryCode == "" {
		opts.CountryCode = DefaultCountryCode
	}
	if opts.Delay == 0 {
		opts.Delay = DefaultBroadcastDelay
	}
	if opts.Sleep == nil {
		opts.Sleep = time.Sleep
	}
	return &Dispatcher{
		session:     session,
		store:       st,
		countryCode: opts.CountryCode,
		delay:       opts.Delay,
		sleep:       opts.Sleep,
	}
}

// SendToGroup sends a message to a group chat identified by its chat id. The
// target must be a known group in the directory; sending to a contact id is
// rejected with ErrNotGroup in the result.
func (d *Dispatcher) SendToGroup(ctx context.Context, targetID, message string) SendResult {
	entry, err := d.store.GetDirectoryEntry(targetID)
	if err != nil {
		return failure(err)
	}
	if entry == nil {
		return failure(ErrNotFound)
	}
	if entry.Kind != store.KindGroup {
		return failure(ErrNotGroup)
	}

	message, truncated := truncateMessage(message)
	if truncated {
		L_warn("dispatch: message truncated to fit limit", "target", entry.Name)
	}

	if err := d.session.SendText(ctx, entry.ID, message); err != nil {
		L_error("dispatch: group send failed", "group", entry.Name, "error", err)
		return failure(err)
	}

	length := utf8.RuneCountInString(message)
	L_info("dispatch: message sent to group", "group", entry.Name, "length", length)
	return SendResult{
		Success:       true,
		GroupID:       entry.ID,
		GroupName:     entry.Name,
		MessageLength: length,
		Truncated:     truncated,
		Timestamp:     time.Now(),
	}
}

// SendToPersonal sends a message to a personal target identified by a phone
// descriptor. The chat is created by the send if it does not exist yet, so no
// directory lookup gates the attempt; the directory only supplies a display
// name when it has one.
func (d *Dispatcher) SendToPersonal(ctx context.Context, phone, message string) SendResult {
	address := NormalizePhone(phone, d.countryCode)

	message, truncated := truncateMessage(message)
	if truncated {
		L_warn("dispatch: message truncated to fit limit", "target", address)
	}

	if err := d.session.SendText(ctx, address, message); err != nil {
		L_error("dispatch: personal send failed", "address", address, "error", err)
		return failure(err)
	}

	contact := phone
	if entry, err := d.store.GetDirectoryEntry(address); err == nil && entry != nil && entry.Name != "" {
		contact = entry.Name
	}

	length := utf8.RuneCountInString(message)
	L_info("dispatch: message sent to personal", "contact", contact, "length", length)
	return SendResult{
		Success:       true,
		Contact:       contact,
		PhoneNumber:   address,
		MessageLength: length,
		Truncated:     truncated,
		Timestamp:     time.Now(),
	}
}

// SendBroadcast fans an announcement out to many personal targets,
// sequentially, with a pacing delay between sends. The broadcast job row is
// created eagerly, and each recipient's ledger row transitions
// pending -> sent|failed right after its attempt, so partial progress is
// durable if the process dies mid-broadcast. There is no cancellation and no
// resume: an interrupted broadcast stays partial.
func (d *Dispatcher) SendBroadcast(ctx context.Context, ann *store.Announcement, recipients []Recipient) BroadcastResult {
	job := &store.BroadcastJob{
		ID:             uuid.NewString(),
		UserID:         ann.UserID,
		AnnouncementID: ann.ID,
		Name:           fmt.Sprintf("Broadcast %s", time.Now().Format("2006-01-02")),
		Recipients:     len(recipients),
		Status:         store.BroadcastSending,
	}
	if err := d.store.CreateBroadcastJob(job); err != nil {
		L_error("dispatch: failed to create broadcast job", "error", err)
		return BroadcastResult{Error: err.Error()}
	}

	L_info("dispatch: broadcast started", "broadcast", job.ID, "recipients", len(recipients))

	results := make([]RecipientResult, 0, len(recipients))
	sent := 0
	for i, recipient := range recipients {
		if i > 0 {
			d.sleep(d.delay)
		}

		name := recipient.Name
		if name == "" {
			name = recipient.Phone
		}

		record := &store.DeliveryRecord{
			ID:             uuid.NewString(),
			AnnouncementID: ann.ID,
			TargetType:     store.TargetBroadcast,
			TargetID:       job.ID,
			TargetName:     name,
		}
		if err := d.store.CreateDeliveryRecord(record); err != nil {
			// Ledger write failed; still report the recipient as failed
			// rather than aborting the whole fan-out.
			L_error("dispatch: failed to create delivery record", "recipient", name, "error", err)
			results = append(results, RecipientResult{Recipient: name, Error: err.Error()})
			continue
		}

		res := d.SendToPersonal(ctx, recipient.Phone, ann.FormattedContent)
		if res.Success {
			sent++
			if err := d.store.UpdateDeliveryStatus(record.ID, store.DeliverySent, ""); err != nil {
				L_warn("dispatch: failed to update delivery status", "record", record.ID, "error", err)
			}
			results = append(results, RecipientResult{Recipient: name, Success: true})
		} else {
			if err := d.store.UpdateDeliveryStatus(record.ID, store.DeliveryFailed, res.Error); err != nil {
				L_warn("dispatch: failed to update delivery status", "record", record.ID, "error", err)
			}
			results = append(results, RecipientResult{Recipient: name, Success: false, Error: res.Error})
		}
	}

	failed := len(recipients) - sent
	status := store.BroadcastCompleted
	if failed > 0 {
		status = store.BroadcastPartial
	}
	if err := d.store.FinishBroadcastJob(job.ID, status); err != nil {
		L_error("dispatch: failed to finish broadcast job", "broadcast", job.ID, "error", err)
	}

	L_info("dispatch: broadcast finished", "broadcast", job.ID, "status", status, "sent", sent, "failed", failed)

	return BroadcastResult{
		Success:     sent > 0,
		BroadcastID: job.ID,
		Total:       len(recipients),
		Sent:        sent,
		Failed:      failed,
		Results:     results,
	}
}

// truncateMessage cuts a message down to the safety threshold, keeping the
// first threshold-3 characters plus a marker. Counts runes, not bytes: the
// announcement template is emoji-heavy and cutting on a byte offset can split
// a rune, and the wire layer rejects invalid UTF-8. Returns whether it
// truncated.
func truncateMessage(message string) (string, bool) {
	if utf8.RuneCountInString(message) <= truncateThreshold {
		return message, false
	}
	keep := truncateThreshold - len(truncationMarker)
	seen := 0
	for i := range message {
		if seen == keep {
			return message[:i] + truncationMarker, true
		}
		seen++
	}
	return message, false
}

func failure(err error) SendResult {
	return SendResult{Success: false, Error: err.Error()}
}
