package dispatch

import (
	"github.com/user/wa-announcer/internal/store"
)

// HistorySummary is the delivery ledger for one announcement with counts
// computed from the listed records.
type HistorySummary struct {
	AnnouncementID string                  `json:"announcementId"`
	Total          int                     `json:"total"`
	Sent           int                     `json:"sent"`
	Failed         int                     `json:"failed"`
	Pending        int                     `json:"pending"`
	Records        []*store.DeliveryRecord `json:"history"`
}

// History lists an announcement's ledger entries and aggregates their
// statuses. Counts are derived on read, never precomputed.
func History(st *store.Store, announcementID string) (*HistorySummary, error) {
	records, err := st.ListDeliveriesByAnnouncement(announcementID)
	if err != nil {
		return nil, err
	}

	summary := &HistorySummary{
		AnnouncementID: announcementID,
		Total:          len(records),
		Records:        records,
	}
	for _, r := range records {
		switch r.Status {
		case store.DeliverySent:
			summary.Sent++
		case store.DeliveryFailed:
			summary.Failed++
		case store.DeliveryPending:
			summary.Pending++
		}
	}
	return summary, nil
}
