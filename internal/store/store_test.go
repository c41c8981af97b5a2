package store

import (
	"path/filepath"
	"testing"
)

func setupTestDB(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "announcer.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestAnnouncementRoundTrip(t *testing.T) {
	st := setupTestDB(t)

	ann := &Announcement{
		ID:               "a1",
		UserID:           "6281111111111",
		OriginalInput:    "rapat besok jam 7",
		FormattedContent: "📢 *PENGUMUMAN*\n\nRapat besok jam 19.00.",
		Provider:         "openai",
		FormattingMs:     840,
	}
	if err := st.CreateAnnouncement(ann); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	got, err := st.GetAnnouncement("a1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got == nil {
		t.Fatal("announcement not found")
	}
	if got.Status != AnnouncementDraft {
		t.Errorf("status = %q, want draft", got.Status)
	}
	if got.FormattedContent != ann.FormattedContent {
		t.Errorf("content mismatch")
	}
	if got.SentAt != nil {
		t.Error("draft should have no sent time")
	}

	if err := st.MarkAnnouncementSent("a1"); err != nil {
		t.Fatalf("mark sent failed: %v", err)
	}
	got, err = st.GetAnnouncement("a1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Status != AnnouncementSent {
		t.Errorf("status = %q, want sent", got.Status)
	}
	if got.SentAt == nil {
		t.Error("sent announcement should have a sent time")
	}
}

func TestGetAnnouncementMissing(t *testing.T) {
	st := setupTestDB(t)
	got, err := st.GetAnnouncement("nope")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got != nil {
		t.Error("missing announcement should be nil, not an error")
	}
}

func TestDeliveryStatusTransitions(t *testing.T) {
	st := setupTestDB(t)

	record := &DeliveryRecord{
		ID:             "d1",
		AnnouncementID: "a1",
		TargetType:     TargetPersonal,
		TargetID:       "6281234567890@s.whatsapp.net",
		TargetName:     "Budi",
	}
	if err := st.CreateDeliveryRecord(record); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	got, err := st.GetDeliveryRecord("d1")
	if err != nil || got == nil {
		t.Fatalf("record missing: %v", err)
	}
	if got.Status != DeliveryPending {
		t.Errorf("new record status = %q, want pending", got.Status)
	}

	// Records only move forward: pending is not a valid update target.
	if err := st.UpdateDeliveryStatus("d1", DeliveryPending, ""); err == nil {
		t.Error("update to pending should be rejected")
	}
	if err := st.UpdateDeliveryStatus("d1", "retrying", ""); err == nil {
		t.Error("unknown status should be rejected")
	}

	if err := st.UpdateDeliveryStatus("d1", DeliverySent, ""); err != nil {
		t.Fatalf("update to sent failed: %v", err)
	}
	got, _ = st.GetDeliveryRecord("d1")
	if got.Status != DeliverySent {
		t.Errorf("status = %q, want sent", got.Status)
	}
	if got.SentAt == nil {
		t.Error("settled record should have a sent time")
	}
}

func TestDeliveryFailureKeepsDetail(t *testing.T) {
	st := setupTestDB(t)

	record := &DeliveryRecord{
		ID:             "d1",
		AnnouncementID: "a1",
		TargetType:     TargetGroup,
		TargetID:       "g1@g.us",
		TargetName:     "Staff",
	}
	if err := st.CreateDeliveryRecord(record); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := st.UpdateDeliveryStatus("d1", DeliveryFailed, "connection reset"); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	got, _ := st.GetDeliveryRecord("d1")
	if got.ErrorDetail != "connection reset" {
		t.Errorf("error detail = %q, want connection reset", got.ErrorDetail)
	}
}

func TestBroadcastJobLifecycle(t *testing.T) {
	st := setupTestDB(t)

	job := &BroadcastJob{
		ID:             "b1",
		UserID:         "6281111111111",
		AnnouncementID: "a1",
		Name:           "Broadcast test",
		Recipients:     5,
	}
	if err := st.CreateBroadcastJob(job); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	got, err := st.GetBroadcastJob("b1")
	if err != nil || got == nil {
		t.Fatalf("job missing: %v", err)
	}
	if got.Status != BroadcastSending {
		t.Errorf("new job status = %q, want sending", got.Status)
	}
	if got.CompletedAt != nil {
		t.Error("running job should have no completion time")
	}

	if err := st.FinishBroadcastJob("b1", "sending"); err == nil {
		t.Error("finish with non-terminal status should be rejected")
	}
	if err := st.FinishBroadcastJob("b1", BroadcastPartial); err != nil {
		t.Fatalf("finish failed: %v", err)
	}

	got, _ = st.GetBroadcastJob("b1")
	if got.Status != BroadcastPartial {
		t.Errorf("status = %q, want partial", got.Status)
	}
	if got.CompletedAt == nil {
		t.Error("finished job should have a completion time")
	}
}

func TestDirectoryUpsert(t *testing.T) {
	st := setupTestDB(t)

	entry := &DirectoryEntry{ID: "g1@g.us", Name: "Staff", Kind: KindGroup, Members: 10}
	if err := st.UpsertDirectoryEntry(entry); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	// Second upsert with the same id refreshes in place.
	entry.Name = "Staff 2024"
	entry.Members = 12
	if err := st.UpsertDirectoryEntry(entry); err != nil {
		t.Fatalf("re-upsert failed: %v", err)
	}

	got, err := st.GetDirectoryEntry("g1@g.us")
	if err != nil || got == nil {
		t.Fatalf("entry missing: %v", err)
	}
	if got.Name != "Staff 2024" || got.Members != 12 {
		t.Errorf("entry not refreshed: %+v", got)
	}

	count, err := st.CountDirectory(KindGroup)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}

func TestDirectoryListOrder(t *testing.T) {
	st := setupTestDB(t)

	for _, e := range []*DirectoryEntry{
		{ID: "g1@g.us", Name: "Charlie", Kind: KindGroup},
		{ID: "g2@g.us", Name: "Alpha", Kind: KindGroup},
		{ID: "g3@g.us", Name: "Bravo", Kind: KindGroup},
	} {
		if err := st.UpsertDirectoryEntry(e); err != nil {
			t.Fatalf("upsert failed: %v", err)
		}
	}

	// Listing follows insertion order, not name order.
	groups, err := st.ListDirectory(KindGroup)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(groups) != 3 {
		t.Fatalf("got %d groups, want 3", len(groups))
	}
	want := []string{"Charlie", "Alpha", "Bravo"}
	for i, g := range groups {
		if g.Name != want[i] {
			t.Errorf("position %d = %q, want %q", i, g.Name, want[i])
		}
	}
}

func TestTemplateLifecycle(t *testing.T) {
	st := setupTestDB(t)

	tpl := &Template{
		ID:      "t1",
		UserID:  "6281111111111",
		Name:    "rapat",
		Content: "📢 *PENGUMUMAN*\n\nRapat rutin.",
	}
	if err := st.CreateTemplate(tpl); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if tpl.Category != "umum" {
		t.Errorf("default category = %q, want umum", tpl.Category)
	}

	// Names are unique per user.
	dup := &Template{ID: "t2", UserID: tpl.UserID, Name: "rapat", Content: "x"}
	if err := st.CreateTemplate(dup); err == nil {
		t.Error("duplicate template name for the same user should fail")
	}

	// Same name under another user is fine.
	other := &Template{ID: "t3", UserID: "6282222222222", Name: "rapat", Content: "y"}
	if err := st.CreateTemplate(other); err != nil {
		t.Errorf("same name for another user should succeed: %v", err)
	}

	got, err := st.FindTemplate(tpl.UserID, "rapat")
	if err != nil || got == nil {
		t.Fatalf("template missing: %v", err)
	}

	if err := st.IncrementTemplateUsage(got.ID); err != nil {
		t.Fatalf("increment failed: %v", err)
	}
	got, _ = st.FindTemplate(tpl.UserID, "rapat")
	if got.UsageCount != 1 {
		t.Errorf("usage count = %d, want 1", got.UsageCount)
	}

	if err := st.DeleteTemplate(got.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	got, _ = st.FindTemplate(tpl.UserID, "rapat")
	if got != nil {
		t.Error("deleted template should be gone")
	}
}
