package dispatch

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/user/wa-announcer/internal/store"
)

type sentMessage struct {
	chatID string
	text   string
}

// fakeSession records sends and fails on demand.
type fakeSession struct {
	chats     []ChatInfo
	sent      []sentMessage
	failAddrs map[string]error
}

func (f *fakeSession) ListChats(ctx context.Context) ([]ChatInfo, error) {
	return f.chats, nil
}

func (f *fakeSession) SendText(ctx context.Context, chatID, text string) error {
	if err, ok := f.failAddrs[chatID]; ok {
		return err
	}
	f.sent = append(f.sent, sentMessage{chatID: chatID, text: text})
	return nil
}

func (f *fakeSession) Connected() bool { return true }

func newTestDispatcher(t *testing.T, session *fakeSession) (*Dispatcher, *store.Store) {
	t.Helper()
	st := setupTestStore(t)
	d := New(session, st, Options{
		CountryCode: "62",
		Sleep:       func(time.Duration) {},
	})
	return d, st
}

func seedAnnouncement(t *testing.T, st *store.Store) *store.Announcement {
	t.Helper()
	ann := &store.Announcement{
		ID:               uuid.NewString(),
		UserID:           "6281111111111",
		OriginalInput:    "rapat besok",
		FormattedContent: "📢 *PENGUMUMAN*\n\nRapat besok.",
		Provider:         "openai",
	}
	if err := st.CreateAnnouncement(ann); err != nil {
		t.Fatalf("failed to seed announcement: %v", err)
	}
	return ann
}

func TestTruncateMessage(t *testing.T) {
	short, truncated := truncateMessage("hello")
	if truncated || short != "hello" {
		t.Errorf("short message should pass through unchanged")
	}

	long := strings.Repeat("a", truncateThreshold+500)
	got, truncated := truncateMessage(long)
	if !truncated {
		t.Fatal("long message should be truncated")
	}
	if len(got) != truncateThreshold {
		t.Errorf("truncated length = %d, want %d", len(got), truncateThreshold)
	}
	if !strings.HasSuffix(got, truncationMarker) {
		t.Errorf("truncated message should end with %q", truncationMarker)
	}
}

func TestTruncateMessageMultiByte(t *testing.T) {
	// The announcement template leads with 4-byte emoji; a byte-offset cut
	// would land mid-rune and produce invalid UTF-8.
	long := strings.Repeat("📢", 4500)
	got, truncated := truncateMessage(long)
	if !truncated {
		t.Fatal("long emoji message should be truncated")
	}
	if !utf8.ValidString(got) {
		t.Fatal("truncated message must be valid UTF-8")
	}
	if !strings.HasSuffix(got, truncationMarker) {
		t.Errorf("truncated message should end with %q", truncationMarker)
	}
	if n := utf8.RuneCountInString(got); n != truncateThreshold {
		t.Errorf("truncated rune count = %d, want %d", n, truncateThreshold)
	}
}

func TestTruncateMessageMixedRunes(t *testing.T) {
	long := strings.Repeat("a📅", 3000)
	got, truncated := truncateMessage(long)
	if !truncated {
		t.Fatal("long mixed message should be truncated")
	}
	if !utf8.ValidString(got) {
		t.Fatal("truncated message must be valid UTF-8")
	}
	if n := utf8.RuneCountInString(got); n != truncateThreshold {
		t.Errorf("truncated rune count = %d, want %d", n, truncateThreshold)
	}
}

func TestTruncateMessageAtThreshold(t *testing.T) {
	exact := strings.Repeat("a", truncateThreshold)
	got, truncated := truncateMessage(exact)
	if truncated {
		t.Error("message at threshold should not be truncated")
	}
	if got != exact {
		t.Error("message at threshold should pass through unchanged")
	}
}

func TestSendToGroup(t *testing.T) {
	session := &fakeSession{}
	d, st := newTestDispatcher(t, session)
	seedGroups(t, st, "Staff")

	res := d.SendToGroup(context.Background(), "g1@g.us", "meeting at noon")
	if !res.Success {
		t.Fatalf("send failed: %s", res.Error)
	}
	if res.GroupName != "Staff" {
		t.Errorf("group name = %q, want Staff", res.GroupName)
	}
	if len(session.sent) != 1 || session.sent[0].chatID != "g1@g.us" {
		t.Errorf("unexpected sends: %+v", session.sent)
	}
}

func TestSendToGroupUnknown(t *testing.T) {
	session := &fakeSession{}
	d, _ := newTestDispatcher(t, session)

	res := d.SendToGroup(context.Background(), "nope@g.us", "hi")
	if res.Success {
		t.Fatal("send to unknown group should fail")
	}
	if res.Error != ErrNotFound.Error() {
		t.Errorf("error = %q, want %q", res.Error, ErrNotFound.Error())
	}
	if len(session.sent) != 0 {
		t.Error("nothing should have been sent")
	}
}

func TestSendToGroupRejectsContact(t *testing.T) {
	session := &fakeSession{}
	d, st := newTestDispatcher(t, session)

	entry := &store.DirectoryEntry{
		ID:   "6281234567890@s.whatsapp.net",
		Name: "Budi",
		Kind: store.KindContact,
	}
	if err := st.UpsertDirectoryEntry(entry); err != nil {
		t.Fatalf("failed to seed contact: %v", err)
	}

	res := d.SendToGroup(context.Background(), entry.ID, "hi")
	if res.Success {
		t.Fatal("sending to a contact id as a group should fail")
	}
	if res.Error != ErrNotGroup.Error() {
		t.Errorf("error = %q, want %q", res.Error, ErrNotGroup.Error())
	}
}

func TestSendToPersonal(t *testing.T) {
	session := &fakeSession{}
	d, _ := newTestDispatcher(t, session)

	res := d.SendToPersonal(context.Background(), "081234567890", "halo")
	if !res.Success {
		t.Fatalf("send failed: %s", res.Error)
	}
	if res.PhoneNumber != "6281234567890@s.whatsapp.net" {
		t.Errorf("phone = %q, want normalized address", res.PhoneNumber)
	}
	if len(session.sent) != 1 || session.sent[0].chatID != "6281234567890@s.whatsapp.net" {
		t.Errorf("unexpected sends: %+v", session.sent)
	}
}

func TestSendToPersonalTruncates(t *testing.T) {
	session := &fakeSession{}
	d, _ := newTestDispatcher(t, session)

	res := d.SendToPersonal(context.Background(), "081234567890", strings.Repeat("x", 5000))
	if !res.Success {
		t.Fatalf("send failed: %s", res.Error)
	}
	if !res.Truncated {
		t.Error("result should report truncation")
	}
	if res.MessageLength != truncateThreshold {
		t.Errorf("message length = %d, want %d", res.MessageLength, truncateThreshold)
	}
	if len(session.sent[0].text) != truncateThreshold {
		t.Errorf("sent %d chars, want %d", len(session.sent[0].text), truncateThreshold)
	}
}

func TestSendBroadcastAllSucceed(t *testing.T) {
	session := &fakeSession{}
	d, st := newTestDispatcher(t, session)
	ann := seedAnnouncement(t, st)

	recipients := []Recipient{
		{Phone: "0811111111"},
		{Phone: "0822222222", Name: "Siti"},
		{Phone: "0833333333"},
	}
	res := d.SendBroadcast(context.Background(), ann, recipients)

	if !res.Success {
		t.Fatalf("broadcast failed: %s", res.Error)
	}
	if res.Total != 3 || res.Sent != 3 || res.Failed != 0 {
		t.Errorf("counts = total %d sent %d failed %d, want 3/3/0", res.Total, res.Sent, res.Failed)
	}
	if res.Sent+res.Failed != res.Total {
		t.Error("sent + failed must equal total")
	}

	job, err := st.GetBroadcastJob(res.BroadcastID)
	if err != nil || job == nil {
		t.Fatalf("broadcast job missing: %v", err)
	}
	if job.Status != store.BroadcastCompleted {
		t.Errorf("job status = %q, want completed", job.Status)
	}

	records, err := st.ListDeliveriesByAnnouncement(ann.ID)
	if err != nil {
		t.Fatalf("failed to list deliveries: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("ledger has %d records, want 3", len(records))
	}
	for _, r := range records {
		if r.Status != store.DeliverySent {
			t.Errorf("record %s status = %q, want sent", r.ID, r.Status)
		}
	}
}

func TestSendBroadcastPartialFailure(t *testing.T) {
	failAddr := NormalizePhone("0822222222", "62")
	session := &fakeSession{
		failAddrs: map[string]error{failAddr: errors.New("recipient unavailable")},
	}
	d, st := newTestDispatcher(t, session)
	ann := seedAnnouncement(t, st)

	recipients := []Recipient{
		{Phone: "0811111111"},
		{Phone: "0822222222"},
		{Phone: "0833333333"},
	}
	res := d.SendBroadcast(context.Background(), ann, recipients)

	if !res.Success {
		t.Fatal("broadcast with some successes should still be a success")
	}
	if res.Total != 3 || res.Sent != 2 || res.Failed != 1 {
		t.Errorf("counts = total %d sent %d failed %d, want 3/2/1", res.Total, res.Sent, res.Failed)
	}

	job, err := st.GetBroadcastJob(res.BroadcastID)
	if err != nil || job == nil {
		t.Fatalf("broadcast job missing: %v", err)
	}
	if job.Status != store.BroadcastPartial {
		t.Errorf("job status = %q, want partial", job.Status)
	}

	records, err := st.ListDeliveriesByAnnouncement(ann.ID)
	if err != nil {
		t.Fatalf("failed to list deliveries: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("ledger has %d records, want 3", len(records))
	}
	failedCount := 0
	for _, r := range records {
		if r.Status == store.DeliveryFailed {
			failedCount++
			if r.ErrorDetail == "" {
				t.Error("failed record should carry the error detail")
			}
		}
	}
	if failedCount != 1 {
		t.Errorf("ledger has %d failed records, want 1", failedCount)
	}
}

func TestSendBroadcastPacing(t *testing.T) {
	session := &fakeSession{}
	st := setupTestStore(t)

	var sleeps []time.Duration
	d := New(session, st, Options{
		CountryCode: "62",
		Delay:       100 * time.Millisecond,
		Sleep:       func(dur time.Duration) { sleeps = append(sleeps, dur) },
	})
	ann := seedAnnouncement(t, st)

	recipients := []Recipient{{Phone: "0811111111"}, {Phone: "0822222222"}, {Phone: "0833333333"}}
	d.SendBroadcast(context.Background(), ann, recipients)

	// No delay before the first send, one between each pair after that.
	if len(sleeps) != 2 {
		t.Fatalf("slept %d times, want 2", len(sleeps))
	}
	for _, dur := range sleeps {
		if dur != 100*time.Millisecond {
			t.Errorf("slept %v, want 100ms", dur)
		}
	}
}

func TestSendBroadcastEmpty(t *testing.T) {
	session := &fakeSession{}
	d, st := newTestDispatcher(t, session)
	ann := seedAnnouncement(t, st)

	res := d.SendBroadcast(context.Background(), ann, nil)
	if res.Success {
		t.Error("empty broadcast has no successful sends")
	}
	if res.Total != 0 || res.Sent != 0 || res.Failed != 0 {
		t.Errorf("counts = %d/%d/%d, want 0/0/0", res.Total, res.Sent, res.Failed)
	}

	// Zero failures still means completed.
	job, err := st.GetBroadcastJob(res.BroadcastID)
	if err != nil || job == nil {
		t.Fatalf("broadcast job missing: %v", err)
	}
	if job.Status != store.BroadcastCompleted {
		t.Errorf("job status = %q, want completed", job.Status)
	}
}

func TestHistoryCounts(t *testing.T) {
	session := &fakeSession{
		failAddrs: map[string]error{NormalizePhone("0822222222", "62"): errors.New("boom")},
	}
	d, st := newTestDispatcher(t, session)
	ann := seedAnnouncement(t, st)

	d.SendBroadcast(context.Background(), ann, []Recipient{
		{Phone: "0811111111"},
		{Phone: "0822222222"},
	})

	summary, err := History(st, ann.ID)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if summary.Total != 2 || summary.Sent != 1 || summary.Failed != 1 || summary.Pending != 0 {
		t.Errorf("summary = total %d sent %d failed %d pending %d, want 2/1/1/0",
			summary.Total, summary.Sent, summary.Failed, summary.Pending)
	}
}

func TestSyncPopulatesDirectory(t *testing.T) {
	session := &fakeSession{
		chats: []ChatInfo{
			{ID: "g1@g.us", Name: "Staff", IsGroup: true, Participants: 12},
			{ID: "6281234567890@s.whatsapp.net", Name: "Budi", IsGroup: false},
		},
	}
	st := setupTestStore(t)
	syncer := NewSyncer(session, st)

	if err := syncer.Sync(context.Background()); err != nil {
		t.Fatalf("sync failed: %v", err)
	}

	groups, err := st.ListDirectory(store.KindGroup)
	if err != nil {
		t.Fatalf("failed to list groups: %v", err)
	}
	if len(groups) != 1 || groups[0].Name != "Staff" || groups[0].Members != 12 {
		t.Errorf("unexpected groups: %+v", groups)
	}

	contacts, err := st.ListDirectory(store.KindContact)
	if err != nil {
		t.Fatalf("failed to list contacts: %v", err)
	}
	if len(contacts) != 1 || contacts[0].Name != "Budi" {
		t.Errorf("unexpected contacts: %+v", contacts)
	}
}

// blockingSession parks ListChats until released, to hold a sync pass open.
type blockingSession struct {
	listCalls int32
	release   chan struct{}
}

func (b *blockingSession) ListChats(ctx context.Context) ([]ChatInfo, error) {
	atomic.AddInt32(&b.listCalls, 1)
	<-b.release
	return nil, nil
}

func (b *blockingSession) SendText(ctx context.Context, chatID, text string) error { return nil }

func (b *blockingSession) Connected() bool { return true }

func TestSyncSkipsOverlappingPass(t *testing.T) {
	session := &blockingSession{release: make(chan struct{})}
	st := setupTestStore(t)
	syncer := NewSyncer(session, st)

	done := make(chan error, 1)
	go func() { done <- syncer.Sync(context.Background()) }()

	deadline := time.After(2 * time.Second)
	for atomic.LoadInt32(&session.listCalls) == 0 {
		select {
		case <-deadline:
			t.Fatal("first sync never reached the session")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	// A second pass while the first is in flight is a silent no-op.
	if err := syncer.Sync(context.Background()); err != nil {
		t.Fatalf("overlapping sync returned error: %v", err)
	}
	if n := atomic.LoadInt32(&session.listCalls); n != 1 {
		t.Fatalf("session enumerated %d times, want 1", n)
	}

	close(session.release)
	if err := <-done; err != nil {
		t.Fatalf("first sync failed: %v", err)
	}
}

func TestSyncRefreshKeepsDiscoveryOrder(t *testing.T) {
	session := &fakeSession{
		chats: []ChatInfo{
			{ID: "g1@g.us", Name: "Alpha", IsGroup: true},
			{ID: "g2@g.us", Name: "Bravo", IsGroup: true},
		},
	}
	st := setupTestStore(t)
	syncer := NewSyncer(session, st)

	if err := syncer.Sync(context.Background()); err != nil {
		t.Fatalf("sync failed: %v", err)
	}

	// A renamed group keeps its position in discovery order.
	session.chats[0].Name = "Alpha Renamed"
	if err := syncer.Sync(context.Background()); err != nil {
		t.Fatalf("re-sync failed: %v", err)
	}

	groups, err := st.ListDirectory(store.KindGroup)
	if err != nil {
		t.Fatalf("failed to list groups: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("directory has %d groups, want 2", len(groups))
	}
	if groups[0].Name != "Alpha Renamed" || groups[1].Name != "Bravo" {
		t.Errorf("unexpected order after re-sync: %q, %q", groups[0].Name, groups[1].Name)
	}
}
