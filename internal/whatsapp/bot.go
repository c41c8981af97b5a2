package whatsapp

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.mau.fi/whatsmeow/types/events"

	"github.com/user/wa-announcer/internal/ai"
	"github.com/user/wa-announcer/internal/dispatch"
	. "github.com/user/wa-announcer/internal/logging"
	"github.com/user/wa-announcer/internal/store"
)

const commandTimeout = 2 * time.Minute

// Bot handles inbound personal messages as announcer commands. Each sender
// keeps one active draft (the last announcement they created or loaded from a
// template); the send commands operate on that draft.
type Bot struct {
	session    *Session
	store      *store.Store
	formatter  ai.Formatter
	dispatcher *dispatch.Dispatcher
	resolver   *dispatch.Resolver

	drafts sync.Map // sender JID user -> announcement id
}

// NewBot wires the command handler onto a session.
func NewBot(session *Session, st *store.Store, formatter ai.Formatter, dispatcher *dispatch.Dispatcher, resolver *dispatch.Resolver) *Bot {
	b := &Bot{
		session:    session,
		store:      st,
		formatter:  formatter,
		dispatcher: dispatcher,
		resolver:   resolver,
	}
	session.OnMessage(b.handleMessage)
	return b
}

// handleMessage processes an incoming WhatsApp message
func (b *Bot) handleMessage(evt *events.Message) {
	// Group chats are send targets, never a command surface
	if evt.Info.IsGroup {
		L_debug("bot: ignoring group message")
		return
	}

	// Ignore own messages
	if evt.Info.IsFromMe {
		return
	}

	sender := evt.Info.Sender.User
	chatID := evt.Info.Chat.String()

	msg := evt.Message
	text := ""
	if msg.GetConversation() != "" {
		text = msg.GetConversation()
	} else if msg.GetExtendedTextMessage() != nil {
		text = msg.GetExtendedTextMessage().GetText()
	} else {
		L_debug("bot: unsupported message type, ignoring")
		return
	}

	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		b.reply(chatID, "Halo! Kirim /help untuk melihat perintah yang tersedia.")
		return
	}

	command, args := splitCommand(text)
	L_info("bot: command received", "sender", sender, "command", command)

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	switch command {
	case "/buat":
		b.cmdBuat(ctx, sender, chatID, args)
	case "/kirimgrup":
		b.cmdKirimGrup(ctx, sender, chatID, args)
	case "/kirimpv":
		b.cmdKirimPV(ctx, sender, chatID, args)
	case "/broadcast":
		b.cmdBroadcast(ctx, sender, chatID, args)
	case "/template":
		b.cmdTemplate(sender, chatID, args)
	case "/status":
		b.cmdStatus(chatID)
	case "/help":
		b.cmdHelp(chatID)
	default:
		b.reply(chatID, fmt.Sprintf("Perintah %s tidak dikenal. Kirim /help untuk daftar perintah.", command))
	}
}

// cmdBuat formats raw text into an announcement draft via the AI formatter.
func (b *Bot) cmdBuat(ctx context.Context, sender, chatID, args string) {
	if args == "" {
		b.reply(chatID, "Format: /buat <teks pengumuman>\nContoh: /buat rapat RT besok jam 7 malam di balai desa")
		return
	}

	b.reply(chatID, "⏳ Sedang memformat pengumuman...")

	result, err := b.formatter.Format(ctx, args, "")
	if err != nil {
		L_error("bot: formatting failed", "error", err)
		b.reply(chatID, "❌ Gagal memformat pengumuman: "+err.Error())
		return
	}

	ann := &store.Announcement{
		ID:               uuid.NewString(),
		UserID:           sender,
		OriginalInput:    args,
		FormattedContent: result.Content,
		Provider:         result.Provider,
		FormattingMs:     result.ElapsedMs,
	}
	if err := b.store.CreateAnnouncement(ann); err != nil {
		L_error("bot: failed to save announcement", "error", err)
		b.reply(chatID, "❌ Gagal menyimpan pengumuman: "+err.Error())
		return
	}
	b.drafts.Store(sender, ann.ID)

	b.reply(chatID, result.Content+
		"\n\n---\nPengumuman siap dikirim:\n"+
		"• /kirimgrup <nama/nomor grup>\n"+
		"• /kirimpv <nomor hp>\n"+
		"• /broadcast <nomor1,nomor2,...>\n"+
		"• /template simpan <nama> untuk menyimpan")
}

// cmdKirimGrup sends the current draft to a group. Without an argument it
// lists the known groups so the sender can pick by number.
func (b *Bot) cmdKirimGrup(ctx context.Context, sender, chatID, args string) {
	if args == "" {
		entries, err := b.store.ListDirectory(store.KindGroup)
		if err != nil {
			b.reply(chatID, "❌ Gagal membaca daftar grup: "+err.Error())
			return
		}
		if len(entries) == 0 {
			b.reply(chatID, "Belum ada grup yang dikenal. Tunggu sinkronisasi berikutnya.")
			return
		}
		var sb strings.Builder
		sb.WriteString("Daftar grup:\n")
		for i, e := range entries {
			fmt.Fprintf(&sb, "%d. %s (%d anggota)\n", i+1, e.Name, e.Members)
		}
		sb.WriteString("\nKirim dengan: /kirimgrup <nomor atau nama grup>")
		b.reply(chatID, sb.String())
		return
	}

	ann, ok := b.currentDraft(chatID, sender)
	if !ok {
		return
	}

	entry, err := b.resolver.Resolve(store.KindGroup, args)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("❌ Grup %q tidak ditemukan.", args))
		return
	}

	record := &store.DeliveryRecord{
		ID:             uuid.NewString(),
		AnnouncementID: ann.ID,
		TargetType:     store.TargetGroup,
		TargetID:       entry.ID,
		TargetName:     entry.Name,
	}
	if err := b.store.CreateDeliveryRecord(record); err != nil {
		L_error("bot: failed to create delivery record", "error", err)
	}

	res := b.dispatcher.SendToGroup(ctx, entry.ID, ann.FormattedContent)
	b.finishDelivery(record.ID, ann, res.Success, res.Error)

	if !res.Success {
		b.reply(chatID, "❌ Gagal mengirim ke grup "+entry.Name+": "+res.Error)
		return
	}
	b.reply(chatID, "✅ Pengumuman terkirim ke grup *"+entry.Name+"*")
}

// cmdKirimPV sends the current draft to a single personal number.
func (b *Bot) cmdKirimPV(ctx context.Context, sender, chatID, args string) {
	if args == "" {
		b.reply(chatID, "Format: /kirimpv <nomor hp>\nContoh: /kirimpv 081234567890")
		return
	}

	ann, ok := b.currentDraft(chatID, sender)
	if !ok {
		return
	}

	address := b.resolver.NormalizeContact(args)
	record := &store.DeliveryRecord{
		ID:             uuid.NewString(),
		AnnouncementID: ann.ID,
		TargetType:     store.TargetPersonal,
		TargetID:       address,
		TargetName:     args,
	}
	if err := b.store.CreateDeliveryRecord(record); err != nil {
		L_error("bot: failed to create delivery record", "error", err)
	}

	res := b.dispatcher.SendToPersonal(ctx, args, ann.FormattedContent)
	b.finishDelivery(record.ID, ann, res.Success, res.Error)

	if !res.Success {
		b.reply(chatID, "❌ Gagal mengirim ke "+args+": "+res.Error)
		return
	}
	b.reply(chatID, "✅ Pengumuman terkirim ke "+res.Contact)
}

// cmdBroadcast fans the current draft out to a list of numbers.
func (b *Bot) cmdBroadcast(ctx context.Context, sender, chatID, args string) {
	if args == "" {
		b.reply(chatID, "Format: /broadcast <nomor1,nomor2,...>\nContoh: /broadcast 0812xxx,0813xxx")
		return
	}

	ann, ok := b.currentDraft(chatID, sender)
	if !ok {
		return
	}

	var recipients []dispatch.Recipient
	for _, part := range strings.FieldsFunc(args, func(r rune) bool { return r == ',' || r == ' ' || r == '\n' }) {
		part = strings.TrimSpace(part)
		if part != "" {
			recipients = append(recipients, dispatch.Recipient{Phone: part})
		}
	}
	if len(recipients) == 0 {
		b.reply(chatID, "Tidak ada nomor yang valid.")
		return
	}

	b.reply(chatID, fmt.Sprintf("⏳ Mengirim broadcast ke %d nomor...", len(recipients)))

	res := b.dispatcher.SendBroadcast(ctx, ann, recipients)
	if res.Sent > 0 {
		if err := b.store.MarkAnnouncementSent(ann.ID); err != nil {
			L_warn("bot: failed to mark announcement sent", "error", err)
		}
	}

	b.reply(chatID, fmt.Sprintf("Broadcast selesai:\n• Terkirim: %d\n• Gagal: %d\n• Total: %d",
		res.Sent, res.Failed, res.Total))
}

// cmdTemplate manages saved announcement templates.
func (b *Bot) cmdTemplate(sender, chatID, args string) {
	sub, rest := splitCommand("/" + args)
	sub = strings.TrimPrefix(sub, "/")

	switch sub {
	case "", "list":
		templates, err := b.store.ListTemplates(sender)
		if err != nil {
			b.reply(chatID, "❌ Gagal membaca template: "+err.Error())
			return
		}
		if len(templates) == 0 {
			b.reply(chatID, "Belum ada template. Simpan dengan /template simpan <nama> setelah /buat.")
			return
		}
		var sb strings.Builder
		sb.WriteString("Template tersimpan:\n")
		for i, t := range templates {
			fmt.Fprintf(&sb, "%d. %s (dipakai %dx)\n", i+1, t.Name, t.UsageCount)
		}
		sb.WriteString("\nPakai dengan: /template pakai <nama>")
		b.reply(chatID, sb.String())

	case "simpan":
		if rest == "" {
			b.reply(chatID, "Format: /template simpan <nama>")
			return
		}
		ann, ok := b.currentDraft(chatID, sender)
		if !ok {
			return
		}
		tpl := &store.Template{
			ID:      uuid.NewString(),
			UserID:  sender,
			Name:    rest,
			Content: ann.FormattedContent,
		}
		if err := b.store.CreateTemplate(tpl); err != nil {
			b.reply(chatID, "❌ Gagal menyimpan template: "+err.Error())
			return
		}
		b.reply(chatID, "✅ Template *"+rest+"* tersimpan.")

	case "pakai":
		if rest == "" {
			b.reply(chatID, "Format: /template pakai <nama>")
			return
		}
		tpl, err := b.store.FindTemplate(sender, rest)
		if err != nil {
			b.reply(chatID, "❌ Gagal membaca template: "+err.Error())
			return
		}
		if tpl == nil {
			b.reply(chatID, fmt.Sprintf("Template %q tidak ditemukan.", rest))
			return
		}
		// Loading a template creates a fresh draft so the ledger stays
		// per-send.
		ann := &store.Announcement{
			ID:               uuid.NewString(),
			UserID:           sender,
			OriginalInput:    "template: " + tpl.Name,
			FormattedContent: tpl.Content,
			Provider:         "template",
		}
		if err := b.store.CreateAnnouncement(ann); err != nil {
			b.reply(chatID, "❌ Gagal memuat template: "+err.Error())
			return
		}
		b.drafts.Store(sender, ann.ID)
		if err := b.store.IncrementTemplateUsage(tpl.ID); err != nil {
			L_warn("bot: failed to bump template usage", "error", err)
		}
		b.reply(chatID, tpl.Content+"\n\n---\nTemplate dimuat, siap dikirim dengan /kirimgrup, /kirimpv, atau /broadcast.")

	case "hapus":
		if rest == "" {
			b.reply(chatID, "Format: /template hapus <nama>")
			return
		}
		tpl, err := b.store.FindTemplate(sender, rest)
		if err != nil || tpl == nil {
			b.reply(chatID, fmt.Sprintf("Template %q tidak ditemukan.", rest))
			return
		}
		if err := b.store.DeleteTemplate(tpl.ID); err != nil {
			b.reply(chatID, "❌ Gagal menghapus template: "+err.Error())
			return
		}
		b.reply(chatID, "✅ Template *"+rest+"* dihapus.")

	default:
		b.reply(chatID, "Sub-perintah template: list, simpan <nama>, pakai <nama>, hapus <nama>")
	}
}

// cmdStatus reports session and directory health.
func (b *Bot) cmdStatus(chatID string) {
	groups, _ := b.store.CountDirectory(store.KindGroup)
	contacts, _ := b.store.CountDirectory(store.KindContact)

	state := "terhubung"
	if !b.session.Connected() {
		state = "terputus"
	}

	b.reply(chatID, fmt.Sprintf("Status announcer:\n• Koneksi: %s\n• Grup dikenal: %d\n• Kontak dikenal: %d\n• Aktif sejak: %s",
		state, groups, contacts, b.session.StartedAt().Format("2006-01-02 15:04")))
}

func (b *Bot) cmdHelp(chatID string) {
	b.reply(chatID, `Perintah announcer:
/buat <teks> — format teks jadi pengumuman
/kirimgrup [grup] — kirim ke grup (tanpa argumen: daftar grup)
/kirimpv <nomor> — kirim ke nomor pribadi
/broadcast <nomor1,nomor2> — kirim ke banyak nomor
/template — kelola template (list, simpan, pakai, hapus)
/status — status koneksi dan direktori
/help — bantuan ini`)
}

// currentDraft loads the sender's active draft, replying with a hint when
// there is none.
func (b *Bot) currentDraft(chatID, sender string) (*store.Announcement, bool) {
	id, ok := b.drafts.Load(sender)
	if !ok {
		b.reply(chatID, "Belum ada pengumuman. Buat dulu dengan /buat <teks>.")
		return nil, false
	}
	ann, err := b.store.GetAnnouncement(id.(string))
	if err != nil || ann == nil {
		b.reply(chatID, "Pengumuman terakhir tidak ditemukan. Buat ulang dengan /buat <teks>.")
		return nil, false
	}
	return ann, true
}

// finishDelivery settles a ledger row after a single send and marks the
// announcement sent on success.
func (b *Bot) finishDelivery(recordID string, ann *store.Announcement, success bool, sendErr string) {
	status := store.DeliverySent
	if !success {
		status = store.DeliveryFailed
	}
	if err := b.store.UpdateDeliveryStatus(recordID, status, sendErr); err != nil {
		L_warn("bot: failed to update delivery status", "record", recordID, "error", err)
	}
	if success {
		if err := b.store.MarkAnnouncementSent(ann.ID); err != nil {
			L_warn("bot: failed to mark announcement sent", "error", err)
		}
	}
}

func (b *Bot) reply(chatID, text string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := b.session.SendText(ctx, chatID, text); err != nil {
		L_error("bot: failed to send reply", "chat", chatID, "error", err)
	}
}

// splitCommand separates "/cmd rest of args" into its command word and the
// trimmed remainder.
func splitCommand(text string) (string, string) {
	parts := strings.SplitN(text, " ", 2)
	command := strings.ToLower(strings.TrimSpace(parts[0]))
	args := ""
	if len(parts) > 1 {
		args = strings.TrimSpace(parts[1])
	}
	return command, args
}
