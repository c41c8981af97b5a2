// Package whatsapp provides the WhatsApp chat-session client for the
// announcer, backed by whatsmeow.
package whatsapp

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	_ "github.com/mattn/go-sqlite3"

	"github.com/user/wa-announcer/internal/dispatch"
	. "github.com/user/wa-announcer/internal/logging"
	"github.com/user/wa-announcer/internal/paths"
)

// waLogger bridges whatsmeow's waLog.Logger to our L_* functions
type waLogger struct {
	module string
}

func (l *waLogger) Debugf(msg string, args ...interface{}) {
	L_debug(fmt.Sprintf("whatsmeow/%s: %s", l.module, fmt.Sprintf(msg, args...)))
}

func (l *waLogger) Infof(msg string, args ...interface{}) {
	L_info(fmt.Sprintf("whatsmeow/%s: %s", l.module, fmt.Sprintf(msg, args...)))
}

func (l *waLogger) Warnf(msg string, args ...interface{}) {
	L_warn(fmt.Sprintf("whatsmeow/%s: %s", l.module, fmt.Sprintf(msg, args...)))
}

func (l *waLogger) Errorf(msg string, args ...interface{}) {
	L_error(fmt.Sprintf("whatsmeow/%s: %s", l.module, fmt.Sprintf(msg, args...)))
}

func (l *waLogger) Sub(module string) waLog.Logger {
	return &waLogger{module: l.module + "/" + module}
}

// Session is the long-lived authenticated WhatsApp session. It implements
// dispatch.ChatSession.
type Session struct {
	client    *whatsmeow.Client
	container *sqlstore.Container

	onReady   func()
	onMessage func(evt *events.Message)

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.RWMutex
	running   bool
	startedAt time.Time
	lastError error
}

// openContainer opens the whatsmeow device store at dbPath.
func openContainer(dbPath string) (*sqlstore.Container, error) {
	if err := paths.EnsureParentDir(dbPath); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open session db: %w", err)
	}

	container := sqlstore.NewWithDB(db, "sqlite3", &waLogger{module: "store"})
	if err := container.Upgrade(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to upgrade session store: %w", err)
	}
	return container, nil
}

// NewSession loads the paired device from the session store and prepares a
// client. Fails if no device has been paired yet.
func NewSession(dbPath string) (*Session, error) {
	container, err := openContainer(dbPath)
	if err != nil {
		return nil, err
	}

	device, err := container.GetFirstDevice(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to get device: %w", err)
	}
	if device == nil || device.ID == nil {
		return nil, fmt.Errorf("no device paired — run 'announcer link' first")
	}

	client := whatsmeow.NewClient(device, &waLogger{module: "client"})
	ctx, cancel := context.WithCancel(context.Background())

	return &Session{
		client:    client,
		container: container,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// OnReady registers a callback invoked each time the session finishes
// connecting. Must be set before Start.
func (s *Session) OnReady(fn func()) {
	s.onReady = fn
}

// OnMessage registers the inbound message handler. Must be set before Start.
func (s *Session) OnMessage(fn func(evt *events.Message)) {
	s.onMessage = fn
}

// Start connects to WhatsApp and begins handling events.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	s.client.AddEventHandler(s.handleEvent)

	if err := s.client.Connect(); err != nil {
		s.lastError = err
		return fmt.Errorf("whatsapp: failed to connect: %w", err)
	}

	s.running = true
	s.startedAt = time.Now()
	s.lastError = nil

	L_info("whatsapp: connecting", "jid", s.client.Store.ID)
	return nil
}

// Stop disconnects from WhatsApp.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	L_info("whatsapp: disconnecting")
	s.cancel()
	s.client.Disconnect()
	s.running = false
}

// Connected implements dispatch.ChatSession.
func (s *Session) Connected() bool {
	return s.client.IsConnected()
}

// JID returns the paired account's identifier, or "" if unknown.
func (s *Session) JID() string {
	if s.client.Store.ID == nil {
		return ""
	}
	return s.client.Store.ID.String()
}

// StartedAt returns when the session was started.
func (s *Session) StartedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.startedAt
}

// SendText implements dispatch.ChatSession. Sending to a personal address
// creates the chat if needed.
func (s *Session) SendText(ctx context.Context, chatID, text string) error {
	jid, err := types.ParseJID(chatID)
	if err != nil {
		return fmt.Errorf("invalid chat id %q: %w", chatID, err)
	}

	_, err = s.client.SendMessage(ctx, jid, &waE2E.Message{
		Conversation: proto.String(text),
	})
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// ListChats implements dispatch.ChatSession: joined groups plus all known
// contacts from the session's contact store.
func (s *Session) ListChats(ctx context.Context) ([]dispatch.ChatInfo, error) {
	groups, err := s.client.GetJoinedGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("get joined groups: %w", err)
	}

	chats := make([]dispatch.ChatInfo, 0, len(groups))
	for _, g := range groups {
		chats = append(chats, dispatch.ChatInfo{
			ID:           g.JID.String(),
			Name:         g.Name,
			IsGroup:      true,
			Participants: len(g.Participants),
		})
	}

	contacts, err := s.client.Store.Contacts.GetAllContacts(ctx)
	if err != nil {
		return nil, fmt.Errorf("get contacts: %w", err)
	}
	for jid, info := range contacts {
		name := info.FullName
		if name == "" {
			name = info.PushName
		}
		if name == "" {
			name = jid.User
		}
		chats = append(chats, dispatch.ChatInfo{
			ID:      jid.String(),
			Name:    name,
			IsGroup: false,
		})
	}

	return chats, nil
}

// handleEvent is the whatsmeow event handler
func (s *Session) handleEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.Connected:
		L_info("whatsapp: session ready")
		if s.onReady != nil {
			go s.onReady()
		}
	case *events.Disconnected:
		L_warn("whatsapp: disconnected from server")
	case *events.LoggedOut:
		L_error("whatsapp: logged out — re-pair with 'announcer link'", "reason", v.Reason)
		s.mu.Lock()
		s.lastError = fmt.Errorf("logged out: %v", v.Reason)
		s.mu.Unlock()
	case *events.Message:
		if s.onMessage != nil {
			s.onMessage(v)
		}
	}
}
