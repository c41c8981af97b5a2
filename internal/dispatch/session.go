// Package dispatch is the message-dispatch and delivery-tracking core: it
// resolves send targets against the chat directory, transmits through the
// live session with fan-out pacing, and keeps the delivery ledger consistent.
package dispatch

import (
	"context"
	"errors"
)

// ChatInfo describes one chat visible to the live session.
type ChatInfo struct {
	ID           string
	Name         string
	IsGroup      bool
	Participants int
}

// ChatSession is the live messaging session the dispatcher transmits through.
// Implemented by the whatsapp package; tests inject fakes.
type ChatSession interface {
	// ListChats enumerates all chats (groups and contacts) visible to the
	// session. Used by the directory sync.
	ListChats(ctx context.Context) ([]ChatInfo, error)

	// SendText transmits a text message to a chat id. Sending to a personal
	// address creates the chat if it does not exist yet.
	SendText(ctx context.Context, chatID, text string) error

	// Connected reports whether the session is currently usable.
	Connected() bool
}

// Typed failures surfaced by the resolver and dispatcher. They are recovered
// into structured results at the dispatcher boundary, never propagated raw to
// callers of the public entry points.
var (
	ErrNotFound = errors.New("target not found")
	ErrNotGroup = errors.New("target is not a group")
)
