package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	. "github.com/user/wa-announcer/internal/logging"
	"github.com/user/wa-announcer/internal/store"
)

// Syncer reconciles the live session's visible chats into the directory
// cache. Every pass is a full re-enumeration; entries are upserted by id and
// stale ones persist until overwritten. At most one pass runs at a time:
// session-ready events and the cron schedule can both fire, so Sync skips
// when a pass is already in flight.
type Syncer struct {
	session ChatSession
	store   *store.Store
	running sync.Mutex
}

// NewSyncer creates a directory syncer.
func NewSyncer(session ChatSession, st *store.Store) *Syncer {
	return &Syncer{session: session, store: st}
}

// Sync enumerates all visible chats and refreshes the directory cache.
// Failure is non-fatal to the process: the resolver keeps serving the stale
// snapshot until the next pass succeeds.
func (s *Syncer) Sync(ctx context.Context) error {
	if !s.running.TryLock() {
		L_debug("sync: pass already in flight, skipping")
		return nil
	}
	defer s.running.Unlock()

	start := time.Now()
	L_debug("sync: enumerating chats")

	chats, err := s.session.ListChats(ctx)
	if err != nil {
		return fmt.Errorf("list chats: %w", err)
	}

	groups, contacts := 0, 0
	for _, chat := range chats {
		kind := store.KindContact
		if chat.IsGroup {
			kind = store.KindGroup
		}
		entry := &store.DirectoryEntry{
			ID:      chat.ID,
			Name:    chat.Name,
			Kind:    kind,
			Members: chat.Participants,
		}
		if err := s.store.UpsertDirectoryEntry(entry); err != nil {
			return fmt.Errorf("upsert %s: %w", chat.ID, err)
		}
		if chat.IsGroup {
			groups++
		} else {
			contacts++
		}
	}

	L_elapsed(start, "sync: directory refreshed", "groups", groups, "contacts", contacts)
	return nil
}
