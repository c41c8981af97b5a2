package dispatch

import (
	"strconv"
	"strings"

	"github.com/user/wa-announcer/internal/store"
)

// Resolver maps a target descriptor (chat id, free-text name, or 1-based
// positional index) to a directory entry of the requested kind. It only reads
// the directory cache; the sync owns writes.
type Resolver struct {
	store       *store.Store
	countryCode string
}

// NewResolver creates a resolver over the directory cache.
func NewResolver(st *store.Store, countryCode string) *Resolver {
	if countryCode == "" {
		countryCode = DefaultCountryCode
	}
	return &Resolver{store: st, countryCode: countryCode}
}

// Resolve finds the directory entry matching descriptor among entries of the
// given kind (store.KindGroup or store.KindContact). Matching policy:
//   - contact descriptors that look like phone numbers are normalized to
//     address form first (personal chats may not be in the directory yet)
//   - an explicit chat id (contains "@") is looked up directly
//   - a positive integer indexes the snapshot in discovery order, 1-based
//   - anything else is a case-insensitive substring match on display names;
//     first match in snapshot order wins, no ranking
//
// Returns ErrNotFound when nothing matches.
func (r *Resolver) Resolve(kind, descriptor string) (*store.DirectoryEntry, error) {
	desc := strings.TrimSpace(descriptor)
	if desc == "" {
		return nil, ErrNotFound
	}

	if kind == store.KindContact && looksLikePhone(desc) {
		desc = NormalizePhone(desc, r.countryCode)
	}

	if strings.Contains(desc, "@") {
		entry, err := r.store.GetDirectoryEntry(desc)
		if err != nil {
			return nil, err
		}
		if entry == nil || entry.Kind != kind {
			return nil, ErrNotFound
		}
		return entry, nil
	}

	entries, err := r.store.ListDirectory(kind)
	if err != nil {
		return nil, err
	}

	if n, err := strconv.Atoi(desc); err == nil {
		if n < 1 || n > len(entries) {
			return nil, ErrNotFound
		}
		return entries[n-1], nil
	}

	needle := strings.ToLower(desc)
	for _, entry := range entries {
		if strings.Contains(strings.ToLower(entry.Name), needle) {
			return entry, nil
		}
	}
	return nil, ErrNotFound
}

// NormalizeContact returns the canonical personal-chat address for a phone
// descriptor using the resolver's country code policy.
func (r *Resolver) NormalizeContact(phone string) string {
	return NormalizePhone(phone, r.countryCode)
}
