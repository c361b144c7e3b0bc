package memory

import (
	"context"
	"sync"
	"time"

	identity "device-relay/internal/identity/domain"
)

// CodeStore keeps login codes in process memory.
type CodeStore struct {
	mu      sync.Mutex
	entries map[string]identity.CodeEntry
}

// NewCodeStore constructs an empty store.
func NewCodeStore() *CodeStore {
	return &CodeStore{entries: make(map[string]identity.CodeEntry)}
}

// Update runs fn atomically for email and stores what it returns.
func (s *CodeStore) Update(ctx context.Context, email string, fn identity.UpdateFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var current *identity.CodeEntry
	if entry, ok := s.entries[email]; ok {
		copied := entry
		current = &copied
	}
	next, err := fn(current)
	if next == nil {
		delete(s.entries, email)
	} else {
		s.entries[email] = *next
	}
	return err
}

// DeleteExpired removes entries past their expiry and returns how many were dropped.
func (s *CodeStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for email, entry := range s.entries {
		if entry.Expired(now) {
			delete(s.entries, email)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of pending entries.
func (s *CodeStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
