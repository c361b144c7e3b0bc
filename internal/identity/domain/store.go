package identity

import (
	"context"
	"time"
)

// UpdateFunc receives the current entry (nil if absent) and returns the next one.
// Returning a nil entry deletes it. The store writes next even when err is non-nil.
type UpdateFunc func(current *CodeEntry) (next *CodeEntry, err error)

// CodeStore keeps pending login codes keyed by normalized email.
type CodeStore interface {
	Update(ctx context.Context, email string, fn UpdateFunc) error
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}
