package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	identity "device-relay/internal/identity/domain"
)

func TestUpdateWritesNextEvenOnError(t *testing.T) {
	store := NewCodeStore()
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := store.Update(ctx, "a@example.com", func(cur *identity.CodeEntry) (*identity.CodeEntry, error) {
		if cur != nil {
			t.Fatalf("expected empty entry")
		}
		return identity.NewCodeEntry("111111", now), nil
	}); err != nil {
		t.Fatalf("update: %v", err)
	}

	sentinel := errors.New("expired")
	err := store.Update(ctx, "a@example.com", func(cur *identity.CodeEntry) (*identity.CodeEntry, error) {
		if cur == nil || cur.Code != "111111" {
			t.Fatalf("unexpected current %+v", cur)
		}
		return nil, sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel, got %v", err)
	}
	if store.Len() != 0 {
		t.Fatalf("expected entry deleted alongside error")
	}
}

func TestDeleteExpired(t *testing.T) {
	store := NewCodeStore()
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	put := func(email string, at time.Time) {
		_ = store.Update(ctx, email, func(*identity.CodeEntry) (*identity.CodeEntry, error) {
			return identity.NewCodeEntry("123456", at), nil
		})
	}
	put("old@example.com", now.Add(-time.Hour))
	put("new@example.com", now)

	removed, err := store.DeleteExpired(ctx, now)
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if removed != 1 || store.Len() != 1 {
		t.Fatalf("expected one removal, got %d (len %d)", removed, store.Len())
	}
}

func TestUpdateIsAtomicPerEmail(t *testing.T) {
	store := NewCodeStore()
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.Update(ctx, "a@example.com", func(cur *identity.CodeEntry) (*identity.CodeEntry, error) {
				if cur == nil {
					return &identity.CodeEntry{Code: "1"}, nil
				}
				next := *cur
				next.Code += "1"
				return &next, nil
			})
		}()
	}
	wg.Wait()
	var got string
	_ = store.Update(ctx, "a@example.com", func(cur *identity.CodeEntry) (*identity.CodeEntry, error) {
		got = cur.Code
		return cur, nil
	})
	if len(got) != 50 {
		t.Fatalf("expected 50 serialized updates, got %d", len(got))
	}
}
