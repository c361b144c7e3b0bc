package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	credentials "device-relay/internal/credentials/domain"
)

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := Open(""); err == nil {
		t.Fatal("expected empty path error")
	}
}

func TestCreateFindRoundTrip(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	expires := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	input := sampleCredential("cred-1", "ops@example.com", "hash-1", time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	input.ExpiresAt = &expires
	if err := store.Create(ctx, &input); err != nil {
		t.Fatalf("create credential: %v", err)
	}

	got, err := store.FindByHash(ctx, "hash-1")
	if err != nil {
		t.Fatalf("find by hash: %v", err)
	}
	if got == nil {
		t.Fatal("expected credential")
	}
	if got.ID != "cred-1" || got.DeviceID != "dev-1" || got.Name != "Lab Pi API Key" {
		t.Fatalf("unexpected credential: %+v", got)
	}
	if !got.CreatedAt.Equal(input.CreatedAt) {
		t.Fatalf("created_at = %v, want %v", got.CreatedAt, input.CreatedAt)
	}
	if got.ExpiresAt == nil || !got.ExpiresAt.Equal(expires) {
		t.Fatalf("expires_at = %v, want %v", got.ExpiresAt, expires)
	}
	if got.LastUsed != nil {
		t.Fatalf("expected nil last used")
	}
	if !got.Active || len(got.Permissions) != 1 || got.Metadata.CreatedBy != "ops@example.com" {
		t.Fatalf("unexpected fields: %+v", got)
	}

	byID, err := store.FindByID(ctx, "cred-1")
	if err != nil || byID == nil {
		t.Fatalf("find by id: %v %v", byID, err)
	}
	missing, err := store.FindByHash(ctx, "nope")
	if err != nil || missing != nil {
		t.Fatalf("expected nil for missing hash, got %v %v", missing, err)
	}
}

func TestCreateDuplicateHash(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	first := sampleCredential("cred-1", "ops@example.com", "hash-1", now)
	if err := store.Create(ctx, &first); err != nil {
		t.Fatalf("create credential: %v", err)
	}
	second := sampleCredential("cred-2", "ops@example.com", "hash-1", now)
	if err := store.Create(ctx, &second); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestListDeleteTouch(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"cred-1", "cred-2"} {
		c := sampleCredential(id, "ops@example.com", "hash-"+id, base.Add(time.Duration(i)*time.Minute))
		if err := store.Create(ctx, &c); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}
	other := sampleCredential("cred-3", "other@example.com", "hash-cred-3", base)
	if err := store.Create(ctx, &other); err != nil {
		t.Fatalf("create other: %v", err)
	}

	list, err := store.ListByOwner(ctx, "ops@example.com")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].ID != "cred-2" {
		t.Fatalf("expected newest first, got %+v", list)
	}

	used := base.Add(time.Hour)
	if err := store.TouchLastUsed(ctx, "cred-1", used); err != nil {
		t.Fatalf("touch: %v", err)
	}
	got, err := store.FindByID(ctx, "cred-1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.LastUsed == nil || !got.LastUsed.Equal(used) {
		t.Fatalf("last_used = %v, want %v", got.LastUsed, used)
	}

	deleted, err := store.Delete(ctx, "cred-3", "ops@example.com")
	if err != nil || deleted {
		t.Fatalf("expected no delete across owners, got %v %v", deleted, err)
	}
	deleted, err = store.Delete(ctx, "cred-1", "ops@example.com")
	if err != nil || !deleted {
		t.Fatalf("expected delete, got %v %v", deleted, err)
	}
	gone, err := store.FindByHash(ctx, "hash-cred-1")
	if err != nil || gone != nil {
		t.Fatalf("expected credential removed, got %v %v", gone, err)
	}
}

func TestReopenKeepsData(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "credentials.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	c := sampleCredential("cred-1", "ops@example.com", "hash-1", time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	if err := store.Create(context.Background(), &c); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = reopened.Close() })
	got, err := reopened.FindByID(context.Background(), "cred-1")
	if err != nil || got == nil {
		t.Fatalf("expected credential after reopen, got %v %v", got, err)
	}
}

func openTempStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "credentials.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return store
}

func sampleCredential(id, owner, hash string, createdAt time.Time) credentials.Credential {
	return credentials.Credential{
		ID:          id,
		OwnerEmail:  owner,
		DeviceID:    "dev-1",
		DeviceName:  "Lab Pi",
		Name:        credentials.KeyName("Lab Pi"),
		HashedKey:   hash,
		Prefix:      "sk_abcdef...",
		CreatedAt:   createdAt,
		Active:      true,
		Permissions: []string{credentials.PermissionExecuteCommands},
		Metadata:    credentials.Metadata{CreatedBy: owner, IP: "127.0.0.1", UserAgent: "test"},
	}
}
