package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	commands "device-relay/internal/commands/domain"
)

func TestCreate_RejectsDuplicateID(t *testing.T) {
	repo := NewCommandRepository()
	ctx := context.Background()
	cmd := &commands.Command{ID: "cmd-1", DeviceID: "dev1", Text: "ls"}
	if err := repo.Create(ctx, cmd); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.Create(ctx, cmd); !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
}

func TestGet_ReturnsCopy(t *testing.T) {
	repo := NewCommandRepository()
	ctx := context.Background()
	_ = repo.Create(ctx, &commands.Command{ID: "cmd-1", DeviceID: "dev1", Text: "ls"})

	got, err := repo.Get(ctx, "cmd-1")
	if err != nil || got == nil {
		t.Fatalf("get: %v %v", got, err)
	}
	got.Text = "rm -rf /"
	again, _ := repo.Get(ctx, "cmd-1")
	if again.Text != "ls" {
		t.Fatalf("repository state leaked through copy: %s", again.Text)
	}
	missing, err := repo.Get(ctx, "nope")
	if err != nil || missing != nil {
		t.Fatalf("expected nil for missing command, got %v %v", missing, err)
	}
}

func TestUpdate_RollsBackOnError(t *testing.T) {
	repo := NewCommandRepository()
	ctx := context.Background()
	_ = repo.Create(ctx, &commands.Command{ID: "cmd-1", DeviceID: "dev1", Text: "ls"})

	boom := errors.New("boom")
	_, err := repo.Update(ctx, "cmd-1", func(cmd *commands.Command) error {
		cmd.Complete("partial", time.Now())
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	got, _ := repo.Get(ctx, "cmd-1")
	if got.Completed() {
		t.Fatalf("failed update must not be committed")
	}

	if _, err := repo.Update(ctx, "missing", func(*commands.Command) error { return nil }); !errors.Is(err, commands.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestFetchPending_FiltersByDeviceAndResult(t *testing.T) {
	repo := NewCommandRepository()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	_ = repo.Create(ctx, &commands.Command{ID: "cmd-b", DeviceID: "dev1", Text: "b", IssuedAt: base.Add(time.Second)})
	_ = repo.Create(ctx, &commands.Command{ID: "cmd-a", DeviceID: "dev1", Text: "a", IssuedAt: base})
	_ = repo.Create(ctx, &commands.Command{ID: "cmd-c", DeviceID: "dev2", Text: "c", IssuedAt: base})
	_, _ = repo.Update(ctx, "cmd-b", func(cmd *commands.Command) error {
		cmd.Complete("done", base)
		return nil
	})
	_ = repo.Create(ctx, &commands.Command{ID: "cmd-d", DeviceID: "dev1", Text: "d", IssuedAt: base.Add(2 * time.Second)})

	fetchedAt := base.Add(time.Minute)
	list, err := repo.FetchPending(ctx, "dev1", fetchedAt)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(list) != 2 || list[0].ID != "cmd-a" || list[1].ID != "cmd-d" {
		t.Fatalf("unexpected pending list %+v", list)
	}
	stored, _ := repo.Get(ctx, "cmd-a")
	if stored.FetchedAt == nil || !stored.FetchedAt.Equal(fetchedAt) {
		t.Fatalf("expected fetch stamp, got %v", stored.FetchedAt)
	}

	again, _ := repo.FetchPending(ctx, "dev1", fetchedAt.Add(time.Minute))
	if len(again) != 2 {
		t.Fatalf("expected redelivery of pending commands, got %d", len(again))
	}
}

func TestUpdate_ConcurrentSubmissionsNeverTear(t *testing.T) {
	repo := NewCommandRepository()
	ctx := context.Background()
	_ = repo.Create(ctx, &commands.Command{ID: "cmd-1", DeviceID: "dev1", Text: "ls"})

	payloads := []string{"result-from-a", "result-from-b"}
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		for _, payload := range payloads {
			wg.Add(1)
			go func(p string) {
				defer wg.Done()
				_, _ = repo.Update(ctx, "cmd-1", func(cmd *commands.Command) error {
					cmd.Complete(p, time.Now())
					return nil
				})
			}(payload)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, _ := repo.Get(ctx, "cmd-1")
			if got.Completed() && got.CompletedAt == nil {
				t.Errorf("observed torn record")
			}
		}()
	}
	wg.Wait()

	got, _ := repo.Get(ctx, "cmd-1")
	if *got.Result != payloads[0] && *got.Result != payloads[1] {
		t.Fatalf("final result is not one of the payloads: %q", *got.Result)
	}
}

func TestDeleteCompletedBefore_KeepsPending(t *testing.T) {
	repo := NewCommandRepository()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		_ = repo.Create(ctx, &commands.Command{ID: fmt.Sprintf("cmd-%d", i), DeviceID: "dev1", IssuedBy: "a@x.com"})
	}
	_, _ = repo.Update(ctx, "cmd-0", func(cmd *commands.Command) error {
		cmd.Complete("old", base)
		return nil
	})
	_, _ = repo.Update(ctx, "cmd-1", func(cmd *commands.Command) error {
		cmd.Complete("new", base.Add(2*time.Hour))
		return nil
	})

	removed, err := repo.DeleteCompletedBefore(ctx, base.Add(time.Hour))
	if err != nil || removed != 1 {
		t.Fatalf("expected 1 removed, got %d (%v)", removed, err)
	}
	list, _ := repo.ListByIssuer(ctx, "a@x.com", "")
	if len(list) != 2 {
		t.Fatalf("expected 2 remaining, got %d", len(list))
	}
	pending, _ := repo.CountPending(ctx)
	if pending != 1 {
		t.Fatalf("expected 1 pending, got %d", pending)
	}
}
