package commands

import (
	"regexp"
	"testing"
	"time"
)

func TestNewID_Format(t *testing.T) {
	now := time.UnixMilli(1767225600123)
	id := NewID(now)
	if !regexp.MustCompile(`^cmd_1767225600123_[0-9a-f]{8}$`).MatchString(id) {
		t.Fatalf("unexpected id %q", id)
	}
	if NewID(now) == id {
		t.Fatalf("expected random suffix to differ")
	}
}

func TestComplete_DefaultsAndOverwrites(t *testing.T) {
	cmd := Command{ID: "cmd-1", Text: "ping", DeviceID: "dev1"}
	if cmd.Status() != StatusPending {
		t.Fatalf("expected pending, got %s", cmd.Status())
	}

	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cmd.Complete("", at)
	if cmd.Status() != StatusCompleted || *cmd.Result != DefaultResult {
		t.Fatalf("expected default result, got %v", cmd.Result)
	}
	if cmd.Success == nil || !*cmd.Success {
		t.Fatalf("expected success flag set")
	}

	cmd.Complete("pong", at.Add(time.Second))
	if *cmd.Result != "pong" || !cmd.CompletedAt.Equal(at.Add(time.Second)) {
		t.Fatalf("expected last write to win, got %s at %v", *cmd.Result, cmd.CompletedAt)
	}
}

func TestClone_DoesNotShareFields(t *testing.T) {
	cmd := Command{ID: "cmd-1"}
	cmd.Complete("first", time.Now())
	clone := cmd.Clone()
	*cmd.Result = "second"
	if *clone.Result != "first" {
		t.Fatalf("clone shares result pointer: %s", *clone.Result)
	}
}
