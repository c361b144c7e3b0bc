package audit

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log"
	"time"
)

// Actions recorded by the relay.
const (
	ActionCommandIssue     = "command.issue"
	ActionCommandExport    = "command.export"
	ActionCredentialIssue  = "credential.issue"
	ActionCredentialRevoke = "credential.revoke"
)

// Entry represents an audit log entry.
type Entry struct {
	ID            string
	Actor         string
	Role          string
	Action        string
	ResourceType  string
	ResourceID    string
	DeviceID      string
	Metadata      json.RawMessage
	PayloadDigest string
	IP            string
	UserAgent     string
	CreatedAt     time.Time
}

// Logger writes audit entries.
type Logger interface {
	Log(ctx context.Context, entry Entry) error
}

// NewID generates a random audit id.
func NewID() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return "audit-" + hex.EncodeToString(buf)
}

// DigestJSON computes a SHA256 hex digest for metadata payloads.
func DigestJSON(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// LogLogger writes audit entries to a standard logger.
type LogLogger struct {
	logger *log.Logger
}

// NewLogLogger constructs a log-backed audit logger.
func NewLogLogger(logger *log.Logger) *LogLogger {
	if logger == nil {
		return nil
	}
	return &LogLogger{logger: logger}
}

// Log prints one audit line.
func (l *LogLogger) Log(_ context.Context, entry Entry) error {
	if l == nil || l.logger == nil {
		return nil
	}
	entry = fill(entry)
	l.logger.Printf("audit id=%s actor=%s role=%s action=%s resource=%s/%s device=%s ip=%s digest=%s",
		entry.ID, entry.Actor, entry.Role, entry.Action, entry.ResourceType, entry.ResourceID,
		entry.DeviceID, entry.IP, entry.PayloadDigest)
	return nil
}

func fill(entry Entry) Entry {
	if entry.ID == "" {
		entry.ID = NewID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.PayloadDigest == "" {
		entry.PayloadDigest = DigestJSON(entry.Metadata)
	}
	return entry
}
