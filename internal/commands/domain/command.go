package commands

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"time"
)

const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
)

// DefaultResult is recorded when a device submits an empty result.
const DefaultResult = "command executed"

// Command represents a unit of work routed to exactly one device.
type Command struct {
	ID          string
	Text        string
	DeviceID    string
	IssuedBy    string
	IssuedAt    time.Time
	FetchedAt   *time.Time
	CompletedAt *time.Time
	Result      *string
	Success     *bool
}

// Status is derived from whether a result has been recorded.
func (c Command) Status() string {
	if c.Result != nil {
		return StatusCompleted
	}
	return StatusPending
}

// Completed reports whether a result has been recorded.
func (c Command) Completed() bool {
	return c.Result != nil
}

// Clone returns a deep copy so callers never share mutable fields with the store.
func (c Command) Clone() Command {
	out := c
	if c.FetchedAt != nil {
		v := *c.FetchedAt
		out.FetchedAt = &v
	}
	if c.CompletedAt != nil {
		v := *c.CompletedAt
		out.CompletedAt = &v
	}
	if c.Result != nil {
		v := *c.Result
		out.Result = &v
	}
	if c.Success != nil {
		v := *c.Success
		out.Success = &v
	}
	return out
}

// Complete records a result. Repeated calls overwrite the previous result.
func (c *Command) Complete(result string, at time.Time) {
	if result == "" {
		result = DefaultResult
	}
	success := true
	completedAt := at.UTC()
	c.Result = &result
	c.CompletedAt = &completedAt
	c.Success = &success
}

// MarkFetched stamps the fetch time. It never gates any transition.
func (c *Command) MarkFetched(at time.Time) {
	fetchedAt := at.UTC()
	c.FetchedAt = &fetchedAt
}

// NewID builds a roughly time-sortable command id: cmd_<unix millis>_<8 hex>.
func NewID(now time.Time) string {
	var buf [4]byte
	_, _ = rand.Read(buf[:])
	return "cmd_" + strconv.FormatInt(now.UnixMilli(), 10) + "_" + hex.EncodeToString(buf[:])
}
