package presence

import (
	"sort"
	"sync"
	"time"
)

// StalenessWindow is how long a heartbeat keeps a device online.
const StalenessWindow = 120 * time.Second

// Clock provides current time.
type Clock interface {
	Now() time.Time
}

// SystemClock returns UTC wall time.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Status is the derived liveness of a device.
type Status struct {
	DeviceID    string         `json:"deviceId"`
	Online      bool           `json:"online"`
	LastSeen    *time.Time     `json:"lastSeen"`
	LastSeenAgo *time.Duration `json:"-"`
}

// Tracker records the latest heartbeat per device.
//
// Online is never stored: a device is online while its last heartbeat is
// younger than StalenessWindow. A client that stops polling (or batches its
// requests) goes offline silently; there is no disconnect event.
type Tracker struct {
	mu       sync.RWMutex
	lastSeen map[string]time.Time
	clock    Clock
}

// NewTracker constructs a tracker. A nil clock uses SystemClock.
func NewTracker(clock Clock) *Tracker {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Tracker{lastSeen: make(map[string]time.Time), clock: clock}
}

// RecordHeartbeat upserts the heartbeat time for a device.
func (t *Tracker) RecordHeartbeat(deviceID string, at time.Time) {
	if deviceID == "" {
		return
	}
	t.mu.Lock()
	t.lastSeen[deviceID] = at.UTC()
	t.mu.Unlock()
}

// Status derives the status of a device. Unknown devices are offline.
func (t *Tracker) Status(deviceID string) Status {
	t.mu.RLock()
	seen, ok := t.lastSeen[deviceID]
	t.mu.RUnlock()
	if !ok {
		return Status{DeviceID: deviceID}
	}
	return derive(deviceID, seen, t.clock.Now())
}

// Snapshot returns the status of every device seen so far, ordered by id.
func (t *Tracker) Snapshot() []Status {
	now := t.clock.Now()
	t.mu.RLock()
	out := make([]Status, 0, len(t.lastSeen))
	for id, seen := range t.lastSeen {
		out = append(out, derive(id, seen, now))
	}
	t.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out
}

// OnlineCount returns the number of devices currently online.
func (t *Tracker) OnlineCount() int {
	count := 0
	for _, status := range t.Snapshot() {
		if status.Online {
			count++
		}
	}
	return count
}

func derive(deviceID string, seen, now time.Time) Status {
	ago := now.Sub(seen)
	if ago < 0 {
		ago = 0
	}
	return Status{
		DeviceID:    deviceID,
		Online:      ago < StalenessWindow,
		LastSeen:    &seen,
		LastSeenAgo: &ago,
	}
}
