package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"device-relay/internal/apperr"
	commands "device-relay/internal/commands/domain"
)

// ErrDuplicateID is returned when a command id is already present.
var ErrDuplicateID = apperr.New(apperr.KindConflict, "COMMAND_ID_CONFLICT", "command id already exists")

type entry struct {
	mu      sync.Mutex
	cmd     commands.Command
	deleted bool
}

// CommandRepository is the process-local command table.
//
// The table lock guards membership only. Reads and updates of a single
// command run under that command's own mutex.
type CommandRepository struct {
	mu       sync.RWMutex
	entries  map[string]*entry
	byDevice map[string]map[string]struct{}
}

// NewCommandRepository constructs an empty repository.
func NewCommandRepository() *CommandRepository {
	return &CommandRepository{
		entries:  make(map[string]*entry),
		byDevice: make(map[string]map[string]struct{}),
	}
}

// Create inserts a new command.
func (r *CommandRepository) Create(ctx context.Context, cmd *commands.Command) error {
	_ = ctx
	if cmd == nil {
		return errors.New("command repo: nil command")
	}
	if cmd.ID == "" {
		return errors.New("command repo: empty command id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[cmd.ID]; exists {
		return ErrDuplicateID
	}
	r.entries[cmd.ID] = &entry{cmd: cmd.Clone()}
	ids := r.byDevice[cmd.DeviceID]
	if ids == nil {
		ids = make(map[string]struct{})
		r.byDevice[cmd.DeviceID] = ids
	}
	ids[cmd.ID] = struct{}{}
	return nil
}

// Get returns a copy of the command, or nil when absent.
func (r *CommandRepository) Get(ctx context.Context, id string) (*commands.Command, error) {
	_ = ctx
	e := r.lookup(id)
	if e == nil {
		return nil, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return nil, nil
	}
	cmd := e.cmd.Clone()
	return &cmd, nil
}

// Update applies fn to a copy of the command under the command's lock and
// commits the copy only when fn returns nil.
func (r *CommandRepository) Update(ctx context.Context, id string, fn func(cmd *commands.Command) error) (*commands.Command, error) {
	_ = ctx
	e := r.lookup(id)
	if e == nil {
		return nil, commands.ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return nil, commands.ErrNotFound
	}
	working := e.cmd.Clone()
	if err := fn(&working); err != nil {
		return nil, err
	}
	e.cmd = working
	out := working.Clone()
	return &out, nil
}

// FetchPending returns every command for the device with no result yet and
// stamps its fetch time. Previously fetched commands are returned again.
func (r *CommandRepository) FetchPending(ctx context.Context, deviceID string, at time.Time) ([]commands.Command, error) {
	_ = ctx
	r.mu.RLock()
	candidates := make([]*entry, 0, len(r.byDevice[deviceID]))
	for id := range r.byDevice[deviceID] {
		if e := r.entries[id]; e != nil {
			candidates = append(candidates, e)
		}
	}
	r.mu.RUnlock()

	var result []commands.Command
	for _, e := range candidates {
		e.mu.Lock()
		if !e.deleted && !e.cmd.Completed() {
			e.cmd.MarkFetched(at)
			result = append(result, e.cmd.Clone())
		}
		e.mu.Unlock()
	}
	sortByIssued(result, false)
	return result, nil
}

// ListByIssuer returns commands issued by the operator, newest first.
// An empty deviceID matches every device.
func (r *CommandRepository) ListByIssuer(ctx context.Context, issuer, deviceID string) ([]commands.Command, error) {
	_ = ctx
	var result []commands.Command
	for _, e := range r.snapshot() {
		e.mu.Lock()
		if !e.deleted && e.cmd.IssuedBy == issuer && (deviceID == "" || e.cmd.DeviceID == deviceID) {
			result = append(result, e.cmd.Clone())
		}
		e.mu.Unlock()
	}
	sortByIssued(result, true)
	return result, nil
}

// CountPending returns the number of commands still waiting for a result.
func (r *CommandRepository) CountPending(ctx context.Context) (int, error) {
	_ = ctx
	count := 0
	for _, e := range r.snapshot() {
		e.mu.Lock()
		if !e.deleted && !e.cmd.Completed() {
			count++
		}
		e.mu.Unlock()
	}
	return count, nil
}

// DeleteCompletedBefore removes completed commands whose completion is older
// than before. Pending commands are never removed.
func (r *CommandRepository) DeleteCompletedBefore(ctx context.Context, before time.Time) (int, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, e := range r.entries {
		e.mu.Lock()
		if e.cmd.CompletedAt != nil && e.cmd.CompletedAt.Before(before) {
			e.deleted = true
			delete(r.entries, id)
			if ids := r.byDevice[e.cmd.DeviceID]; ids != nil {
				delete(ids, id)
				if len(ids) == 0 {
					delete(r.byDevice, e.cmd.DeviceID)
				}
			}
			removed++
		}
		e.mu.Unlock()
	}
	return removed, nil
}

func (r *CommandRepository) lookup(id string) *entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[id]
}

func (r *CommandRepository) snapshot() []*entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	return out
}

func sortByIssued(list []commands.Command, newestFirst bool) {
	sort.Slice(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if !a.IssuedAt.Equal(b.IssuedAt) {
			if newestFirst {
				return a.IssuedAt.After(b.IssuedAt)
			}
			return a.IssuedAt.Before(b.IssuedAt)
		}
		if newestFirst {
			return a.ID > b.ID
		}
		return a.ID < b.ID
	})
}
