package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"device-relay/internal/apperr"
	"device-relay/internal/auth"
	commands "device-relay/internal/commands/domain"
	"device-relay/internal/observability/metrics"
	"device-relay/internal/presence"
)

// Repository stores commands for the relay.
type Repository interface {
	Create(ctx context.Context, cmd *commands.Command) error
	Get(ctx context.Context, id string) (*commands.Command, error)
	Update(ctx context.Context, id string, fn func(cmd *commands.Command) error) (*commands.Command, error)
	FetchPending(ctx context.Context, deviceID string, at time.Time) ([]commands.Command, error)
	ListByIssuer(ctx context.Context, issuer, deviceID string) ([]commands.Command, error)
	CountPending(ctx context.Context) (int, error)
	DeleteCompletedBefore(ctx context.Context, before time.Time) (int, error)
}

// Presence records and derives device liveness.
type Presence interface {
	RecordHeartbeat(deviceID string, at time.Time)
	Status(deviceID string) presence.Status
	Snapshot() []presence.Status
	OnlineCount() int
}

// IssueRequest is the operator input for a new command.
type IssueRequest struct {
	DeviceID string `json:"deviceId"`
	Command  string `json:"command"`
}

// IssueResponse acknowledges a queued command.
type IssueResponse struct {
	CommandID string    `json:"commandId"`
	DeviceID  string    `json:"deviceId"`
	Timestamp time.Time `json:"timestamp"`
}

// PendingCommand is what a device receives when it polls.
type PendingCommand struct {
	ID        string    `json:"id"`
	Command   string    `json:"command"`
	IssuedBy  string    `json:"issuedBy"`
	Timestamp time.Time `json:"timestamp"`
}

// PollResult is the device's view of its queue at poll time.
type PollResult struct {
	Commands   []PendingCommand `json:"commands"`
	DeviceID   string           `json:"deviceId"`
	DeviceName string           `json:"deviceName"`
	Timestamp  time.Time        `json:"timestamp"`
}

// SubmitRequest is a device's answer to a command.
type SubmitRequest struct {
	CommandID string `json:"commandId"`
	Result    string `json:"result"`
}

// CommandView is the externally visible shape of a command.
type CommandView struct {
	ID          string     `json:"id"`
	Command     string     `json:"command"`
	DeviceID    string     `json:"deviceId"`
	IssuedBy    string     `json:"issuedBy"`
	Timestamp   time.Time  `json:"timestamp"`
	Status      string     `json:"status"`
	Fetched     bool       `json:"fetched"`
	Result      *string    `json:"result,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Success     *bool      `json:"success,omitempty"`
}

// DeviceStatus is presence as reported to operators.
type DeviceStatus struct {
	DeviceID    string     `json:"deviceId"`
	Online      bool       `json:"online"`
	LastSeen    *time.Time `json:"lastSeen"`
	LastSeenAgo *string    `json:"lastSeenAgo"`
}

// DeviceStats aggregates the relay state.
type DeviceStats struct {
	TotalDevices    int `json:"totalDevices"`
	OnlineDevices   int `json:"onlineDevices"`
	PendingCommands int `json:"pendingCommands"`
}

// DevicesOverview lists every known device.
type DevicesOverview struct {
	Devices []DeviceStatus `json:"devices"`
	Stats   DeviceStats    `json:"stats"`
}

// Service relays commands between operators and polling devices.
type Service struct {
	repo     Repository
	presence Presence
	clock    presence.Clock
	logger   *log.Logger
}

// Option configures the service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(clock presence.Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService constructs a relay service.
func NewService(repo Repository, tracker Presence, opts ...Option) (*Service, error) {
	if repo == nil {
		return nil, errors.New("commands: nil repo")
	}
	if tracker == nil {
		return nil, errors.New("commands: nil presence tracker")
	}
	s := &Service{repo: repo, presence: tracker, clock: presence.SystemClock{}}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Issue queues a command for a device. The device need not exist or be online.
func (s *Service) Issue(ctx context.Context, operator auth.Identity, req IssueRequest) (*IssueResponse, error) {
	if operator.Email == "" {
		return nil, commands.ErrOperatorRequired
	}
	deviceID := strings.TrimSpace(req.DeviceID)
	if deviceID == "" || req.Command == "" {
		return nil, commands.ErrFieldsRequired
	}
	now := s.clock.Now().UTC()
	cmd := &commands.Command{
		ID:       commands.NewID(now),
		Text:     req.Command,
		DeviceID: deviceID,
		IssuedBy: operator.Email,
		IssuedAt: now,
	}
	if err := s.repo.Create(ctx, cmd); err != nil {
		return nil, apperr.Internal(err, "Failed to send command")
	}
	metrics.IncCommandIssued()
	s.logf("commands: %s queued for %s by %s", cmd.ID, deviceID, operator.Email)
	return &IssueResponse{CommandID: cmd.ID, DeviceID: deviceID, Timestamp: now}, nil
}

// PollPending records a heartbeat and returns every unanswered command for the device.
func (s *Service) PollPending(ctx context.Context, device auth.Device) (*PollResult, error) {
	if device.DeviceID == "" {
		return nil, commands.ErrDeviceRequired
	}
	now := s.clock.Now().UTC()
	s.presence.RecordHeartbeat(device.DeviceID, now)

	pending, err := s.repo.FetchPending(ctx, device.DeviceID, now)
	if err != nil {
		metrics.ObservePoll(metrics.ResultError, 0)
		return nil, apperr.Internal(err, "Failed to check for commands")
	}
	out := make([]PendingCommand, 0, len(pending))
	for _, cmd := range pending {
		out = append(out, PendingCommand{
			ID:        cmd.ID,
			Command:   cmd.Text,
			IssuedBy:  cmd.IssuedBy,
			Timestamp: cmd.IssuedAt,
		})
	}
	metrics.ObservePoll(metrics.ResultSuccess, len(out))
	return &PollResult{
		Commands:   out,
		DeviceID:   device.DeviceID,
		DeviceName: device.DeviceName,
		Timestamp:  now,
	}, nil
}

// SubmitResult records a device's result. Later submissions overwrite earlier ones.
func (s *Service) SubmitResult(ctx context.Context, device auth.Device, req SubmitRequest) (*CommandView, error) {
	if device.DeviceID == "" {
		return nil, commands.ErrDeviceRequired
	}
	if strings.TrimSpace(req.CommandID) == "" {
		return nil, commands.ErrCommandIDRequired
	}
	now := s.clock.Now().UTC()
	s.presence.RecordHeartbeat(device.DeviceID, now)

	overwrite := false
	updated, err := s.repo.Update(ctx, req.CommandID, func(cmd *commands.Command) error {
		if cmd.DeviceID != device.DeviceID {
			return commands.ErrNotTargetDevice
		}
		overwrite = cmd.Completed()
		cmd.Complete(req.Result, now)
		return nil
	})
	if err != nil {
		if _, ok := apperr.As(err); ok {
			return nil, err
		}
		return nil, apperr.Internal(err, "Failed to submit command result")
	}
	metrics.IncCommandResult(overwrite)
	view := toView(*updated)
	return &view, nil
}

// GetResult returns a command to the operator who issued it.
func (s *Service) GetResult(ctx context.Context, operator auth.Identity, commandID string) (*CommandView, error) {
	if operator.Email == "" {
		return nil, commands.ErrOperatorRequired
	}
	if strings.TrimSpace(commandID) == "" {
		return nil, commands.ErrCommandIDRequired
	}
	cmd, err := s.repo.Get(ctx, commandID)
	if err != nil {
		return nil, apperr.Internal(err, "Failed to get command result")
	}
	if cmd == nil {
		return nil, commands.ErrNotFound
	}
	if cmd.IssuedBy != operator.Email {
		return nil, commands.ErrNotIssuer
	}
	view := toView(*cmd)
	return &view, nil
}

// ListIssued returns the operator's commands, newest first, optionally for one device.
func (s *Service) ListIssued(ctx context.Context, operator auth.Identity, deviceID string) ([]CommandView, error) {
	if operator.Email == "" {
		return nil, commands.ErrOperatorRequired
	}
	list, err := s.repo.ListByIssuer(ctx, operator.Email, strings.TrimSpace(deviceID))
	if err != nil {
		return nil, apperr.Internal(err, "Failed to list commands")
	}
	out := make([]CommandView, 0, len(list))
	for _, cmd := range list {
		out = append(out, toView(cmd))
	}
	return out, nil
}

// DeviceStatus derives presence for one device. Unknown devices are offline.
func (s *Service) DeviceStatus(deviceID string) (*DeviceStatus, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return nil, apperr.New(apperr.KindValidation, "DEVICE_ID_REQUIRED", "Device ID is required")
	}
	status := toDeviceStatus(s.presence.Status(deviceID))
	return &status, nil
}

// Devices lists every device seen so far with aggregate stats.
func (s *Service) Devices(ctx context.Context) (*DevicesOverview, error) {
	snapshot := s.presence.Snapshot()
	pending, err := s.repo.CountPending(ctx)
	if err != nil {
		return nil, apperr.Internal(err, "Failed to count pending commands")
	}
	overview := &DevicesOverview{
		Devices: make([]DeviceStatus, 0, len(snapshot)),
		Stats:   DeviceStats{TotalDevices: len(snapshot), PendingCommands: pending},
	}
	for _, st := range snapshot {
		if st.Online {
			overview.Stats.OnlineDevices++
		}
		overview.Devices = append(overview.Devices, toDeviceStatus(st))
	}
	return overview, nil
}

// RefreshOnlineGauge publishes the current online device count.
func (s *Service) RefreshOnlineGauge() int {
	count := s.presence.OnlineCount()
	metrics.SetDevicesOnline(count)
	return count
}

// PurgeCompleted removes completed commands older than retention. Pending commands are kept.
func (s *Service) PurgeCompleted(ctx context.Context, retention time.Duration) (int, error) {
	if retention <= 0 {
		return 0, nil
	}
	removed, err := s.repo.DeleteCompletedBefore(ctx, s.clock.Now().UTC().Add(-retention))
	if err != nil {
		return 0, err
	}
	metrics.AddHousekeepingRemoved("commands", removed)
	if removed > 0 {
		s.logf("commands: purged %d completed commands", removed)
	}
	return removed, nil
}

func (s *Service) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}

func toView(cmd commands.Command) CommandView {
	view := CommandView{
		ID:        cmd.ID,
		Command:   cmd.Text,
		DeviceID:  cmd.DeviceID,
		IssuedBy:  cmd.IssuedBy,
		Timestamp: cmd.IssuedAt,
		Status:    cmd.Status(),
		Fetched:   cmd.FetchedAt != nil,
	}
	if cmd.Completed() {
		view.Result = cmd.Result
		view.CompletedAt = cmd.CompletedAt
		view.Success = cmd.Success
	}
	return view
}

func toDeviceStatus(st presence.Status) DeviceStatus {
	out := DeviceStatus{DeviceID: st.DeviceID, Online: st.Online, LastSeen: st.LastSeen}
	if st.LastSeenAgo != nil {
		ago := fmt.Sprintf("%d seconds ago", int64(st.LastSeenAgo.Seconds()))
		out.LastSeenAgo = &ago
	}
	return out
}
