package application

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"device-relay/internal/apperr"
	"device-relay/internal/auth"
	credentials "device-relay/internal/credentials/domain"
	"device-relay/internal/notify"
	"device-relay/internal/observability/metrics"
)

const (
	eventIssued   = "issued"
	eventRevoked  = "revoked"
	eventAuthed   = "authenticated"
	eventRejected = "rejected"
)

// IssueRequest is the operator input for a new device credential.
type IssueRequest struct {
	DeviceName  string     `json:"deviceName"`
	DeviceID    string     `json:"deviceId"`
	Permissions []string   `json:"permissions"`
	ExpiresAt   *time.Time `json:"expiresAt"`
}

// Requester describes who asked for a credential and from where.
type Requester struct {
	Email     string
	IP        string
	UserAgent string
}

// IssueResponse is returned after a credential is issued. The raw key is only e-mailed.
type IssueResponse struct {
	Credential credentials.View
}

// Service manages device credentials and authenticates device requests.
type Service struct {
	repo      credentials.Repository
	notifier  notify.Notifier
	templates *notify.Templates
	logger    *log.Logger
	now       func() time.Time
}

// Option configures the service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService constructs a credential service.
func NewService(repo credentials.Repository, notifier notify.Notifier, templates *notify.Templates, opts ...Option) (*Service, error) {
	if repo == nil {
		return nil, errors.New("credentials: nil repo")
	}
	if notifier == nil {
		return nil, errors.New("credentials: nil notifier")
	}
	if templates == nil {
		return nil, errors.New("credentials: nil templates")
	}
	s := &Service{
		repo:      repo,
		notifier:  notifier,
		templates: templates,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Issue creates a credential for the requester's device and e-mails the raw key.
func (s *Service) Issue(ctx context.Context, by Requester, req IssueRequest) (*IssueResponse, error) {
	owner := strings.TrimSpace(by.Email)
	if owner == "" {
		return nil, credentials.ErrOwnerRequired
	}
	deviceName := strings.TrimSpace(req.DeviceName)
	if deviceName == "" {
		return nil, credentials.ErrDeviceNameMissing
	}
	now := s.now()
	deviceID := strings.TrimSpace(req.DeviceID)
	if deviceID == "" {
		deviceID = credentials.NewDeviceID(now)
	}
	permissions := normalizePermissions(req.Permissions)
	if req.ExpiresAt != nil && !req.ExpiresAt.After(now) {
		return nil, apperr.New(apperr.KindValidation, "INVALID_EXPIRY", "expiresAt must be in the future")
	}

	rawKey, err := credentials.GenerateKey(now)
	if err != nil {
		return nil, apperr.Internal(err, "Failed to generate API key")
	}
	cred := &credentials.Credential{
		ID:          uuid.NewString(),
		OwnerEmail:  owner,
		DeviceID:    deviceID,
		DeviceName:  deviceName,
		Name:        credentials.KeyName(deviceName),
		HashedKey:   credentials.HashKey(rawKey),
		Prefix:      credentials.DisplayPrefix(rawKey),
		CreatedAt:   now,
		ExpiresAt:   req.ExpiresAt,
		Active:      true,
		Permissions: permissions,
		Metadata: credentials.Metadata{
			CreatedBy: owner,
			IP:        by.IP,
			UserAgent: by.UserAgent,
		},
	}
	if err := s.repo.Create(ctx, cred); err != nil {
		return nil, apperr.Internal(err, "Failed to save API key")
	}

	msg, err := s.templates.APIKey(owner, notify.APIKeyData{DeviceName: deviceName, DeviceID: deviceID, APIKey: rawKey})
	if err == nil {
		err = s.notifier.Notify(ctx, msg)
	}
	if err != nil {
		// Undelivered keys are rolled back.
		if _, delErr := s.repo.Delete(ctx, cred.ID, owner); delErr != nil {
			s.logf("credentials: rollback %s failed: %v", cred.ID, delErr)
		}
		return nil, apperr.Internal(err, "Failed to deliver API key")
	}

	metrics.IncCredentialEvent(eventIssued)
	s.logf("credentials: issued %s for device %s owner=%s", cred.ID, deviceID, owner)
	return &IssueResponse{Credential: cred.View()}, nil
}

// List returns the owner's credentials without secrets.
func (s *Service) List(ctx context.Context, owner string) ([]credentials.View, error) {
	if strings.TrimSpace(owner) == "" {
		return nil, credentials.ErrOwnerRequired
	}
	creds, err := s.repo.ListByOwner(ctx, owner)
	if err != nil {
		return nil, apperr.Internal(err, "Failed to load API keys")
	}
	out := make([]credentials.View, 0, len(creds))
	for i := range creds {
		out = append(out, creds[i].View())
	}
	return out, nil
}

// Revoke deletes the owner's credential by id.
func (s *Service) Revoke(ctx context.Context, owner, id string) error {
	if strings.TrimSpace(owner) == "" {
		return credentials.ErrOwnerRequired
	}
	if strings.TrimSpace(id) == "" {
		return credentials.ErrNotFound
	}
	deleted, err := s.repo.Delete(ctx, id, owner)
	if err != nil {
		return apperr.Internal(err, "Failed to revoke API key")
	}
	if !deleted {
		return credentials.ErrNotFound
	}
	metrics.IncCredentialEvent(eventRevoked)
	s.logf("credentials: revoked %s owner=%s", id, owner)
	return nil
}

// Authenticate resolves a raw key into the device it belongs to.
func (s *Service) Authenticate(ctx context.Context, rawKey string) (auth.Device, error) {
	device, err := s.authenticate(ctx, rawKey)
	if err != nil {
		metrics.IncCredentialEvent(eventRejected)
		return auth.Device{}, err
	}
	metrics.IncCredentialEvent(eventAuthed)
	return device, nil
}

func (s *Service) authenticate(ctx context.Context, rawKey string) (auth.Device, error) {
	if err := credentials.ValidateKeyFormat(rawKey); err != nil {
		return auth.Device{}, err
	}
	cred, err := s.repo.FindByHash(ctx, credentials.HashKey(rawKey))
	if err != nil {
		return auth.Device{}, apperr.Internal(err, "Failed to validate API key")
	}
	if cred == nil {
		return auth.Device{}, credentials.ErrInvalidKey
	}
	now := s.now()
	if err := cred.Usable(now); err != nil {
		return auth.Device{}, err
	}
	if !cred.HasPermission(credentials.PermissionExecuteCommands) {
		return auth.Device{}, credentials.ErrPermissionDenied
	}
	if err := s.repo.TouchLastUsed(ctx, cred.ID, now); err != nil {
		s.logf("credentials: touch %s failed: %v", cred.ID, err)
	}
	return auth.Device{
		CredentialID: cred.ID,
		DeviceID:     cred.DeviceID,
		DeviceName:   cred.DeviceName,
		OwnerEmail:   cred.OwnerEmail,
		KeyName:      cred.Name,
		Permissions:  append([]string(nil), cred.Permissions...),
	}, nil
}

func (s *Service) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}

func normalizePermissions(perms []string) []string {
	out := make([]string, 0, len(perms))
	seen := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	if len(out) == 0 {
		return append([]string(nil), credentials.DefaultPermissions...)
	}
	return out
}
