package application

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"device-relay/internal/apperr"
	"device-relay/internal/auth"
	identity "device-relay/internal/identity/domain"
	"device-relay/internal/notify"
	"device-relay/internal/observability/metrics"
)

// CodeSent describes a login code that was just delivered.
type CodeSent struct {
	Email     string
	ExpiresIn time.Duration
}

// Session is the outcome of a successful code exchange.
type Session struct {
	Token     string
	Email     string
	ExpiresAt time.Time
}

// Service runs the login code exchange.
type Service struct {
	store     identity.CodeStore
	notifier  notify.Notifier
	templates *notify.Templates
	secret    []byte
	tokenTTL  time.Duration
	logger    *log.Logger
	now       func() time.Time
	generate  func() (string, error)
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

// WithTokenTTL overrides the operator token lifetime.
func WithTokenTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.tokenTTL = ttl
		}
	}
}

// WithCodeGenerator overrides code generation.
func WithCodeGenerator(generate func() (string, error)) Option {
	return func(s *Service) {
		if generate != nil {
			s.generate = generate
		}
	}
}

// NewService constructs an identity service.
func NewService(store identity.CodeStore, notifier notify.Notifier, templates *notify.Templates, secret []byte, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("identity: nil code store")
	}
	if notifier == nil {
		return nil, errors.New("identity: nil notifier")
	}
	if templates == nil {
		return nil, errors.New("identity: nil templates")
	}
	if len(secret) == 0 {
		return nil, errors.New("identity: empty jwt secret")
	}
	s := &Service{
		store:     store,
		notifier:  notifier,
		templates: templates,
		secret:    secret,
		tokenTTL:  auth.DefaultTokenTTL,
		now:       func() time.Time { return time.Now().UTC() },
		generate:  identity.GenerateCode,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// RequestCode issues a fresh code for email, replacing any pending one.
func (s *Service) RequestCode(ctx context.Context, email string) (*CodeSent, error) {
	return s.send(ctx, email, false)
}

// ResendCode issues a fresh code unless the last one went out less than a minute ago.
func (s *Service) ResendCode(ctx context.Context, email string) (*CodeSent, error) {
	return s.send(ctx, email, true)
}

func (s *Service) send(ctx context.Context, rawEmail string, resend bool) (*CodeSent, error) {
	email := identity.NormalizeEmail(rawEmail)
	if email == "" {
		return nil, identity.ErrEmailRequired
	}
	code, err := s.generate()
	if err != nil {
		return nil, apperr.Internal(err, "Failed to generate code")
	}
	now := s.now()
	err = s.store.Update(ctx, email, func(current *identity.CodeEntry) (*identity.CodeEntry, error) {
		if resend && current != nil && current.CoolingDown(now) {
			return current, identity.ErrRateLimited
		}
		return identity.NewCodeEntry(code, now), nil
	})
	if err != nil {
		if errors.Is(err, identity.ErrRateLimited) {
			metrics.IncLoginCodeEvent(metrics.LoginCodeRateLimited)
			return nil, err
		}
		return nil, apperr.Internal(err, "Failed to store code")
	}

	msg, err := s.templates.LoginCode(email, notify.LoginCodeData{Code: code, ValidFor: "10 minutes"})
	if err == nil {
		err = s.notifier.Notify(ctx, msg)
	}
	if err != nil {
		s.logf("identity: deliver code to %s failed: %v", email, err)
		return nil, apperr.Internal(err, "Failed to send verification code")
	}

	if resend {
		metrics.IncLoginCodeEvent(metrics.LoginCodeResent)
	} else {
		metrics.IncLoginCodeEvent(metrics.LoginCodeRequested)
	}
	return &CodeSent{Email: email, ExpiresIn: identity.CodeTTL}, nil
}

// VerifyCode consumes a matching code and returns a signed operator token.
func (s *Service) VerifyCode(ctx context.Context, rawEmail, code string) (*Session, error) {
	email := identity.NormalizeEmail(rawEmail)
	if email == "" || strings.TrimSpace(code) == "" {
		return nil, identity.ErrFieldsMissing
	}
	now := s.now()
	err := s.store.Update(ctx, email, func(current *identity.CodeEntry) (*identity.CodeEntry, error) {
		switch {
		case current == nil:
			return nil, identity.ErrNoRequest
		case current.Expired(now):
			return nil, identity.ErrCodeExpired
		case !current.Matches(code):
			return current, identity.ErrCodeMismatch
		default:
			return nil, nil
		}
	})
	switch {
	case err == nil:
	case errors.Is(err, identity.ErrCodeExpired):
		metrics.IncLoginCodeEvent(metrics.LoginCodeExpired)
		return nil, err
	case errors.Is(err, identity.ErrCodeMismatch):
		metrics.IncLoginCodeEvent(metrics.LoginCodeMismatch)
		return nil, err
	case errors.Is(err, identity.ErrNoRequest):
		return nil, err
	default:
		return nil, apperr.Internal(err, "Failed to verify code")
	}

	token, expiresAt, err := auth.IssueToken(s.secret, email, now, s.tokenTTL)
	if err != nil {
		return nil, err
	}
	metrics.IncLoginCodeEvent(metrics.LoginCodeVerified)
	s.logf("identity: %s verified", email)
	return &Session{Token: token, Email: email, ExpiresAt: expiresAt}, nil
}

// PurgeExpired drops codes that can no longer be verified.
func (s *Service) PurgeExpired(ctx context.Context) (int, error) {
	removed, err := s.store.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}
	metrics.AddHousekeepingRemoved("login_codes", removed)
	return removed, nil
}

func (s *Service) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}
