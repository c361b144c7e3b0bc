package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"device-relay/internal/api/response"
	"device-relay/internal/apperr"
	"device-relay/internal/observability/metrics"
)

// DeviceAuthenticator resolves a raw device API key into a device identity.
type DeviceAuthenticator interface {
	Authenticate(ctx context.Context, rawKey string) (Device, error)
}

// Middleware enforces the operator and device trust tiers.
type Middleware struct {
	Secret  []byte
	Policy  Policy
	Devices DeviceAuthenticator
	Now     func() time.Time
}

// NewMiddleware constructs an auth middleware.
func NewMiddleware(secret []byte, policy Policy, devices DeviceAuthenticator) *Middleware {
	return &Middleware{
		Secret:  secret,
		Policy:  policy,
		Devices: devices,
		Now:     func() time.Time { return time.Now().UTC() },
	}
}

// Wrap applies the required tier to the handler.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch m.Policy.RequiredTier(r) {
		case TierOperator:
			identity, err := m.authenticateOperator(r)
			if err != nil {
				metrics.IncAuthFailure(string(TierOperator), apperr.CodeOf(err))
				response.Error(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		case TierDevice:
			device, err := m.authenticateDevice(r)
			if err != nil {
				metrics.IncAuthFailure(string(TierDevice), apperr.CodeOf(err))
				response.Error(w, err)
				return
			}
			ctx := WithDevice(r.Context(), device)
			ctx = WithIdentity(ctx, Identity{
				Email:      device.OwnerEmail,
				Verified:   true,
				Role:       RoleAPIUser,
				AuthMethod: MethodAPIKey,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		default:
			next.ServeHTTP(w, r)
		}
	})
}

func (m *Middleware) authenticateOperator(r *http.Request) (Identity, error) {
	token, err := extractBearer(r)
	if err != nil {
		return Identity{}, err
	}
	claims, err := ParseJWT(token, m.Secret, m.now())
	if err != nil {
		return Identity{}, err
	}
	return claims.Identity(), nil
}

func (m *Middleware) authenticateDevice(r *http.Request) (Device, error) {
	if m.Devices == nil {
		return Device{}, ErrEmptySecret
	}
	return m.Devices.Authenticate(r.Context(), extractAPIKey(r))
}

func (m *Middleware) now() time.Time {
	if m.Now == nil {
		return time.Now().UTC()
	}
	return m.Now()
}

func extractBearer(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", ErrNoToken
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", ErrInvalidTokenFormat
	}
	return parts[1], nil
}

func extractAPIKey(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key
	}
	return strings.TrimSpace(r.URL.Query().Get("apiKey"))
}
