package auth

import (
	"context"
	"time"
)

type contextKey string

const (
	contextKeyIdentity contextKey = "auth.identity"
	contextKeyDevice   contextKey = "auth.device"
)

const (
	MethodToken  = "token"
	MethodAPIKey = "api_key"
)

// Identity is the verified operator behind a request.
type Identity struct {
	Email      string    `json:"email"`
	Verified   bool      `json:"verified"`
	Role       Role      `json:"role"`
	AuthMethod string    `json:"authMethod"`
	IssuedAt   time.Time `json:"iat,omitempty"`
	ExpiresAt  time.Time `json:"exp,omitempty"`
}

// Device is the credential-backed device behind a request.
type Device struct {
	CredentialID string   `json:"id"`
	DeviceID     string   `json:"deviceId"`
	DeviceName   string   `json:"deviceName"`
	OwnerEmail   string   `json:"userEmail"`
	KeyName      string   `json:"name"`
	Permissions  []string `json:"permissions"`
}

// WithIdentity stores operator identity in context.
func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, contextKeyIdentity, identity)
}

// IdentityFromContext extracts operator identity from context.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	identity, ok := ctx.Value(contextKeyIdentity).(Identity)
	if !ok || identity.Email == "" {
		return Identity{}, false
	}
	return identity, true
}

// WithDevice stores device identity in context.
func WithDevice(ctx context.Context, device Device) context.Context {
	return context.WithValue(ctx, contextKeyDevice, device)
}

// DeviceFromContext extracts device identity from context.
func DeviceFromContext(ctx context.Context) (Device, bool) {
	if ctx == nil {
		return Device{}, false
	}
	device, ok := ctx.Value(contextKeyDevice).(Device)
	if !ok || device.DeviceID == "" {
		return Device{}, false
	}
	return device, true
}

// SubjectFromContext returns the acting email for audit trails.
func SubjectFromContext(ctx context.Context) string {
	identity, ok := IdentityFromContext(ctx)
	if !ok {
		return ""
	}
	return identity.Email
}
