package identity

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"device-relay/internal/apperr"
)

const (
	// CodeTTL is how long a login code stays valid.
	CodeTTL = 10 * time.Minute
	// ResendCooldown is the minimum gap between two sends to one address.
	ResendCooldown = 60 * time.Second
	codeDigits     = 6
)

var (
	ErrEmailRequired = apperr.New(apperr.KindValidation, "EMAIL_REQUIRED", "Email is required")
	ErrFieldsMissing = apperr.New(apperr.KindValidation, "EMAIL_AND_CODE_REQUIRED", "Email and verification code are required")
	ErrNoRequest     = apperr.New(apperr.KindNotFound, "NO_REQUEST", "No verification request found for this email")
	ErrCodeExpired   = apperr.New(apperr.KindUnauthenticated, "CODE_EXPIRED", "Verification code has expired")
	ErrCodeMismatch  = apperr.New(apperr.KindUnauthenticated, "INVALID_CODE", "Invalid verification code")
	ErrRateLimited   = apperr.New(apperr.KindRateLimited, "RATE_LIMITED", "Please wait before requesting another code")
)

// CodeEntry is the pending login code for one email.
type CodeEntry struct {
	Code      string
	ExpiresAt time.Time
	Verified  bool
	CreatedAt time.Time
	LastSent  time.Time
}

// NewCodeEntry builds a fresh entry issued at now.
func NewCodeEntry(code string, now time.Time) *CodeEntry {
	return &CodeEntry{
		Code:      code,
		ExpiresAt: now.Add(CodeTTL),
		CreatedAt: now,
		LastSent:  now,
	}
}

// Expired reports whether the code is past its expiry at now.
func (e *CodeEntry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// CoolingDown reports whether a resend at now is too soon.
func (e *CodeEntry) CoolingDown(now time.Time) bool {
	return now.Sub(e.LastSent) < ResendCooldown
}

// Matches compares a submitted code after trimming whitespace.
func (e *CodeEntry) Matches(code string) bool {
	return strings.TrimSpace(e.Code) == strings.TrimSpace(code)
}

// GenerateCode returns a uniformly random 6-digit code.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
