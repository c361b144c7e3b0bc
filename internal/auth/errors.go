package auth

import "device-relay/internal/apperr"

var (
	ErrNoToken            = apperr.New(apperr.KindUnauthenticated, "NO_TOKEN", "Access denied. No token provided.")
	ErrInvalidTokenFormat = apperr.New(apperr.KindUnauthenticated, "INVALID_TOKEN_FORMAT", "Access denied. Invalid token format.")
	ErrInvalidToken       = apperr.New(apperr.KindUnauthenticated, "INVALID_TOKEN", "Invalid token.")
	ErrTokenExpired       = apperr.New(apperr.KindUnauthenticated, "TOKEN_EXPIRED", "Token has expired.")
	ErrNotVerified        = apperr.New(apperr.KindForbidden, "ACCOUNT_NOT_VERIFIED", "Account not verified. Please complete verification.")
	ErrEmptySecret        = apperr.New(apperr.KindInternal, "AUTH_NOT_CONFIGURED", "Authentication failed.")
)
