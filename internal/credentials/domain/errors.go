package credentials

import "device-relay/internal/apperr"

var (
	ErrNoAPIKey          = apperr.New(apperr.KindUnauthenticated, "NO_API_KEY", "Access denied. No API key provided.")
	ErrInvalidFormat     = apperr.New(apperr.KindUnauthenticated, "INVALID_API_KEY_FORMAT", "Invalid API key format.")
	ErrInvalidKey        = apperr.New(apperr.KindUnauthenticated, "INVALID_API_KEY", "Invalid API key.")
	ErrInactive          = apperr.New(apperr.KindUnauthenticated, "API_KEY_INACTIVE", "API key is inactive.")
	ErrExpired           = apperr.New(apperr.KindUnauthenticated, "API_KEY_EXPIRED", "API key has expired.")
	ErrDeviceNameMissing = apperr.New(apperr.KindValidation, "DEVICE_NAME_REQUIRED", "Device name is required")
	ErrNotFound          = apperr.New(apperr.KindNotFound, "API_KEY_NOT_FOUND", "API key not found or access denied")
	ErrOwnerRequired     = apperr.New(apperr.KindUnauthenticated, "AUTH_REQUIRED", "Authentication required")
	ErrPermissionDenied  = apperr.New(apperr.KindForbidden, "PERMISSION_DENIED", "API key lacks the required permission")
)
