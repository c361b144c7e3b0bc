package commands

import "device-relay/internal/apperr"

var (
	// ErrFieldsRequired is returned when device id or command text is missing.
	ErrFieldsRequired = apperr.New(apperr.KindValidation, "FIELDS_REQUIRED", "Device ID and command are required")
	// ErrCommandIDRequired is returned when a result omits the command id.
	ErrCommandIDRequired = apperr.New(apperr.KindValidation, "COMMAND_ID_REQUIRED", "commandId is required")
	// ErrDeviceRequired is returned when a device call carries no device identity.
	ErrDeviceRequired = apperr.New(apperr.KindUnauthenticated, "DEVICE_AUTH_REQUIRED", "Device authentication required")
	// ErrOperatorRequired is returned when an operator call carries no identity.
	ErrOperatorRequired = apperr.New(apperr.KindUnauthenticated, "AUTH_REQUIRED", "Authentication required")
	// ErrNotFound is returned for unknown command ids.
	ErrNotFound = apperr.New(apperr.KindNotFound, "COMMAND_NOT_FOUND", "Command not found")
	// ErrNotTargetDevice is returned when a device submits a result for another device's command.
	ErrNotTargetDevice = apperr.New(apperr.KindForbidden, "NOT_TARGET_DEVICE", "Not authorized to submit result for this command")
	// ErrNotIssuer is returned when an operator reads a command it did not issue.
	ErrNotIssuer = apperr.New(apperr.KindForbidden, "NOT_ISSUER", "Not authorized to view this command")
)
