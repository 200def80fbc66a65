package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrOperationFailed    = errors.New("database operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid execution context")

	// Notification pipeline errors
	ErrMalformedPayload     = errors.New("malformed payment notification")
	ErrSignatureInvalid     = errors.New("payment notification signature invalid")
	ErrDuplicateEvent       = errors.New("payment notification already applied")
	ErrReconciliationFailed = errors.New("subscription reconciliation failed")
	ErrUnknownStatus        = errors.New("provider reported an unknown payment status")
	ErrProviderTimeout      = errors.New("payment provider did not answer in time")
	ErrUnknownProvider      = errors.New("unknown payment provider")
)
