package errors

import "errors"

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized is a generic sentinel for auth failures.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrQuotaExceeded signals the caller has exhausted their message quota.
	// Sends failing with this sentinel create no persisted state.
	ErrQuotaExceeded = errors.New("quota exceeded")
	// ErrStreamTransport signals a network or parse failure mid-stream.
	// Draft messages are rolled back when a send fails with this sentinel.
	ErrStreamTransport = errors.New("stream transport failure")
)
