package errors

import "errors"

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized is a generic sentinel for auth failures.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
	ErrIncorrectPassword = errors.New("incorrect password")
	// ErrNotSupported marks operations that exist on the surface but are intentionally inert.
	ErrNotSupported = errors.New("not yet supported")
	ErrCredentialsExhausted = errors.New("no API keys available")
	// ErrUpstream wraps failures of the hosted AI service.
	ErrUpstream = errors.New("upstream failure")
)

type sentinelError struct {
	msg  string
	kind error
}

func (e *sentinelError) Error() string { return e.msg }

func (e *sentinelError) Is(target error) bool { return target == e.kind }

// Invalid returns an error that matches ErrInvalidArgument but reads as msg.
func Invalid(msg string) error { return &sentinelError{msg: msg, kind: ErrInvalidArgument} }

// NotFound returns an error that matches ErrNotFound but reads as msg.
func NotFound(msg string) error { return &sentinelError{msg: msg, kind: ErrNotFound} }

// Unsupported returns an error that matches ErrNotSupported but reads as msg.
func Unsupported(msg string) error { return &sentinelError{msg: msg, kind: ErrNotSupported} }
