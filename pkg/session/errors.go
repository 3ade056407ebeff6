package session

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced by the store; the API layer maps them onto HTTP
// status codes.
var (
	// ErrNotFound means the session id is not in the live index.
	ErrNotFound = errors.New("session not found")

	// ErrResourceExhausted means the live-session cap has been reached.
	ErrResourceExhausted = errors.New("live session limit reached")

	// ErrNotTerminal means the operation requires a finished session.
	ErrNotTerminal = errors.New("session is not in a terminal status")
)

// ValidationError marks client-input failures so the API layer can return
// 400 instead of 500.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError creates a formatted validation error.
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// IsValidationError checks whether err is (or wraps) a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
