package agentruntime

import (
	"context"
	"errors"
	"fmt"
)

// ErrStreamTimeout means the runtime stopped delivering events mid-run.
// Recoverable: a fresh invocation on the same thread usually succeeds.
var ErrStreamTimeout = errors.New("agent event stream timed out")

// ErrAgentNotFound means a configured agent id does not exist on the
// platform. Fatal: retrying cannot fix configuration.
var ErrAgentNotFound = errors.New("agent not found")

// TransportError wraps a network-level failure talking to the agent
// platform. Recoverable.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("agent transport failure during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// SchemaError wraps a malformed or unexpected runtime response. Fatal: the
// same payload will fail the same way on every attempt.
type SchemaError struct {
	Detail string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("agent response schema violation: %s", e.Detail)
}

// Recoverable classifies a run failure. Recoverable errors are retried up
// to the configured budget; everything else fails the session immediately.
// Context cancellation and deadline expiry are never recoverable, they are
// handled as cancellation and timeout by the worker.
func Recoverable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrStreamTimeout) {
		return true
	}
	var te *TransportError
	return errors.As(err, &te)
}
