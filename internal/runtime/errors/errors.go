// Package errors defines the error taxonomy shared by the herald runtime.
package errors

import (
	sterrors "errors"
	"fmt"
	"time"
)

var (
	ErrBusClosed        = sterrors.New("herald: bus is closed")
	ErrHandlerRequired  = sterrors.New("herald: handler function is required")
	ErrMessageRequired  = sterrors.New("herald: message is required")
	ErrTypeTagRequired  = sterrors.New("herald: message type tag is required")
	ErrBehaviorRequired = sterrors.New("herald: behavior implementation is required")
	ErrConfigRequired   = sterrors.New("herald: configuration is required")
	ErrLoggerRequired   = sterrors.New("herald: logger is required")

	// ErrRateLimited is the sentinel value returned by the rate-limiting
	// behavior when it is configured to fail fast instead of waiting.
	ErrRateLimited = sterrors.New("herald: rate limit exceeded")
)

// HandlerNotFoundError reports a dispatch for which no handler is registered.
// It is fatal to that dispatch and is never retried.
type HandlerNotFoundError struct {
	TypeTag string
	Kind    string
}

func (e *HandlerNotFoundError) Error() string {
	return fmt.Sprintf("herald: no %s handler registered for %q", e.Kind, e.TypeTag)
}

// DuplicateHandlerError is returned when a second command or query handler is
// registered for a type that already has one.
type DuplicateHandlerError struct {
	TypeTag string
	Kind    string
}

func (e *DuplicateHandlerError) Error() string {
	return fmt.Sprintf("herald: %s handler already registered for %q", e.Kind, e.TypeTag)
}

// DuplicateContributionError is a configuration error raised at placement
// resolution time when two behavior contributions share an id.
type DuplicateContributionError struct {
	ID string
}

func (e *DuplicateContributionError) Error() string {
	return fmt.Sprintf("herald: duplicate behavior contribution id %q", e.ID)
}

// TimeoutError is raised by the timeout chain wrapper. It is distinct from a
// caller cancellation so retry policies can treat the two differently.
type TimeoutError struct {
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("herald: execution timed out after %s", e.After)
}

// RetryExhaustedError wraps the last underlying failure after every attempt
// allowed by a retry policy has failed.
type RetryExhaustedError struct {
	Attempts int
	Err      error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("herald: retry exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Err }

// CircularPlacementWarning reports behavior contributions whose relative
// placements could not be resolved within the iteration bound. It is
// informational: the resolver degrades the stragglers instead of failing.
type CircularPlacementWarning struct {
	IDs []string
}

func (w *CircularPlacementWarning) Error() string {
	return fmt.Sprintf("herald: unresolved relative placements degraded to tail: %v", w.IDs)
}

// ConfigValidationError wraps configuration validation failures.
type ConfigValidationError struct {
	Err error
}

func (e ConfigValidationError) Error() string {
	return "herald: invalid configuration: " + e.Err.Error()
}

func (e ConfigValidationError) Unwrap() error { return e.Err }

// NewConfigValidationError wraps err in a ConfigValidationError, returning
// nil when err is nil.
func NewConfigValidationError(err error) error {
	if err == nil {
		return nil
	}
	return ConfigValidationError{Err: err}
}

// PublishError aggregates subscriber failures that were not configured to be
// ignored. All subscribers have been attempted by the time it is returned.
type PublishError struct {
	TypeTag string
	Errs    []error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("herald: publish of %q failed for %d subscriber(s): %v", e.TypeTag, len(e.Errs), sterrors.Join(e.Errs...))
}

func (e *PublishError) Unwrap() []error { return e.Errs }
