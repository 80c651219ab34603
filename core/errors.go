package core

import (
	"errors"
	"fmt"
)

// Sentinel errors the rest of the module matches with errors.Is.
// Call sites wrap them via fmt.Errorf("...: %w", Err...) to add context.
var (
	// Reasoning and research providers
	ErrProviderNotFound    = errors.New("provider not found")
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrRateLimited         = errors.New("rate limited")

	// Plans and sessions
	ErrPlanNotFound    = errors.New("plan not found")
	ErrSessionNotFound = errors.New("session not found")

	// Configuration
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrMissingConfiguration = errors.New("missing required configuration")

	// Lifecycle state
	ErrAlreadyStarted    = errors.New("already started")
	ErrNotInitialized    = errors.New("not initialized")
	ErrAlreadyRegistered = errors.New("already registered")

	// Operations and deadlines
	ErrTimeout            = errors.New("operation timeout")
	ErrContextCanceled    = errors.New("context canceled")
	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded")

	// Transport
	ErrConnectionFailed = errors.New("connection failed")
	ErrRequestFailed    = errors.New("request failed")

	// Resilience
	ErrCircuitBreakerOpen = errors.New("circuit breaker open")
)

// PlannerError carries an operation name, an entity kind, and an optional
// entity ID alongside the wrapped cause, so one error type serves every
// subsystem's "what failed on what" reporting.
type PlannerError struct {
	Op      string // Operation that failed (e.g., "taskstore.Get")
	Kind    string // Error kind (e.g., "task", "research", "config")
	ID      string // Optional ID of the entity involved
	Message string // Human-readable message
	Err     error  // Underlying error for wrapping
}

// Error renders the most specific description the populated fields allow.
func (e *PlannerError) Error() string {
	if e.Op != "" && e.Err != nil {
		if e.ID != "" {
			return fmt.Sprintf("%s [%s]: %v", e.Op, e.ID, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s error", e.Kind)
}

// Unwrap exposes the cause to errors.Is and errors.As.
func (e *PlannerError) Unwrap() error {
	return e.Err
}

// NewPlannerError wraps err with the failing operation and entity kind.
func NewPlannerError(op, kind string, err error) *PlannerError {
	return &PlannerError{
		Op:   op,
		Kind: kind,
		Err:  err,
	}
}

// IsRetryable reports whether err looks transient enough that trying
// again could succeed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrProviderUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrConnectionFailed) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrCircuitBreakerOpen)
}

// IsNotFound reports whether err means a requested entity does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrTaskNotFound) ||
		errors.Is(err, ErrPlanNotFound) ||
		errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrProviderNotFound)
}

// IsConfigurationError reports whether err traces back to bad or missing
// configuration.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrInvalidConfiguration) ||
		errors.Is(err, ErrMissingConfiguration)
}

// IsStateError reports whether err came from calling something at the
// wrong point in its lifecycle.
func IsStateError(err error) bool {
	return errors.Is(err, ErrAlreadyStarted) ||
		errors.Is(err, ErrNotInitialized) ||
		errors.Is(err, ErrAlreadyRegistered) ||
		errors.Is(err, ErrTaskFinalized)
}
