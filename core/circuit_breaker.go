package core

import (
	"context"
	"time"
)

// CircuitBreaker protects callers from repeatedly hitting a failing
// dependency. After a threshold of failures the circuit opens and calls
// fail fast with ErrCircuitBreakerOpen until the recovery timeout allows
// a limited number of probe requests through.
type CircuitBreaker interface {
	// Execute runs fn with circuit breaker protection. If the circuit is
	// open it returns ErrCircuitBreakerOpen without calling fn.
	Execute(ctx context.Context, fn func() error) error

	// ExecuteWithTimeout runs fn with protection and a deadline. Useful
	// for provider calls that might hang.
	ExecuteWithTimeout(ctx context.Context, timeout time.Duration, fn func() error) error

	// GetState returns "closed", "open", or "half-open".
	GetState() string

	// GetMetrics returns success/failure counts and state transitions.
	GetMetrics() map[string]interface{}

	// Reset forces the circuit back to closed and clears counters.
	Reset()

	// CanExecute reports whether a call would be allowed right now.
	CanExecute() bool
}

// CircuitBreakerConfig tunes failure detection and recovery.
type CircuitBreakerConfig struct {
	// Enabled turns protection on. A disabled breaker passes every call
	// through untouched.
	// Default: true
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Threshold is the number of consecutive failures that opens the
	// circuit.
	// Default: 5
	Threshold int `json:"threshold" yaml:"threshold"`

	// Timeout is how long the circuit stays open before probing.
	// Default: 30s
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// HalfOpenRequests is how many probe requests may run while
	// half-open before the circuit decides to close or re-open.
	// Default: 3
	HalfOpenRequests int `json:"half_open_requests" yaml:"half_open_requests"`
}

// CircuitBreakerParams carries configuration plus optional observability
// hooks for circuit breaker constructors.
type CircuitBreakerParams struct {
	// Name identifies the breaker in logs and metrics,
	// e.g. "research.places" or "tasks.queue".
	Name string

	Config CircuitBreakerConfig

	// Optional: Logger for state transition events
	Logger Logger

	// Optional: Telemetry for metrics
	Telemetry Telemetry
}

// DefaultCircuitBreakerParams returns production defaults for name.
func DefaultCircuitBreakerParams(name string) CircuitBreakerParams {
	return CircuitBreakerParams{
		Name: name,
		Config: CircuitBreakerConfig{
			Enabled:          true,
			Threshold:        5,
			Timeout:          30 * time.Second,
			HalfOpenRequests: 3,
		},
	}
}
