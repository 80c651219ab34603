// Package resilience provides fault tolerance for calls that leave the
// process: a circuit breaker for flaky dependencies and retry with
// exponential backoff for transient failures.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/tripsmith-ai/tripsmith/core"
)

// CircuitState represents the state of the circuit breaker.
type CircuitState int

const (
	// StateClosed allows all requests through.
	StateClosed CircuitState = iota
	// StateOpen blocks all requests.
	StateOpen
	// StateHalfOpen allows limited probe requests.
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrorClassifier determines which errors count toward the failure
// threshold.
type ErrorClassifier func(error) bool

// DefaultErrorClassifier counts infrastructure errors only. Caller
// mistakes and cancellations must not open the circuit.
func DefaultErrorClassifier(err error) bool {
	if err == nil {
		return false
	}
	if core.IsConfigurationError(err) {
		return false
	}
	if core.IsNotFound(err) {
		return false
	}
	if core.IsStateError(err) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, core.ErrContextCanceled) {
		return false
	}
	return true
}

// CircuitBreaker is a consecutive-failure breaker. The circuit opens
// after Threshold classified failures in a row, stays open for the
// recovery timeout, then admits HalfOpenRequests probes. All probes
// succeeding closes the circuit; any probe failing re-opens it.
type CircuitBreaker struct {
	name             string
	enabled          bool
	threshold        int
	sleepWindow      time.Duration
	halfOpenRequests int
	classify         ErrorClassifier
	logger           core.Logger
	telemetry        core.Telemetry

	mu                  sync.Mutex
	state               CircuitState
	stateChangedAt      time.Time
	consecutiveFailures int
	halfOpenInFlight    int
	halfOpenSuccesses   int
	totalSuccesses      uint64
	totalFailures       uint64
	totalRejections     uint64
	transitions         uint64
}

// NewCircuitBreaker creates a circuit breaker from params. Zero config
// values fall back to the defaults in DefaultCircuitBreakerParams.
func NewCircuitBreaker(params core.CircuitBreakerParams) *CircuitBreaker {
	cfg := params.Config
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.HalfOpenRequests <= 0 {
		cfg.HalfOpenRequests = 3
	}

	logger := params.Logger
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if l, ok := logger.(core.ComponentAwareLogger); ok {
		logger = l.WithComponent("planner/resilience")
	}

	cb := &CircuitBreaker{
		name:             params.Name,
		enabled:          cfg.Enabled,
		threshold:        cfg.Threshold,
		sleepWindow:      cfg.Timeout,
		halfOpenRequests: cfg.HalfOpenRequests,
		classify:         DefaultErrorClassifier,
		logger:           logger,
		telemetry:        params.Telemetry,
		state:            StateClosed,
		stateChangedAt:   time.Now(),
	}

	logger.Debug("Circuit breaker created", map[string]interface{}{
		"name":               cb.name,
		"enabled":            cb.enabled,
		"threshold":          cb.threshold,
		"sleep_window":       cb.sleepWindow.String(),
		"half_open_requests": cb.halfOpenRequests,
	})

	return cb
}

// SetErrorClassifier replaces the default classifier. Must be called
// before the breaker is shared across goroutines.
func (cb *CircuitBreaker) SetErrorClassifier(classify ErrorClassifier) {
	if classify != nil {
		cb.classify = classify
	}
}

// Execute runs fn with circuit breaker protection.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	return cb.ExecuteWithTimeout(ctx, 0, fn)
}

// ExecuteWithTimeout runs fn with protection and a deadline. A timeout
// of zero means no deadline beyond what ctx already carries.
func (cb *CircuitBreaker) ExecuteWithTimeout(ctx context.Context, timeout time.Duration, fn func() error) error {
	if !cb.enabled {
		return fn()
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	probe, allowed := cb.startExecution()
	if !allowed {
		cb.mu.Lock()
		cb.totalRejections++
		cb.mu.Unlock()
		cb.emitMetric("circuit_breaker.rejections", 1)
		cb.logger.Info("Circuit breaker rejected execution", map[string]interface{}{
			"name":  cb.name,
			"state": cb.GetState(),
		})
		return fmt.Errorf("circuit breaker '%s' is open: %w", cb.name, core.ErrCircuitBreakerOpen)
	}

	if timeout <= 0 {
		err := safeCall(cb.logger, cb.name, fn)
		cb.record(probe, err)
		return err
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- safeCall(cb.logger, cb.name, fn)
	}()

	select {
	case err := <-done:
		cb.record(probe, err)
		return err
	case <-execCtx.Done():
		err := execCtx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("circuit breaker '%s': operation timed out after %s: %w", cb.name, timeout, core.ErrTimeout)
		}
		cb.record(probe, err)
		return err
	}
}

// GetState returns "closed", "open", or "half-open".
func (cb *CircuitBreaker) GetState() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state.String()
}

// GetMetrics returns counters for monitoring.
func (cb *CircuitBreaker) GetMetrics() map[string]interface{} {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return map[string]interface{}{
		"name":                 cb.name,
		"state":                cb.state.String(),
		"successes":            cb.totalSuccesses,
		"failures":             cb.totalFailures,
		"rejections":           cb.totalRejections,
		"transitions":          cb.transitions,
		"consecutive_failures": cb.consecutiveFailures,
		"state_changed_at":     cb.stateChangedAt,
	}
}

// Reset forces the circuit back to closed and clears all counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state != StateClosed {
		cb.transition(StateClosed, time.Now())
	}
	cb.consecutiveFailures = 0
	cb.halfOpenInFlight = 0
	cb.halfOpenSuccesses = 0
	cb.totalSuccesses = 0
	cb.totalFailures = 0
	cb.totalRejections = 0
}

// CanExecute reports whether a call would be allowed right now without
// changing breaker state.
func (cb *CircuitBreaker) CanExecute() bool {
	if !cb.enabled {
		return true
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		return time.Since(cb.stateChangedAt) >= cb.sleepWindow
	case StateHalfOpen:
		return cb.halfOpenInFlight < cb.halfOpenRequests
	}
	return false
}

// startExecution decides whether a call may proceed, transitioning an
// expired open circuit to half-open. Returns whether this call is a
// half-open probe.
func (cb *CircuitBreaker) startExecution() (probe bool, allowed bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()
	switch cb.state {
	case StateClosed:
		return false, true
	case StateOpen:
		if now.Sub(cb.stateChangedAt) >= cb.sleepWindow {
			cb.transition(StateHalfOpen, now)
			cb.halfOpenInFlight = 1
			return true, true
		}
		return false, false
	case StateHalfOpen:
		if cb.halfOpenInFlight < cb.halfOpenRequests {
			cb.halfOpenInFlight++
			return true, true
		}
		return false, false
	}
	return false, false
}

// record updates breaker state with the outcome of a call.
func (cb *CircuitBreaker) record(probe bool, err error) {
	failure := err != nil && cb.classify(err)

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		cb.totalSuccesses++
	} else {
		cb.totalFailures++
	}
	if probe && cb.halfOpenInFlight > 0 {
		cb.halfOpenInFlight--
	}

	now := time.Now()
	switch cb.state {
	case StateClosed:
		if failure {
			cb.consecutiveFailures++
			if cb.consecutiveFailures >= cb.threshold {
				cb.transition(StateOpen, now)
			}
		} else if err == nil {
			cb.consecutiveFailures = 0
		}
	case StateHalfOpen:
		if !probe {
			// Stale completion from before the last transition.
			return
		}
		if failure {
			cb.transition(StateOpen, now)
		} else if err == nil {
			cb.halfOpenSuccesses++
			if cb.halfOpenSuccesses >= cb.halfOpenRequests {
				cb.transition(StateClosed, now)
			}
		}
	case StateOpen:
		// Stale completion; the sleep window decides recovery.
	}
}

// transition moves the breaker to a new state. Caller holds cb.mu.
func (cb *CircuitBreaker) transition(to CircuitState, now time.Time) {
	from := cb.state
	cb.state = to
	cb.stateChangedAt = now
	cb.transitions++

	switch to {
	case StateClosed:
		cb.consecutiveFailures = 0
		cb.halfOpenInFlight = 0
		cb.halfOpenSuccesses = 0
	case StateHalfOpen:
		cb.halfOpenSuccesses = 0
	case StateOpen:
		cb.halfOpenInFlight = 0
	}

	cb.logger.Info("Circuit breaker state changed", map[string]interface{}{
		"name": cb.name,
		"from": from.String(),
		"to":   to.String(),
	})
	cb.emitMetric("circuit_breaker.transitions", 1)
}

func (cb *CircuitBreaker) emitMetric(name string, value float64) {
	if cb.telemetry != nil {
		cb.telemetry.RecordMetric(name, value, map[string]string{"breaker": cb.name})
	}
}

// safeCall runs fn converting panics into errors so a misbehaving
// provider cannot take the caller down.
func safeCall(logger core.Logger, name string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			logger.Error("Circuit breaker caught panic", map[string]interface{}{
				"name":  name,
				"panic": fmt.Sprintf("%v", r),
			})
			err = fmt.Errorf("panic in protected call: %v\n%s", r, stack)
		}
	}()
	return fn()
}

var _ core.CircuitBreaker = (*CircuitBreaker)(nil)
