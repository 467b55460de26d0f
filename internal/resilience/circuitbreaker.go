// Package resilience keeps misbehaving quote sources from slowing down every
// resolution: a source that keeps timing out is skipped until it cools down.
package resilience

import (
	"errors"
	"sync"
	"time"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState string

const (
	CircuitClosed   CircuitState = "CLOSED"    // Normal operation
	CircuitOpen     CircuitState = "OPEN"      // Failing, rejecting calls
	CircuitHalfOpen CircuitState = "HALF_OPEN" // Letting a probe through
)

// CircuitBreakerConfig holds circuit breaker configuration.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before opening
	FailureThreshold int
	// SuccessThreshold is the number of half-open successes needed to close
	SuccessThreshold int
	// Cooldown is how long an open circuit rejects calls
	Cooldown time.Duration
	// IsFailure decides whether an error trips the breaker. Nil counts every error.
	IsFailure func(error) bool
}

// DefaultCircuitBreakerConfig returns sensible defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 1,
		Cooldown:         2 * time.Minute,
	}
}

// ErrCircuitOpen is returned when the circuit is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker implements the circuit breaker pattern.
type CircuitBreaker struct {
	name   string
	config CircuitBreakerConfig
	now    func() time.Time

	mu              sync.Mutex
	state           CircuitState
	failures        int
	successes       int
	lastFailureTime time.Time
	lastStateChange time.Time

	totalCalls    int64
	totalFailures int64
	totalRejected int64
}

// NewCircuitBreaker creates a new circuit breaker.
func NewCircuitBreaker(name string, config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 1
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 1
	}
	return &CircuitBreaker{
		name:            name,
		config:          config,
		now:             time.Now,
		state:           CircuitClosed,
		lastStateChange: time.Now(),
	}
}

// Execute runs fn unless the circuit is open. The error from fn is returned
// unchanged; only errors accepted by IsFailure count against the source.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.Allow(); err != nil {
		return err
	}
	err := fn()
	cb.Record(err)
	return err
}

// ExecuteWithResult is Execute for functions returning a value.
func ExecuteWithResult[T any](cb *CircuitBreaker, fn func() (T, error)) (T, error) {
	var v T
	err := cb.Execute(func() error {
		var err error
		v, err = fn()
		return err
	})
	return v, err
}

// Allow reports whether a call may proceed, moving an open circuit to
// half-open once the cooldown has elapsed.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitOpen {
		if cb.now().Sub(cb.lastFailureTime) < cb.config.Cooldown {
			cb.totalRejected++
			return ErrCircuitOpen
		}
		cb.transitionTo(CircuitHalfOpen)
	}
	cb.totalCalls++
	return nil
}

// Record feeds the outcome of a call into the breaker.
func (cb *CircuitBreaker) Record(err error) {
	if err != nil && (cb.config.IsFailure == nil || cb.config.IsFailure(err)) {
		cb.recordFailure()
		return
	}
	cb.recordSuccess()
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitHalfOpen:
		cb.successes++
		if cb.successes >= cb.config.SuccessThreshold {
			cb.transitionTo(CircuitClosed)
		}
	case CircuitClosed:
		cb.failures = 0
	}
}

func (cb *CircuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.totalFailures++
	cb.lastFailureTime = cb.now()

	switch cb.state {
	case CircuitClosed:
		cb.failures++
		if cb.failures >= cb.config.FailureThreshold {
			cb.transitionTo(CircuitOpen)
		}
	case CircuitHalfOpen:
		// Any failure in half-open goes back to open
		cb.transitionTo(CircuitOpen)
	}
}

func (cb *CircuitBreaker) transitionTo(state CircuitState) {
	cb.state = state
	cb.lastStateChange = cb.now()
	cb.failures = 0
	cb.successes = 0
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Name returns the circuit breaker name.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Stats returns circuit breaker statistics.
func (cb *CircuitBreaker) Stats() CircuitBreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return CircuitBreakerStats{
		Name:            cb.name,
		State:           cb.state,
		TotalCalls:      cb.totalCalls,
		TotalFailures:   cb.totalFailures,
		TotalRejected:   cb.totalRejected,
		CurrentFailures: cb.failures,
		LastFailureTime: cb.lastFailureTime,
		LastStateChange: cb.lastStateChange,
	}
}

// Reset resets the circuit breaker to closed state.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transitionTo(CircuitClosed)
}

// CircuitBreakerStats holds circuit breaker statistics.
type CircuitBreakerStats struct {
	Name            string       `json:"name" yaml:"name"`
	State           CircuitState `json:"state" yaml:"state"`
	TotalCalls      int64        `json:"total_calls" yaml:"total_calls"`
	TotalFailures   int64        `json:"total_failures" yaml:"total_failures"`
	TotalRejected   int64        `json:"total_rejected" yaml:"total_rejected"`
	CurrentFailures int          `json:"current_failures" yaml:"current_failures"`
	LastFailureTime time.Time    `json:"last_failure_time" yaml:"last_failure_time"`
	LastStateChange time.Time    `json:"last_state_change" yaml:"last_state_change"`
}

// FailureRate returns the failure rate as a percentage.
func (s CircuitBreakerStats) FailureRate() float64 {
	if s.TotalCalls == 0 {
		return 0
	}
	return float64(s.TotalFailures) / float64(s.TotalCalls) * 100
}
