// Package resilience implements the circuit breaker and rate limiting used
// around the external inference service.
package resilience

import (
	"sync"
	"time"

	"github.com/Dushime20/urutibiz-backend-sub011/pkg/errors"
	"github.com/Dushime20/urutibiz-backend-sub011/pkg/observability"
)

// CircuitBreakerState represents the state of a circuit breaker
type CircuitBreakerState int

// Circuit breaker states
const (
	CircuitBreakerClosed   CircuitBreakerState = iota // Normal operation, requests allowed
	CircuitBreakerOpen                                // Tripped, requests blocked
	CircuitBreakerHalfOpen                            // Testing if service is healthy
)

// String returns the state name for log fields.
func (s CircuitBreakerState) String() string {
	switch s {
	case CircuitBreakerClosed:
		return "closed"
	case CircuitBreakerOpen:
		return "open"
	case CircuitBreakerHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig holds configuration for a circuit breaker
type CircuitBreakerConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold"` // Consecutive failures before tripping
	Cooldown         time.Duration `mapstructure:"cooldown"`          // Time the circuit stays open before a trial
}

// DefaultCircuitBreakerConfig returns the default breaker settings.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
	}
}

// CircuitBreaker implements the circuit breaker pattern.
//
// All state transitions happen under a single mutex: the failure counter and
// state field can never diverge under concurrent callers. In the half-open
// state exactly one trial request is admitted; the rest fail fast until the
// trial resolves.
type CircuitBreaker struct {
	name   string
	config CircuitBreakerConfig
	logger observability.Logger

	mu              sync.Mutex
	state           CircuitBreakerState
	failures        int
	openedAt        time.Time
	trialInFlight   bool
	lastStateChange time.Time
}

// NewCircuitBreaker creates a new circuit breaker with the given configuration
func NewCircuitBreaker(name string, config CircuitBreakerConfig, logger observability.Logger) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.Cooldown <= 0 {
		config.Cooldown = 30 * time.Second
	}
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &CircuitBreaker{
		name:            name,
		config:          config,
		logger:          logger,
		state:           CircuitBreakerClosed,
		lastStateChange: time.Now(),
	}
}

// State returns the current state.
func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Allow reports whether a request may proceed now, admitting the half-open
// trial when the cooldown has elapsed. Callers that get true must report the
// outcome via RecordSuccess or RecordFailure.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitBreakerClosed:
		return nil
	case CircuitBreakerOpen:
		if time.Since(cb.openedAt) < cb.config.Cooldown {
			return errors.ErrCircuitOpen
		}
		cb.transition(CircuitBreakerHalfOpen)
		cb.trialInFlight = true
		return nil
	case CircuitBreakerHalfOpen:
		if cb.trialInFlight {
			return errors.ErrCircuitOpen
		}
		cb.trialInFlight = true
		return nil
	}
	return errors.ErrCircuitOpen
}

// RecordSuccess reports a successful call.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	cb.trialInFlight = false
	if cb.state != CircuitBreakerClosed {
		cb.transition(CircuitBreakerClosed)
	}
}

// RecordFailure reports a failed call. In the closed state the breaker trips
// after the configured number of consecutive failures; a failed half-open
// trial reopens the circuit with a fresh cooldown.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitBreakerClosed:
		cb.failures++
		if cb.failures >= cb.config.FailureThreshold {
			cb.open()
		}
	case CircuitBreakerHalfOpen:
		cb.trialInFlight = false
		cb.open()
	case CircuitBreakerOpen:
		// Already open, nothing to count.
	}
}

// Execute runs fn under the breaker, recording the outcome.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.Allow(); err != nil {
		return err
	}
	if err := fn(); err != nil {
		cb.RecordFailure()
		return err
	}
	cb.RecordSuccess()
	return nil
}

// TryHalfOpen moves an open breaker to half-open ahead of the cooldown. The
// health monitor calls this when a background probe sees the dependency
// recover, so traffic does not have to wait out the full window.
func (cb *CircuitBreaker) TryHalfOpen() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != CircuitBreakerOpen {
		return false
	}
	cb.transition(CircuitBreakerHalfOpen)
	cb.trialInFlight = false
	return true
}

// open must be called with the mutex held.
func (cb *CircuitBreaker) open() {
	cb.failures = 0
	cb.openedAt = time.Now()
	cb.transition(CircuitBreakerOpen)
}

// transition must be called with the mutex held.
func (cb *CircuitBreaker) transition(next CircuitBreakerState) {
	prev := cb.state
	cb.state = next
	cb.lastStateChange = time.Now()
	cb.logger.Info("circuit breaker state change", map[string]interface{}{
		"breaker": cb.name,
		"from":    prev.String(),
		"to":      next.String(),
	})
}
