package resilience

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/itsneelabh/fraudmind/core"
)

// CircuitState represents the breaker's state.
type CircuitState int

const (
	// StateClosed: normal operation, requests pass through
	StateClosed CircuitState = iota
	// StateOpen: threshold exceeded, requests fail immediately
	StateOpen
	// StateHalfOpen: testing recovery, limited requests allowed
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
	}
	return "unknown"
}

// CircuitBreakerConfig configures a breaker.
type CircuitBreakerConfig struct {
	// Name identifies the breaker in logs and metrics
	Name string
	// Threshold is the consecutive-failure count that opens the circuit
	Threshold int
	// Timeout is how long the circuit stays open before probing
	Timeout time.Duration
	// HalfOpenRequests is the probe budget in half-open state
	HalfOpenRequests int
	// Logger for state transitions
	Logger core.Logger
}

// CircuitBreaker is an in-memory circuit breaker. Safe for concurrent
// use.
type CircuitBreaker struct {
	config CircuitBreakerConfig
	logger core.Logger

	mu           sync.Mutex
	state        CircuitState
	failures     int
	halfOpenUsed int
	openedAt     time.Time
}

// NewCircuitBreaker creates a breaker with the given configuration.
func NewCircuitBreaker(config CircuitBreakerConfig) (*CircuitBreaker, error) {
	if config.Name == "" {
		return nil, fmt.Errorf("circuit breaker name cannot be empty")
	}
	if config.Threshold <= 0 {
		config.Threshold = 5
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.HalfOpenRequests <= 0 {
		config.HalfOpenRequests = 3
	}
	logger := config.Logger
	if logger == nil {
		logger = &core.NoOpLogger{}
	}

	return &CircuitBreaker{
		config: config,
		logger: logger,
		state:  StateClosed,
	}, nil
}

// Execute runs fn with circuit breaker protection. When the circuit is
// open it returns core.ErrCircuitBreakerOpen without calling fn.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if !cb.CanExecute() {
		return fmt.Errorf("%w: %s", core.ErrCircuitBreakerOpen, cb.config.Name)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if err := fn(); err != nil {
		cb.RecordFailure()
		return err
	}

	cb.RecordSuccess()
	return nil
}

// CanExecute reports whether the breaker would allow a request,
// transitioning open circuits to half-open after the timeout.
func (cb *CircuitBreaker) CanExecute() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(cb.openedAt) >= cb.config.Timeout {
			cb.transition(StateHalfOpen)
			cb.halfOpenUsed = 1
			return true
		}
		return false
	case StateHalfOpen:
		if cb.halfOpenUsed < cb.config.HalfOpenRequests {
			cb.halfOpenUsed++
			return true
		}
		return false
	}
	return false
}

// RecordSuccess records a successful call, closing a half-open circuit.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	if cb.state == StateHalfOpen {
		cb.transition(StateClosed)
	}
}

// RecordFailure records a failed call, opening the circuit when the
// failure threshold is reached or a half-open probe fails.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++

	if cb.state == StateHalfOpen || (cb.state == StateClosed && cb.failures >= cb.config.Threshold) {
		cb.transition(StateOpen)
		cb.openedAt = time.Now()
	}
}

// GetState returns the current state as a string.
func (cb *CircuitBreaker) GetState() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state.String()
}

// Reset manually closes the circuit and clears failure counts.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	cb.halfOpenUsed = 0
	cb.transition(StateClosed)
}

// transition changes state. Callers must hold cb.mu.
func (cb *CircuitBreaker) transition(to CircuitState) {
	if cb.state == to {
		return
	}

	from := cb.state
	cb.state = to
	cb.halfOpenUsed = 0

	cb.logger.Info("Circuit breaker state change", map[string]interface{}{
		"name": cb.config.Name,
		"from": from.String(),
		"to":   to.String(),
	})
}
