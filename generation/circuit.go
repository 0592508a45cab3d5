package generation

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State represents the circuit breaker state.
type State int

const (
	// StateClosed means the circuit is operating normally.
	StateClosed State = iota
	// StateOpen means the circuit is blocking all requests.
	StateOpen
	// StateHalfOpen means the circuit is testing if the upstream recovered.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
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

// CircuitBreakerConfig configures the circuit breaker.
type CircuitBreakerConfig struct {
	// MaxFailures is the number of consecutive failures before opening the circuit.
	// Default: 5
	MaxFailures int

	// ResetTimeout is how long to wait before attempting recovery.
	// Default: 30 seconds
	ResetTimeout time.Duration

	// HalfOpenMaxRequests is the max requests allowed in half-open state.
	// Default: 1
	HalfOpenMaxRequests int

	// OnStateChange is called when the circuit state changes. It runs with
	// the breaker's lock held and must not call back into the breaker.
	OnStateChange func(from, to State)

	// IsFailure determines if an error should count as a failure.
	// Default: all non-nil errors except context cancellation.
	IsFailure func(err error) bool

	// Now returns the current time.
	// Default: time.Now
	Now func() time.Time
}

// CircuitBreaker implements the circuit breaker pattern.
type CircuitBreaker struct {
	config CircuitBreakerConfig

	mu            sync.Mutex
	state         State
	failures      int
	lastFailure   time.Time
	halfOpenCount int
}

// NewCircuitBreaker creates a new circuit breaker.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	// Apply defaults
	if config.MaxFailures <= 0 {
		config.MaxFailures = 5
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = 30 * time.Second
	}
	if config.HalfOpenMaxRequests <= 0 {
		config.HalfOpenMaxRequests = 1
	}
	if config.IsFailure == nil {
		config.IsFailure = func(err error) bool {
			return err != nil && !errors.Is(err, context.Canceled)
		}
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	return &CircuitBreaker{
		config: config,
		state:  StateClosed,
	}
}

// Execute runs the operation through the circuit breaker.
func (cb *CircuitBreaker) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := cb.beforeRequest(); err != nil {
		return err
	}

	err := op(ctx)
	cb.afterRequest(err)
	return err
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.currentStateLocked()
}

// Failures returns the current consecutive failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// Reset resets the circuit breaker to closed state.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	oldState := cb.state
	cb.state = StateClosed
	cb.failures = 0
	cb.halfOpenCount = 0

	if oldState != StateClosed && cb.config.OnStateChange != nil {
		cb.config.OnStateChange(oldState, StateClosed)
	}
}

func (cb *CircuitBreaker) beforeRequest() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.currentStateLocked() {
	case StateOpen:
		return ErrCircuitOpen
	case StateHalfOpen:
		if cb.halfOpenCount >= cb.config.HalfOpenMaxRequests {
			return ErrCircuitOpen
		}
		cb.halfOpenCount++
	}

	return nil
}

func (cb *CircuitBreaker) afterRequest(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	isFailure := cb.config.IsFailure(err)
	oldState := cb.state

	switch cb.state {
	case StateClosed:
		if isFailure {
			cb.failures++
			cb.lastFailure = cb.config.Now()
			if cb.failures >= cb.config.MaxFailures {
				cb.state = StateOpen
			}
		} else if err == nil {
			cb.failures = 0
		}

	case StateHalfOpen:
		if isFailure {
			// Failed probe; restart the open period.
			cb.lastFailure = cb.config.Now()
			cb.state = StateOpen
		} else if err == nil {
			cb.state = StateClosed
			cb.failures = 0
		} else {
			// Neither success nor failure; free the probe slot.
			cb.halfOpenCount--
		}
	}

	if oldState != cb.state && cb.config.OnStateChange != nil {
		cb.config.OnStateChange(oldState, cb.state)
	}
}

func (cb *CircuitBreaker) currentStateLocked() State {
	if cb.state == StateOpen && cb.config.Now().Sub(cb.lastFailure) >= cb.config.ResetTimeout {
		cb.state = StateHalfOpen
		cb.halfOpenCount = 0
		if cb.config.OnStateChange != nil {
			cb.config.OnStateChange(StateOpen, StateHalfOpen)
		}
	}
	return cb.state
}
