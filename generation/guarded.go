package generation

import (
	"context"
	"time"
)

// GuardConfig configures a Guarded generator. Zero values fall back to the
// defaults of each stage.
type GuardConfig struct {
	// MaxConcurrent caps in-flight generations.
	MaxConcurrent int

	// MaxWait is how long a call may wait for a bulkhead slot.
	MaxWait time.Duration

	// MaxFailures opens the breaker after this many consecutive failures.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before probing.
	ResetTimeout time.Duration

	// Timeout bounds each generation. Default: DefaultTimeout.
	Timeout time.Duration

	// OnStateChange observes breaker transitions.
	OnStateChange func(from, to State)

	// Now returns the current time for the breaker.
	Now func() time.Time
}

// Guarded wraps a Generator with a bulkhead, a circuit breaker and a hard
// timeout, applied in that order from the outside in.
type Guarded struct {
	next     Generator
	bulkhead *Bulkhead
	breaker  *CircuitBreaker
	timeout  time.Duration
}

// NewGuarded wraps next.
func NewGuarded(next Generator, cfg GuardConfig) *Guarded {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Guarded{
		next: next,
		bulkhead: NewBulkhead(BulkheadConfig{
			MaxConcurrent: cfg.MaxConcurrent,
			MaxWait:       cfg.MaxWait,
		}),
		breaker: NewCircuitBreaker(CircuitBreakerConfig{
			MaxFailures:   cfg.MaxFailures,
			ResetTimeout:  cfg.ResetTimeout,
			OnStateChange: cfg.OnStateChange,
			Now:           cfg.Now,
		}),
		timeout: timeout,
	}
}

// Generate runs next through the guard chain.
func (g *Guarded) Generate(ctx context.Context, req Request) (Output, error) {
	var out Output
	err := g.bulkhead.Execute(ctx, func(ctx context.Context) error {
		return g.breaker.Execute(ctx, func(ctx context.Context) error {
			return withTimeout(ctx, g.timeout, func(ctx context.Context) error {
				o, err := g.next.Generate(ctx, req)
				if err != nil {
					return err
				}
				out = o
				return nil
			})
		})
	})
	if err != nil {
		return Output{}, err
	}
	return out, nil
}

// BreakerState returns the current circuit state.
func (g *Guarded) BreakerState() State {
	return g.breaker.State()
}

// Bulkhead exposes the concurrency limiter for metrics.
func (g *Guarded) Bulkhead() *Bulkhead {
	return g.bulkhead
}

// Breaker exposes the circuit breaker for health checks and resets.
func (g *Guarded) Breaker() *CircuitBreaker {
	return g.breaker
}
