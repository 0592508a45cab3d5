package health

import (
	"context"
	"fmt"
	"time"

	"github.com/jonwraymond/mealgen/budget"
	"github.com/jonwraymond/mealgen/generation"
)

// DefaultSaturation is the share of the global budget at which
// BudgetChecker reports degraded.
const DefaultSaturation = 0.9

// Pinger is implemented by store backends that can test connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StoreChecker checks cache store connectivity.
type StoreChecker struct {
	name   string
	pinger Pinger
}

// NewStoreChecker creates a checker pinging p.
func NewStoreChecker(name string, p Pinger) *StoreChecker {
	return &StoreChecker{name: name, pinger: p}
}

// Name returns the name of this checker.
func (c *StoreChecker) Name() string {
	return c.name
}

// Check pings the store.
func (c *StoreChecker) Check(ctx context.Context) Result {
	if err := c.pinger.Ping(ctx); err != nil {
		return Unhealthy("store unreachable", fmt.Errorf("%w: %w", ErrCheckFailed, err))
	}
	return Healthy("store reachable")
}

// GlobalUsager reports global budget usage.
type GlobalUsager interface {
	GlobalUsage() budget.Usage
}

// BudgetChecker reports how much of the global call budget is spent.
type BudgetChecker struct {
	usage      GlobalUsager
	saturation float64
}

// NewBudgetChecker creates a budget checker. Saturation outside (0, 1]
// falls back to DefaultSaturation.
func NewBudgetChecker(usage GlobalUsager, saturation float64) *BudgetChecker {
	if saturation <= 0 || saturation > 1 {
		saturation = DefaultSaturation
	}
	return &BudgetChecker{usage: usage, saturation: saturation}
}

// Name returns the name of this checker.
func (c *BudgetChecker) Name() string {
	return "budget"
}

// Check compares the global count to the ceiling.
func (c *BudgetChecker) Check(ctx context.Context) Result {
	select {
	case <-ctx.Done():
		return Unhealthy("context cancelled", ctx.Err())
	default:
	}

	u := c.usage.GlobalUsage()
	ratio := 0.0
	if u.Limit > 0 {
		ratio = float64(u.Count) / float64(u.Limit)
	}
	details := map[string]any{
		"count":         u.Count,
		"limit":         u.Limit,
		"remaining":     u.Remaining(),
		"usage_percent": ratio * 100,
		"reset_at":      u.ResetAt.UTC().Format(time.RFC3339),
	}

	if ratio >= c.saturation {
		return Degraded(fmt.Sprintf("global budget %.0f%% spent", ratio*100)).WithDetails(details)
	}
	return Healthy(fmt.Sprintf("global budget %.0f%% spent", ratio*100)).WithDetails(details)
}

// BreakerStater reports the generator circuit state.
type BreakerStater interface {
	BreakerState() generation.State
}

// BreakerChecker reports the generator circuit breaker state.
type BreakerChecker struct {
	breaker BreakerStater
}

// NewBreakerChecker creates a breaker checker.
func NewBreakerChecker(b BreakerStater) *BreakerChecker {
	return &BreakerChecker{breaker: b}
}

// Name returns the name of this checker.
func (c *BreakerChecker) Name() string {
	return "generator"
}

// Check maps open and half-open circuits to degraded.
func (c *BreakerChecker) Check(context.Context) Result {
	state := c.breaker.BreakerState()
	details := map[string]any{"circuit": state.String()}
	switch state {
	case generation.StateClosed:
		return Healthy("generator circuit closed").WithDetails(details)
	case generation.StateHalfOpen:
		return Degraded("generator circuit probing").WithDetails(details)
	default:
		return Degraded("generator circuit open").WithDetails(details)
	}
}
