package generation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var errUpstream = errors.New("upstream down")

func fail(context.Context) error    { return errUpstream }
func succeed(context.Context) error { return nil }

func TestNewCircuitBreaker_Defaults(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{})

	if cb.State() != StateClosed {
		t.Errorf("Initial state = %v, want closed", cb.State())
	}
	if cb.config.MaxFailures != 5 {
		t.Errorf("MaxFailures = %d, want 5", cb.config.MaxFailures)
	}
	if cb.config.ResetTimeout != 30*time.Second {
		t.Errorf("ResetTimeout = %v, want 30s", cb.config.ResetTimeout)
	}
	if cb.config.HalfOpenMaxRequests != 1 {
		t.Errorf("HalfOpenMaxRequests = %d, want 1", cb.config.HalfOpenMaxRequests)
	}
}

func TestCircuitBreaker_OpenAfterFailures(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 3})

	for i := 0; i < 2; i++ {
		if err := cb.Execute(context.Background(), fail); !errors.Is(err, errUpstream) {
			t.Errorf("Execute() error = %v, want %v", err, errUpstream)
		}
		if cb.State() != StateClosed {
			t.Errorf("After %d failures, state = %v, want closed", i+1, cb.State())
		}
	}

	_ = cb.Execute(context.Background(), fail)
	if cb.State() != StateOpen {
		t.Fatalf("After 3 failures, state = %v, want open", cb.State())
	}

	err := cb.Execute(context.Background(), func(context.Context) error {
		t.Error("Should not be called when circuit is open")
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Execute() when open = %v, want ErrCircuitOpen", err)
	}
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 2})

	_ = cb.Execute(context.Background(), fail)
	_ = cb.Execute(context.Background(), succeed)
	_ = cb.Execute(context.Background(), fail)

	if cb.State() != StateClosed {
		t.Errorf("State = %v, want closed", cb.State())
	}
	if cb.Failures() != 1 {
		t.Errorf("Failures() = %d, want 1", cb.Failures())
	}
}

func TestCircuitBreaker_CancellationIsNotFailure(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 1})

	_ = cb.Execute(context.Background(), func(context.Context) error { return context.Canceled })

	if cb.State() != StateClosed {
		t.Errorf("State = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	clock := newFakeClock()
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		MaxFailures:  1,
		ResetTimeout: 10 * time.Second,
		Now:          clock.Now,
	})

	_ = cb.Execute(context.Background(), fail)
	clock.Advance(9 * time.Second)
	if cb.State() != StateOpen {
		t.Fatalf("State = %v, want open", cb.State())
	}

	clock.Advance(time.Second)
	if cb.State() != StateHalfOpen {
		t.Fatalf("State = %v, want half-open", cb.State())
	}

	if err := cb.Execute(context.Background(), succeed); err != nil {
		t.Errorf("Execute() error = %v", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("State = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	clock := newFakeClock()
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		MaxFailures:  1,
		ResetTimeout: 10 * time.Second,
		Now:          clock.Now,
	})

	_ = cb.Execute(context.Background(), fail)
	clock.Advance(10 * time.Second)
	_ = cb.Execute(context.Background(), fail)

	if cb.State() != StateOpen {
		t.Fatalf("State = %v, want open", cb.State())
	}

	// The open period restarts from the failed probe.
	clock.Advance(5 * time.Second)
	if cb.State() != StateOpen {
		t.Errorf("State = %v, want open", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenLimitsProbes(t *testing.T) {
	clock := newFakeClock()
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		MaxFailures:  1,
		ResetTimeout: time.Second,
		Now:          clock.Now,
	})

	_ = cb.Execute(context.Background(), fail)
	clock.Advance(time.Second)

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- cb.Execute(context.Background(), func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	if err := cb.Execute(context.Background(), succeed); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("second probe error = %v, want ErrCircuitOpen", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Errorf("probe error = %v", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("State = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_OnStateChange(t *testing.T) {
	clock := newFakeClock()
	var transitions []string
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		MaxFailures:  1,
		ResetTimeout: time.Second,
		Now:          clock.Now,
		OnStateChange: func(from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	_ = cb.Execute(context.Background(), fail)
	clock.Advance(time.Second)
	_ = cb.Execute(context.Background(), succeed)

	want := []string{"closed->open", "open->half-open", "half-open->closed"}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transitions[%d] = %q, want %q", i, transitions[i], want[i])
		}
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 1})
	_ = cb.Execute(context.Background(), fail)

	cb.Reset()

	if cb.State() != StateClosed {
		t.Errorf("State = %v, want closed", cb.State())
	}
	if cb.Failures() != 0 {
		t.Errorf("Failures() = %d, want 0", cb.Failures())
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
