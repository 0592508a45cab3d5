package store

import (
	"context"
	"sync"
	"time"

	"github.com/jonwraymond/mealgen/observe"
)

// DefaultSweepInterval is used when a policy enables eviction without an
// interval.
const DefaultSweepInterval = 5 * time.Minute

// SweepPolicy configures idle eviction. The zero value disables it.
type SweepPolicy struct {
	// MaxIdle evicts entries not accessed for this long. Zero disables
	// eviction.
	MaxIdle time.Duration

	// Interval between sweeps.
	// Default: 5 minutes
	Interval time.Duration
}

// Enabled reports whether the policy evicts anything.
func (p SweepPolicy) Enabled() bool {
	return p.MaxIdle > 0
}

// Sweeper periodically evicts idle entries from an Evicter.
type Sweeper struct {
	evicter Evicter
	policy  SweepPolicy
	logger  observe.Logger
	now     func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSweeper creates a sweeper. It does nothing until Start is called.
func NewSweeper(evicter Evicter, policy SweepPolicy, logger observe.Logger, now func() time.Time) *Sweeper {
	if policy.Interval <= 0 {
		policy.Interval = DefaultSweepInterval
	}
	if logger == nil {
		logger = observe.NopLogger()
	}
	return &Sweeper{
		evicter: evicter,
		policy:  policy,
		logger:  logger,
		now:     nowFunc(now),
	}
}

// SweepOnce evicts entries idle for longer than the policy allows.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	if !s.policy.Enabled() {
		return 0, nil
	}
	cutoff := s.now().Add(-s.policy.MaxIdle)
	n, err := s.evicter.EvictIdle(ctx, cutoff)
	if err != nil {
		s.logger.Warn(ctx, "cache sweep failed", observe.F("error", err))
		return n, err
	}
	if n > 0 {
		s.logger.Debug(ctx, "cache sweep evicted entries", observe.F("evicted", n))
	}
	return n, nil
}

// Start runs sweeps in the background until Stop is called or ctx ends.
// It is a no-op when the policy is disabled or the sweeper is running.
func (s *Sweeper) Start(ctx context.Context) {
	if !s.policy.Enabled() {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(s.policy.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_, _ = s.SweepOnce(ctx)
			}
		}
	}(s.done)
}

// Stop halts background sweeps and waits for the current one to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
