package budget

import (
	"sync"
	"time"
)

// Defaults used when a Config field is not positive.
const (
	DefaultWindow      = 60 * time.Second
	DefaultUserLimit   = 60
	DefaultGlobalLimit = 1000
)

// Config configures a Guard.
type Config struct {
	// Window is the length of a counting window.
	// Default: 60 seconds
	Window time.Duration

	// UserLimit is the number of admissions per user per window.
	// Default: 60
	UserLimit int

	// GlobalLimit is the number of admissions across all users per window.
	// Default: 1000
	GlobalLimit int

	// Now returns the current time.
	// Default: time.Now
	Now func() time.Time
}

// Usage is a snapshot of one bucket.
type Usage struct {
	Count   int
	Limit   int
	ResetAt time.Time
}

// Remaining returns how many admissions the bucket has left in its window.
func (u Usage) Remaining() int {
	if r := u.Limit - u.Count; r > 0 {
		return r
	}
	return 0
}

type bucket struct {
	mu      sync.Mutex
	count   int
	resetAt time.Time
	// pruned is set once the bucket has been removed from the user map.
	pruned bool
}

// rollLocked starts a new window if the current one has passed.
func (b *bucket) rollLocked(now time.Time, window time.Duration) {
	if !now.Before(b.resetAt) {
		b.count = 0
		b.resetAt = now.Add(window)
	}
}

func (b *bucket) usageLocked(now time.Time, limit int) Usage {
	if !now.Before(b.resetAt) {
		return Usage{Limit: limit, ResetAt: b.resetAt}
	}
	return Usage{Count: b.count, Limit: limit, ResetAt: b.resetAt}
}

// Guard is a fixed-window admission controller with per-user and global
// ceilings.
type Guard struct {
	config Config

	mu    sync.RWMutex
	users map[string]*bucket

	global bucket
}

// NewGuard creates a guard.
func NewGuard(config Config) *Guard {
	// Apply defaults
	if config.Window <= 0 {
		config.Window = DefaultWindow
	}
	if config.UserLimit <= 0 {
		config.UserLimit = DefaultUserLimit
	}
	if config.GlobalLimit <= 0 {
		config.GlobalLimit = DefaultGlobalLimit
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	g := &Guard{
		config: config,
		users:  make(map[string]*bucket),
	}
	g.global.resetAt = config.Now().Add(config.Window)
	return g
}

// Config returns the effective configuration.
func (g *Guard) Config() Config {
	return g.config
}

// Admit counts one call for userID against both ceilings. It returns an
// *ExceededError naming the rejecting scope when either ceiling is reached,
// in which case neither bucket is incremented.
func (g *Guard) Admit(userID string) error {
	if userID == "" {
		return ErrEmptyUser
	}

	for {
		ub := g.userBucket(userID)

		ub.mu.Lock()
		if ub.pruned {
			// Lost a race with PruneIdle; fetch the replacement.
			ub.mu.Unlock()
			continue
		}
		err := g.admitLocked(ub)
		ub.mu.Unlock()
		return err
	}
}

// admitLocked runs the check-then-increment with ub.mu held.
func (g *Guard) admitLocked(ub *bucket) error {
	g.global.mu.Lock()
	defer g.global.mu.Unlock()

	now := g.config.Now()
	g.global.rollLocked(now, g.config.Window)
	ub.rollLocked(now, g.config.Window)

	if g.global.count >= g.config.GlobalLimit {
		return &ExceededError{
			Scope:      ScopeGlobal,
			Limit:      g.config.GlobalLimit,
			RetryAfter: g.global.resetAt.Sub(now),
		}
	}
	if ub.count >= g.config.UserLimit {
		return &ExceededError{
			Scope:      ScopeUser,
			Limit:      g.config.UserLimit,
			RetryAfter: ub.resetAt.Sub(now),
		}
	}

	g.global.count++
	ub.count++
	return nil
}

func (g *Guard) userBucket(userID string) *bucket {
	g.mu.RLock()
	b, ok := g.users[userID]
	g.mu.RUnlock()
	if ok {
		return b
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if b, ok := g.users[userID]; ok {
		return b
	}
	// A zero resetAt rolls into a fresh window on first use.
	b = &bucket{}
	g.users[userID] = b
	return b
}

// Usage returns a snapshot of a user's bucket. Unknown users report an
// empty bucket.
func (g *Guard) Usage(userID string) Usage {
	g.mu.RLock()
	b, ok := g.users[userID]
	g.mu.RUnlock()
	if !ok {
		return Usage{Limit: g.config.UserLimit}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.usageLocked(g.config.Now(), g.config.UserLimit)
}

// GlobalUsage returns a snapshot of the global bucket.
func (g *Guard) GlobalUsage() Usage {
	g.global.mu.Lock()
	defer g.global.mu.Unlock()
	return g.global.usageLocked(g.config.Now(), g.config.GlobalLimit)
}

// Users returns the number of tracked user buckets.
func (g *Guard) Users() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.users)
}

// PruneIdle drops user buckets whose window has fully elapsed and returns
// how many were removed. Such buckets hold no state a fresh bucket would
// not, so pruning never changes admission outcomes.
func (g *Guard) PruneIdle() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.config.Now()
	removed := 0
	for id, b := range g.users {
		b.mu.Lock()
		if !now.Before(b.resetAt) {
			b.pruned = true
			delete(g.users, id)
			removed++
		}
		b.mu.Unlock()
	}
	return removed
}
