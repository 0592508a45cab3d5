package budget

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for budget operations.
var (
	// ErrExceeded is matched by every *ExceededError.
	ErrExceeded = errors.New("budget: limit exceeded")

	// ErrEmptyUser is returned when Admit is called without a user ID.
	ErrEmptyUser = errors.New("budget: user id is empty")
)

// Scope names the bucket that rejected a call.
type Scope string

const (
	ScopeUser   Scope = "user"
	ScopeGlobal Scope = "global"
)

// ExceededError reports a rejected admission.
type ExceededError struct {
	Scope Scope
	Limit int
	// RetryAfter is the time until the rejecting bucket's window resets.
	RetryAfter time.Duration
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("budget: %s limit of %d exceeded, retry after %s",
		e.Scope, e.Limit, e.RetryAfter.Round(time.Millisecond))
}

// Is reports whether target is ErrExceeded.
func (e *ExceededError) Is(target error) bool {
	return target == ErrExceeded
}

// RetryAfter extracts the retry hint from err, if it is a budget rejection.
func RetryAfter(err error) (time.Duration, bool) {
	var exceeded *ExceededError
	if errors.As(err, &exceeded) {
		return exceeded.RetryAfter, true
	}
	return 0, false
}
