package generation

import (
	"errors"
	"fmt"
)

// Sentinel errors for generation.
var (
	// ErrCircuitOpen is returned when the circuit breaker is open.
	ErrCircuitOpen = errors.New("generation: circuit breaker is open")

	// ErrBusy is returned when the concurrent generation limit is reached.
	ErrBusy = errors.New("generation: too many concurrent generations")

	// ErrTimeout is returned when a generation exceeds its time limit.
	ErrTimeout = errors.New("generation: timed out")

	// ErrInvalidResponse is returned when an upstream response fails validation.
	ErrInvalidResponse = errors.New("generation: invalid upstream response")

	// ErrInvalidConfig is returned for unusable generator configuration.
	ErrInvalidConfig = errors.New("generation: invalid config")

	// ErrPanicked is returned when a generator panics.
	ErrPanicked = errors.New("generation: generator panicked")
)

// Recovered converts a value returned by recover into an error wrapping
// ErrPanicked.
func Recovered(r any) error {
	return fmt.Errorf("%w: %v", ErrPanicked, r)
}

// UpstreamError reports a non-success HTTP status from the upstream.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("generation: upstream returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("generation: upstream returned status %d: %s", e.StatusCode, e.Body)
}
