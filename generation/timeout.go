package generation

import (
	"context"
	"errors"
	"time"
)

// DefaultTimeout bounds a generation when no timeout is configured.
const DefaultTimeout = 60 * time.Second

// withTimeout runs op with a hard deadline. If op ignores cancellation its
// result is discarded once the deadline passes. A panic in op is returned
// as an error wrapping ErrPanicked.
func withTimeout(ctx context.Context, timeout time.Duration, op func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- Recovered(r)
			}
		}()
		done <- op(ctx)
	}()

	select {
	case err := <-done:
		if errors.Is(err, context.DeadlineExceeded) && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ErrTimeout
		}
		return err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ErrTimeout
		}
		return ctx.Err()
	}
}
