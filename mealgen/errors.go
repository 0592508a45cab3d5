package mealgen

import (
	"errors"
	"fmt"
)

var (
	// ErrGenerationFailed matches every *GenerationError.
	ErrGenerationFailed = errors.New("mealgen: generation failed")

	// ErrMissingDependency is returned by NewService for incomplete options.
	ErrMissingDependency = errors.New("mealgen: missing dependency")
)

// GenerationError reports a failed generation. Nothing was cached.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("mealgen: generation failed: %v", e.Err)
}

// Is reports whether target is ErrGenerationFailed.
func (e *GenerationError) Is(target error) bool {
	return target == ErrGenerationFailed
}

// Unwrap returns the underlying cause.
func (e *GenerationError) Unwrap() error {
	return e.Err
}
