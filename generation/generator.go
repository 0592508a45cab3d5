package generation

import (
	"context"

	"github.com/jonwraymond/mealgen/constraint"
	"github.com/jonwraymond/mealgen/meal"
)

// Request is the input to a generation.
type Request struct {
	Constraints constraint.ConstraintSet
	MealType    meal.Type
	Params      map[string]any

	// RunID correlates the generation across logs, spans and upstream
	// requests. Generators may assign one when empty.
	RunID string
}

// Output is a generation result.
type Output struct {
	// Payload is opaque to this module.
	Payload []byte
	Macros  meal.Macros
}

// Generator produces meal suggestions.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: must honor cancellation/deadlines.
// - Errors: any error means no usable output.
type Generator interface {
	Generate(ctx context.Context, req Request) (Output, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, req Request) (Output, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, req Request) (Output, error) {
	return f(ctx, req)
}
