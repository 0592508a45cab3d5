// Package generation defines the outbound generation capability and the
// guards placed around it.
//
// A Generator turns a constraint set and meal request into an opaque
// payload plus a macro summary. Generation is slow, costly and fallible, so
// production generators are wrapped in a Guarded generator that composes,
// outermost first:
//
//   - Bulkhead: caps concurrent generations, failing fast with ErrBusy.
//   - Circuit breaker: stops calling an upstream that keeps failing,
//     returning ErrCircuitOpen until a probe succeeds.
//   - Timeout: bounds each call, returning ErrTimeout.
//
// Generations are never retried here: each call spends budget and returns a
// different result.
package generation
