// Package observe provides logging, metrics and tracing for the generation
// pipeline.
//
// It is a pure instrumentation library: no generation, no storage, no I/O
// beyond exporter and log sink setup. The orchestrator builds a Middleware
// from an Observer and reports cache lookups, budget rejections, duplicate
// inserts and generation runs through it.
package observe
