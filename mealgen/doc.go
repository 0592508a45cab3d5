// Package mealgen serves meal generation requests through a signature cache
// guarded by a per-user and global call budget.
//
// A request is resolved in this order:
//
//  1. Derive the user's constraint set, falling back to defaults.
//  2. Build the request signature.
//  3. Look the signature up; a hit is returned without touching the budget.
//  4. On a miss, admit the call against the budget.
//  5. Join the single in-flight generation for the signature, generate,
//     and insert the result.
//
// Budget rejections are returned as *budget.ExceededError and are never
// retried here. Generator failures are returned as *GenerationError and
// nothing is cached for them.
//
// Runtime wires a Service and its backends from config.Config and exposes
// health and metrics endpoints.
package mealgen
