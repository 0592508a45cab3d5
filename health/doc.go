// Package health reports the health of the generation cache and its
// dependencies.
//
// A Checker reports one component as Healthy, Degraded or Unhealthy. The
// Aggregator runs a set of checkers under a shared timeout, and the HTTP
// handlers expose the combined result as liveness, readiness and detailed
// probes.
//
// Domain checkers:
//
//   - StoreChecker pings the cache store; a failed ping is unhealthy.
//   - BudgetChecker reports degraded while the global budget is nearly spent.
//   - BreakerChecker reports degraded while the generator circuit is open.
//
// Degraded components keep the service ready: cached meals are still
// served while generation is throttled or failing.
package health
