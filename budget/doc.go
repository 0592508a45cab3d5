// Package budget provides the admission guard that protects the expensive
// generation step.
//
// A Guard tracks call counts in fixed windows, one bucket per user plus a
// single global bucket. A call is admitted only when both buckets are under
// their ceilings, and then counts against both.
//
// # Usage
//
//	g := budget.NewGuard(budget.Config{
//	    Window:      time.Minute,
//	    UserLimit:   60,
//	    GlobalLimit: 1000,
//	})
//
//	if err := g.Admit(userID); err != nil {
//	    var exceeded *budget.ExceededError
//	    if errors.As(err, &exceeded) {
//	        // ask the caller to retry after exceeded.RetryAfter
//	    }
//	}
//
// Rejection is an expected outcome. Callers surface it and never retry
// internally.
//
// # Thread Safety
//
// Guard is safe for concurrent use. Each bucket has its own lock; an
// admission holds the user bucket's lock and then the global bucket's lock,
// always in that order.
package budget
