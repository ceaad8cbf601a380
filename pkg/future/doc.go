// Package future provides composable asynchronous results with
// exactly-once completion.
//
// A Promise is the writable side of a Future: it moves from Pending to
// exactly one of Success, Failure or Cancelled, and every later completion
// attempt is a no-op that reports false.
//
// # Completion Tasks
//
// A CompletionTask is a Future whose value is computed once its dependencies
// resolve:
//
//	task := future.NewCompletionTask(pool, dialed, true, func(s *Session) (string, error) {
//	    return s.ID(), nil
//	})
//
// Both (AND) and Either (OR) combine two dependencies. All three guard the
// computation with a single compare-and-swap claim, so dependency
// notifications racing on different goroutines run the computation at most
// once. With fork set the computation is handed to an Executor instead of
// running on the goroutine that completed the dependency.
//
// # Failure Ordering
//
// When a combinator resolves to failure and both dependencies have already
// failed, the primary (first) dependency's cause wins. Cancellation of a
// dependency propagates as cancellation, except in Either where a real
// failure cause is preferred over a cancelled sibling.
package future
