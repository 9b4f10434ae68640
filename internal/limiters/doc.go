// Package limiters provides the failed-login counters behind account lockout.
//
//   - [Redis] counts with INCR, so concurrent failures never lose an increment.
//   - [Memory] counts under a mutex for single-process deployments and tests.
//
// Both optionally expire a counter a fixed window after its first failure.
// Backend failures are wrapped with [ErrCounterUnavailable].
//
// # What this package must NOT do
//
//   - Import restauth or any sibling internal package.
//   - Decide whether a count means "locked"; the engine compares it to the threshold.
package limiters
