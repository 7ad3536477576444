// Package safecall isolates a single call into host-runtime glue code onto
// its own goroutine, so a panic there cannot take down the engine. It is a
// trimmed version of internal/planner/safe.go's safeCall: the teacher's
// version also enforces a timeout plus grace period before abandoning the
// goroutine, which this engine has no use for since spec.md §5 states
// per-fixture/test timeouts are not part of the core — ctx cancellation
// (e.g. from an enclosing deadline the caller set up) still propagates to
// the call because it receives the same ctx it was given.
//
// Both package resolver (fixture construction) and package executor (test
// invocation, and batch's reuse of it to invoke a gathered test's
// callable) need this
// exact isolation, so it lives here once rather than twice.
package safecall

import (
	"github.com/apexrun/fixrunner/hostrt"
	"github.com/apexrun/fixrunner/rterrors"
)

// Call runs f on its own goroutine and waits for it to finish, translating
// a panic into an error the caller reports as a Setup/CallError (spec.md
// §7) instead of propagating it.
func Call(f func() (hostrt.Value, error)) (val hostrt.Value, err error) {
	type result struct {
		val hostrt.Value
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if v := recover(); v != nil {
				done <- result{err: rterrors.Errorf("panic: %v", v)}
			}
		}()
		v, e := f()
		done <- result{val: v, err: e}
	}()
	r := <-done
	return r.val, r.err
}
