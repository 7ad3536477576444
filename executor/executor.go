// Package executor implements the test executor (spec.md §4.F): resolves
// a test's fixtures, invokes its callable, classifies the outcome, and
// drains function-scope teardowns.
//
// Grounded on original_source/src/execution.rs's execute_test_case (the
// validate-then-resolve-then-invoke shape) and its is_skip_exception /
// extract_skip_reason / enrich_assertion_error helpers (package-local
// skip.go and assertion.go). The goroutine-isolated host call is package
// safecall, the same one package resolver uses for fixture calls.
package executor

import (
	"context"
	"time"

	"code.cloudfoundry.org/clock"

	"github.com/apexrun/fixrunner/cache"
	"github.com/apexrun/fixrunner/enginecfg"
	"github.com/apexrun/fixrunner/hostrt"
	"github.com/apexrun/fixrunner/loop"
	"github.com/apexrun/fixrunner/model"
	"github.com/apexrun/fixrunner/planner"
	"github.com/apexrun/fixrunner/report"
	"github.com/apexrun/fixrunner/resolver"
	"github.com/apexrun/fixrunner/safecall"
)

// SafeCall isolates a call into host-runtime code on its own goroutine so
// a panic there cannot take down the engine, the same isolation package
// resolver uses for fixture calls. Exported so package batch can invoke
// test callables under the same isolation when preparing a gathered
// batch.
func SafeCall(f func() (hostrt.Value, error)) (hostrt.Value, error) {
	return safecall.Call(f)
}

// Execute runs a single test to completion (spec.md §4.F).
func Execute(ctx context.Context, test *model.TestCase, module *model.Module, store *cache.Store, loopReg *loop.Registry, rt hostrt.Runtime, clk clock.Clock, cfg enginecfg.Config) report.Result {
	start := clk.Now()
	marks := test.MarkNames()

	// Step 1: skip_reason short-circuits immediately.
	if test.SkipReason != "" {
		return report.Result{
			UniqueID: test.ID(), Status: report.Skipped,
			Message: test.SkipReason, HasMessage: true, Marks: marks,
		}
	}

	plan, err := planner.BuildPlan(test, module)
	if err != nil {
		return FailedResult(test, marks, clk.Since(start), err, rt)
	}

	// Step 2: loop-scope compatibility.
	loopScope, _, err := planner.InferLoopScope(test, module, plan)
	if err != nil {
		return FailedResult(test, marks, clk.Since(start), err, rt)
	}

	res := resolver.New(store, module, test, loopReg, loopScope, rt)

	drainFunction := func() {
		for _, tErr := range store.Drain(ctx, model.ScopeFunction) {
			cfg.Sink().Log(clk.Now(), test.Path, "teardown error: "+tErr.Error())
		}
		loopReg.Release(model.ScopeFunction)
	}

	// Step 3: autouse, then usefixtures, then each formal parameter
	// (plan.Roots is already built in that priority order and
	// de-duplicated; resolving it first reproduces the side-effect
	// ordering, and resolving test.Parameters afterwards is a cache hit).
	// A fixture that fails partway through still needs its own
	// already-resolved siblings' function-scope teardowns drained before
	// this test's failed result is returned, or a later test sharing this
	// Store would probe a stale, never-torn-down function-scope entry.
	for _, name := range plan.Roots {
		if _, err := res.Resolve(ctx, name); err != nil {
			drainFunction()
			return FailedResult(test, marks, clk.Since(start), err, rt)
		}
	}
	args := make([]hostrt.Value, len(test.Parameters))
	for i, name := range test.Parameters {
		v, err := res.Resolve(ctx, name)
		if err != nil {
			drainFunction()
			return FailedResult(test, marks, clk.Since(start), err, rt)
		}
		args[i] = v
	}

	// Step 4: optional output capture, gated on cfg.CaptureOutput
	// (spec.md §6).
	var capture hostrt.OutputCapture
	if cfg.CaptureOutput {
		if oc, ok := rt.(hostrt.OutputCapture); ok {
			capture = oc
			if err := capture.StartCapture(); err != nil {
				capture = nil
			}
		}
	}

	// Step 5: invoke, dispatching a coroutine return value onto the
	// scheduler for this test's effective loop scope.
	val, callErr := SafeCall(func() (hostrt.Value, error) { return test.Callable(ctx, args) })
	if callErr == nil && rt.IsCoroutine(val) {
		if coro, ok := val.(hostrt.Coroutine); ok {
			sched := loopReg.Acquire(ctx, loopScope)
			val, callErr = sched.Run(coro)
		}
	}

	var stdout, stderr string
	var hasOutput bool
	if capture != nil {
		if out, errOut, err := capture.StopCapture(); err == nil {
			stdout, stderr, hasOutput = out, errOut, true
		}
	}

	result := Classify(test, marks, clk.Since(start), val, callErr, rt)
	if hasOutput {
		result.Stdout, result.HasStdout = stdout, true
		result.Stderr, result.HasStderr = stderr, true
	}

	// Step 7: drain function-scope teardowns and close the function-scope
	// scheduler if one was created. A teardown error does not affect the
	// already-classified result (spec.md §7: TeardownError is "logged as
	// a warning on the error stream"), but it is surfaced through the
	// sink rather than discarded.
	drainFunction()

	return result
}

// Classify maps a callable's outcome to a passed, skipped, or failed
// Result (spec.md §4.F step 6). Exported so package batch can classify
// gathered coroutines with the same rules a sequential Execute uses.
func Classify(test *model.TestCase, marks []string, dur time.Duration, val hostrt.Value, err error, rt hostrt.Runtime) report.Result {
	if err == nil {
		return report.Result{
			UniqueID: test.ID(), Status: report.Passed,
			DurationSeconds: dur.Seconds(), Marks: marks,
		}
	}
	if reason, ok := classifySkip(err, rt); ok {
		return report.Result{
			UniqueID: test.ID(), Status: report.Skipped,
			DurationSeconds: dur.Seconds(), Message: reason, HasMessage: reason != "", Marks: marks,
		}
	}
	return FailedResult(test, marks, dur, err, rt)
}

// FailedResult builds a failed Result, attempting assertion-value
// enrichment when err carries locals. Exported for package batch and
// package planner/executor call sites that must surface a planning or
// loop-scope error as a failed result before any fixture runs.
func FailedResult(test *model.TestCase, marks []string, dur time.Duration, err error, rt hostrt.Runtime) report.Result {
	message := rt.FormatException(err)
	if al, ok := err.(hostrt.AssertionLocals); ok {
		message = enrichAssertionMessage(message, al)
	}
	return report.Result{
		UniqueID: test.ID(), Status: report.Failed,
		DurationSeconds: dur.Seconds(), Message: message, HasMessage: true, Marks: marks,
	}
}
