// Package batch implements the batch scheduler (spec.md §4.G): it
// partitions a class's (or an unclassed module's) tests into gatherable
// async, sequential async, and sync groups, then runs the gatherable
// group concurrently on one shared scheduler.
//
// Grounded on original_source/src/execution.rs's can_async_test_be_gathered
// (the gatherability rule, re-expressed here via planner.InferLoopScope)
// and run_async_tests_gathered (the prepare-then-gather shape: resolve and
// invoke every test to obtain its coroutine before scheduling any of
// them, then await the whole set) re-expressed with golang.org/x/sync's
// errgroup for the fan-out/fan-in bookkeeping. asyncio.gather's
// return_exceptions=True — collect every outcome, never cancel a sibling
// because one task failed — is NOT errgroup.WithContext's default
// behaviour (that cancels every other goroutine's context on first
// error), so RunGathered uses a zero-value errgroup.Group: each task
// reports its own outcome through a captured closure and always returns
// nil to the group itself, leaving Group.Wait with nothing to propagate.
package batch

import (
	"context"
	"sync"
	"time"

	"code.cloudfoundry.org/clock"
	"golang.org/x/sync/errgroup"

	"github.com/apexrun/fixrunner/cache"
	"github.com/apexrun/fixrunner/enginecfg"
	"github.com/apexrun/fixrunner/executor"
	"github.com/apexrun/fixrunner/hostrt"
	"github.com/apexrun/fixrunner/loop"
	"github.com/apexrun/fixrunner/model"
	"github.com/apexrun/fixrunner/planner"
	"github.com/apexrun/fixrunner/report"
	"github.com/apexrun/fixrunner/resolver"
)

// Partition splits tests into the three groups spec.md §4.G names. A test
// is considered for async treatment only if it carries an asyncio mark
// (model.HasAsyncioMark); a test's explicit async-ness is not otherwise
// observable ahead of invoking its callable, so marks are the only
// ahead-of-time signal available to a pre-invocation partitioning pass.
// A test whose plan or loop-scope inference fails is routed to
// sequential rather than gatherable: it still needs to go through 4.F so
// the planning error surfaces as its own failed result, and batching a
// test that can't even produce a loop scope would be meaningless.
func Partition(tests []*model.TestCase, module *model.Module) (gatherable, sequential, sync []*model.TestCase) {
	for _, t := range tests {
		if !model.HasAsyncioMark(t.Marks) {
			sync = append(sync, t)
			continue
		}
		plan, err := planner.BuildPlan(t, module)
		if err != nil {
			sequential = append(sequential, t)
			continue
		}
		_, ok, err := planner.InferLoopScope(t, module, plan)
		if err != nil || !ok {
			sequential = append(sequential, t)
			continue
		}
		gatherable = append(gatherable, t)
	}
	return gatherable, sequential, sync
}

// RunGathered runs tests concurrently on one shared module-scope
// scheduler (spec.md §4.G): each test is resolved and invoked to obtain
// its coroutine before any of them are scheduled, then every coroutine
// is submitted to the scheduler and awaited together with a
// collect-all, don't-cancel-siblings semantic. Results preserve the
// input order regardless of completion order (Testable Property 5,
// scenario S5).
//
// Function-scope fixtures are resolved and torn down per test even
// though the batch shares one cache.Store for the wider scopes: each
// test resolves against store.WithFreshFunctionScope() and its function
// layer is drained right after that test finishes (synchronously after
// its prepare steps for a test that never reaches scheduling, or inside
// its own goroutine once its coroutine completes), so one test's
// function-scope fixture never leaks into another's and its Generator/
// AsyncGenerator teardowns still run. Any teardown error is logged as a
// warning via cfg.Sink().Log rather than failing the run (spec.md §7).
//
// When cfg.CaptureOutput is set and rt implements hostrt.OutputCapture,
// capture spans the whole batch rather than any one test: concurrently
// running coroutines share the host runtime's stdout/stderr streams, so
// there is no way to attribute output to a single test. Spec.md §4.G
// requires the resulting buffer to be assigned to every result in the
// batch, with Aggregate set so a caller knows the output isn't
// test-specific.
func RunGathered(ctx context.Context, tests []*model.TestCase, module *model.Module, store *cache.Store, loopReg *loop.Registry, rt hostrt.Runtime, clk clock.Clock, cfg enginecfg.Config) []report.Result {
	results := make([]report.Result, len(tests))
	if len(tests) == 0 {
		return results
	}

	var capture hostrt.OutputCapture
	if cfg.CaptureOutput {
		if oc, ok := rt.(hostrt.OutputCapture); ok {
			capture = oc
			if err := capture.StartCapture(); err != nil {
				capture = nil
			}
		}
	}

	sched := loopReg.Acquire(ctx, model.ScopeModule)

	type pending struct {
		idx       int
		test      *model.TestCase
		marks     []string
		start     time.Time
		coro      hostrt.Coroutine
		testStore *cache.Store
	}
	var prepared []pending

	// drainFunction runs inside each gathered test's own goroutine once
	// its coroutine completes, so concurrent calls serialise on sinkMu
	// rather than relying on the caller's report.Sink to be safe for
	// concurrent use itself.
	var sinkMu sync.Mutex
	drainFunction := func(testStore *cache.Store, path string) {
		errs := testStore.Drain(ctx, model.ScopeFunction)
		if len(errs) == 0 {
			return
		}
		sinkMu.Lock()
		defer sinkMu.Unlock()
		for _, tErr := range errs {
			cfg.Sink().Log(clk.Now(), path, "teardown error: "+tErr.Error())
		}
	}

	for i, t := range tests {
		marks := t.MarkNames()
		start := clk.Now()

		if t.SkipReason != "" {
			results[i] = report.Result{
				UniqueID: t.ID(), Status: report.Skipped,
				Message: t.SkipReason, HasMessage: true, Marks: marks,
			}
			continue
		}

		// Each test gets its own function-scope layer: the wider scopes
		// are shared across the batch, but function scope must be fresh
		// per test even though they're all resolved against one Store.
		testStore := store.WithFreshFunctionScope()

		plan, err := planner.BuildPlan(t, module)
		if err != nil {
			results[i] = executor.FailedResult(t, marks, clk.Since(start), err, rt)
			continue
		}
		loopScope, _, err := planner.InferLoopScope(t, module, plan)
		if err != nil {
			results[i] = executor.FailedResult(t, marks, clk.Since(start), err, rt)
			continue
		}

		res := resolver.New(testStore, module, t, loopReg, loopScope, rt)
		failed := false
		for _, name := range plan.Roots {
			if _, err := res.Resolve(ctx, name); err != nil {
				results[i] = executor.FailedResult(t, marks, clk.Since(start), err, rt)
				failed = true
				break
			}
		}
		if failed {
			drainFunction(testStore, t.Path)
			continue
		}

		args := make([]hostrt.Value, len(t.Parameters))
		for p, name := range t.Parameters {
			v, err := res.Resolve(ctx, name)
			if err != nil {
				results[i] = executor.FailedResult(t, marks, clk.Since(start), err, rt)
				failed = true
				break
			}
			args[p] = v
		}
		if failed {
			drainFunction(testStore, t.Path)
			continue
		}

		val, err := executor.SafeCall(func() (hostrt.Value, error) { return t.Callable(ctx, args) })
		if err != nil {
			results[i] = executor.Classify(t, marks, clk.Since(start), nil, err, rt)
			drainFunction(testStore, t.Path)
			continue
		}
		coro, ok := val.(hostrt.Coroutine)
		if !ok {
			// A gathered test that did not return a coroutine completed
			// synchronously; classify it now rather than scheduling it.
			results[i] = executor.Classify(t, marks, clk.Since(start), val, nil, rt)
			drainFunction(testStore, t.Path)
			continue
		}
		prepared = append(prepared, pending{idx: i, test: t, marks: marks, start: start, coro: coro, testStore: testStore})
	}

	var g errgroup.Group
	for _, p := range prepared {
		p := p
		g.Go(func() error {
			val, err := sched.Run(p.coro)
			results[p.idx] = executor.Classify(p.test, p.marks, clk.Since(p.start), val, err, rt)
			results[p.idx].Aggregate = true
			drainFunction(p.testStore, p.test.Path)
			return nil
		})
	}
	g.Wait()

	if capture != nil {
		if stdout, stderr, err := capture.StopCapture(); err == nil {
			for i := range results {
				results[i].Stdout, results[i].HasStdout = stdout, true
				results[i].Stderr, results[i].HasStderr = stderr, true
				results[i].Aggregate = true
			}
		}
	}

	return results
}
