// Package orchestrator implements the run orchestrator (spec.md §4.H):
// it iterates modules and classes in collection order, drains scope-cache
// teardowns at module/class/package/session boundaries, dispatches each
// class (or unclassed module) group through the batch scheduler, and
// assembles the run summary.
//
// Grounded on internal/planner/run.go's plan/prePlan/runTest shape: a
// top-level pass that buckets work (there, by precondition; here, by
// package/class/sync-vs-async) before running it, generalized from
// tast's precondition-bucketing to this engine's scope-cache draining at
// module/class/package/session boundaries (spec.md §3 Lifecycles).
package orchestrator

import (
	"context"
	"path/filepath"
	"sort"

	"code.cloudfoundry.org/clock"

	"github.com/apexrun/fixrunner/batch"
	"github.com/apexrun/fixrunner/cache"
	"github.com/apexrun/fixrunner/enginecfg"
	"github.com/apexrun/fixrunner/executor"
	"github.com/apexrun/fixrunner/hostrt"
	"github.com/apexrun/fixrunner/lastfailed"
	"github.com/apexrun/fixrunner/loop"
	"github.com/apexrun/fixrunner/model"
	"github.com/apexrun/fixrunner/report"
)

// Run executes every test in modules, in collection order, honouring
// scope-boundary teardown draining and fail-fast (spec.md §4.H).
// collectionErrors is surfaced verbatim into the summary and counted as
// Summary.Errors, since every engine-internal error (planning, fixture
// setup, test, teardown) collapses into a Failed result rather than a
// distinct status (spec.md §7's taxonomy names them, but report.Status
// has only Passed/Failed/Skipped). lastFailedPath, if non-empty, is
// where the failed-id document is persisted at the end of every run,
// including a fail-fast exit.
func Run(ctx context.Context, modules []*model.Module, collectionErrors []report.CollectionError, cfg enginecfg.Config, rt hostrt.Runtime, clk clock.Clock, lastFailedPath string) report.Summary {
	sink := cfg.Sink()
	store := cache.NewStore()
	loopReg := loop.NewRegistry(clk)

	start := clk.Now()
	sink.SuiteStarted(start)

	summary := report.Summary{
		CollectionErrors: collectionErrors,
		Errors:           len(collectionErrors),
	}
	for _, ce := range collectionErrors {
		sink.CollectionError(clk.Now(), ce)
	}

	var failed []string
	currentPackage := ""
	havePackage := false
	stopped := false

outer:
	for _, m := range modules {
		pkg := filepath.Dir(m.Path)
		if havePackage && pkg != currentPackage {
			drainAndRelease(ctx, store, loopReg, model.ScopePackage, sink, m.Path, clk)
		}
		currentPackage, havePackage = pkg, true

		sink.FileStarted(clk.Now(), m.Path)

		groups := m.GroupByClass()
		for gi, g := range groups {
			if gi > 0 {
				drainAndRelease(ctx, store, loopReg, model.ScopeClass, sink, m.Path, clk)
			}

			for _, r := range runGroup(ctx, g.Tests, m, store, loopReg, rt, clk, cfg) {
				sink.TestCompleted(clk.Now(), r)
				tally(&summary, r)

				if r.Status == report.Failed {
					failed = append(failed, r.UniqueID)
					if cfg.FailFast {
						drainAndRelease(ctx, store, loopReg, model.ScopeClass, sink, m.Path, clk)
						drainAndRelease(ctx, store, loopReg, model.ScopeModule, sink, m.Path, clk)
						drainAndRelease(ctx, store, loopReg, model.ScopePackage, sink, m.Path, clk)
						drainAndRelease(ctx, store, loopReg, model.ScopeSession, sink, m.Path, clk)
						summary.FailFastStopped = true
						stopped = true
						break
					}
				}
			}
			if stopped {
				break
			}
		}

		if !stopped {
			drainAndRelease(ctx, store, loopReg, model.ScopeClass, sink, m.Path, clk)
			drainAndRelease(ctx, store, loopReg, model.ScopeModule, sink, m.Path, clk)
		}
		sink.FileCompleted(clk.Now(), m.Path)
		if stopped {
			break outer
		}
	}

	if !stopped {
		drainAndRelease(ctx, store, loopReg, model.ScopePackage, sink, "", clk)
		drainAndRelease(ctx, store, loopReg, model.ScopeSession, sink, "", clk)
	}

	summary.WallTime = clk.Since(start)
	sink.SuiteCompleted(clk.Now(), summary)

	if lastFailedPath != "" {
		// A write failure here must not turn a completed test run into a
		// reported failure; the caller can inspect the file directly if
		// persistence matters to it.
		_ = lastfailed.Write(lastFailedPath, failed)
	}

	return summary
}

// runGroup dispatches one class's (or an unclassed module's) tests,
// reusing batch.Partition for the gatherable/sequential/sync split so the
// gatherability rule lives in exactly one place. batch.Partition discards
// positional information, so runGroup rebuilds each test's original
// index from a pointer lookup and sorts the produced results back into
// that order before returning, honouring spec.md §5's "results remain in
// discovery order" even though the gathered group completes out of
// order relative to the sequential and sync ones.
//
// When cfg.FailFast is set, a failure stops runGroup from starting any
// further sequential or sync test in this same group: those two buckets
// run one test at a time, so there is no reason to let sibling tests in
// an already-failing class keep executing just because the group hasn't
// returned yet. A gathered batch is different: every test in it is
// already resolved and scheduled onto one shared run before any of them
// completes (spec.md §4.G's collect-all, asyncio.gather semantics), so
// a failure there is only observable after the whole batch finishes and
// cannot stop siblings already in flight. Tests skipped by fail-fast are
// simply never run and never appear in the returned slice; the caller's
// own fail-fast check (on whatever this function does return) still
// triggers the cross-scope teardown drain.
func runGroup(ctx context.Context, tests []*model.TestCase, m *model.Module, store *cache.Store, loopReg *loop.Registry, rt hostrt.Runtime, clk clock.Clock, cfg enginecfg.Config) []report.Result {
	origIdx := make(map[*model.TestCase]int, len(tests))
	for i, t := range tests {
		origIdx[t] = i
	}

	gatherTests, seqTests, syncTests := batch.Partition(tests, m)

	type indexed struct {
		idx int
		res report.Result
	}
	var produced []indexed
	failed := false

	if len(gatherTests) > 0 {
		gathered := batch.RunGathered(ctx, gatherTests, m, store, loopReg, rt, clk, cfg)
		for j, t := range gatherTests {
			produced = append(produced, indexed{origIdx[t], gathered[j]})
			if gathered[j].Status == report.Failed {
				failed = true
			}
		}
	}

	runSequentially := func(list []*model.TestCase) {
		for _, t := range list {
			if cfg.FailFast && failed {
				return
			}
			r := executor.Execute(ctx, t, m, store, loopReg, rt, clk, cfg)
			produced = append(produced, indexed{origIdx[t], r})
			if r.Status == report.Failed {
				failed = true
			}
		}
	}
	runSequentially(seqTests)
	runSequentially(syncTests)

	sort.Slice(produced, func(i, j int) bool { return produced[i].idx < produced[j].idx })
	results := make([]report.Result, len(produced))
	for i, p := range produced {
		results[i] = p.res
	}
	return results
}

func drainAndRelease(ctx context.Context, store *cache.Store, loopReg *loop.Registry, scope model.Scope, sink report.Sink, path string, clk clock.Clock) {
	// A teardown error is logged as a warning (spec.md §7) and never
	// changes an already-reported result or aborts a sibling teardown.
	for _, err := range store.Drain(ctx, scope) {
		sink.Log(clk.Now(), path, "teardown error: "+err.Error())
	}
	loopReg.Release(scope)
}

func tally(summary *report.Summary, r report.Result) {
	summary.Results = append(summary.Results, r)
	switch r.Status {
	case report.Passed:
		summary.Passed++
	case report.Failed:
		summary.Failed++
	case report.Skipped:
		summary.Skipped++
	}
}
