package planner

import (
	"github.com/apexrun/fixrunner/model"
)

// InferLoopScope computes test's effective loop scope and whether it
// qualifies for batch gathering (spec.md §4.D), walking the same closure
// Plan already validated. It is grounded on
// original_source/src/execution.rs's
// detect_required_loop_scope_from_fixtures (widest-scope walk) and
// can_async_test_be_gathered (the gatherability rule applied below).
func InferLoopScope(test *model.TestCase, module *model.Module, plan *Plan) (scope model.Scope, gatherable bool, err error) {
	widest := model.ScopeFunction
	for _, name := range plan.Closure {
		f, ok := module.Fixture(name)
		if !ok {
			continue
		}
		if f.Flavour.IsAsync() && f.Scope.Wider(widest) {
			widest = f.Scope
		}
	}

	explicit, hasExplicit := test.AsyncioLoopScope()
	if hasExplicit {
		if !explicit.AtLeastAsWideAs(widest) {
			return model.ScopeFunction, false, newPlanningError(
				"loop scope %q is narrower than the scope %q required by async fixtures in its closure",
				explicit, widest)
		}
		return explicit, isGatherableScope(explicit), nil
	}

	return widest, isGatherableScope(widest), nil
}

// isGatherableScope reports whether scope qualifies a test for batch
// gathering: function disqualifies because the test explicitly requests
// isolation (or defaults to it), and session/package disqualify because
// the scheduler would need to outlive the batch that gathers it
// (spec.md §4.D, §4.G).
func isGatherableScope(scope model.Scope) bool {
	return scope == model.ScopeClass || scope == model.ScopeModule
}
