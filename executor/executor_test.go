package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"code.cloudfoundry.org/clock/fakeclock"

	"github.com/apexrun/fixrunner/cache"
	"github.com/apexrun/fixrunner/enginecfg"
	"github.com/apexrun/fixrunner/hostrt"
	"github.com/apexrun/fixrunner/loop"
	"github.com/apexrun/fixrunner/model"
	"github.com/apexrun/fixrunner/report"
)

func newHarness() (*cache.Store, *loop.Registry, *fakeclock.FakeClock) {
	clk := fakeclock.NewFakeClock(time.Unix(0, 0))
	return cache.NewStore(), loop.NewRegistry(clk), clk
}

// TestExecuteSimplePass covers spec.md §8 scenario S1.
func TestExecuteSimplePass(t *testing.T) {
	store, loopReg, clk := newHarness()
	m := model.NewModule("m")
	m.Fixtures["x"] = &model.Fixture{Name: "x", Scope: model.ScopeFunction, Callable: func(ctx context.Context, args []hostrt.Value) (hostrt.Value, error) {
		return 7, nil
	}}
	tc := &model.TestCase{
		Name: "test_ok", DisplayName: "test_ok", Path: "tests/test_mod.py",
		Parameters: []string{"x"},
		Callable: func(ctx context.Context, args []hostrt.Value) (hostrt.Value, error) {
			if args[0] != 7 {
				t.Fatalf("test body got x = %v, want 7", args[0])
			}
			return nil, nil
		},
	}
	clk.Increment(10 * time.Millisecond)

	result := Execute(context.Background(), tc, m, store, loopReg, hostrt.NewFake(), clk, enginecfg.Default())
	if result.Status != report.Passed {
		t.Fatalf("Status = %v, want Passed (message: %s)", result.Status, result.Message)
	}
	if result.UniqueID != "tests/test_mod.py::test_ok" {
		t.Fatalf("UniqueID = %q", result.UniqueID)
	}
}

func TestExecuteSkipReasonShortCircuits(t *testing.T) {
	store, loopReg, clk := newHarness()
	m := model.NewModule("m")
	tc := &model.TestCase{
		Name: "test_skip", DisplayName: "test_skip", Path: "t.py",
		SkipReason: "not supported on this platform",
		Callable: func(ctx context.Context, args []hostrt.Value) (hostrt.Value, error) {
			t.Fatalf("test callable invoked despite skip_reason")
			return nil, nil
		},
	}
	result := Execute(context.Background(), tc, m, store, loopReg, hostrt.NewFake(), clk, enginecfg.Default())
	if result.Status != report.Skipped || result.Message != "not supported on this platform" {
		t.Fatalf("result = %+v, want Skipped with the skip reason", result)
	}
}

func TestExecuteSkipSignalFromCallable(t *testing.T) {
	store, loopReg, clk := newHarness()
	m := model.NewModule("m")
	tc := &model.TestCase{
		Name: "test_skip_dynamic", DisplayName: "test_skip_dynamic", Path: "t.py",
		Callable: func(ctx context.Context, args []hostrt.Value) (hostrt.Value, error) {
			return nil, &hostrt.SkipError{Reason: "feature disabled"}
		},
	}
	result := Execute(context.Background(), tc, m, store, loopReg, hostrt.NewFake(), clk, enginecfg.Default())
	if result.Status != report.Skipped || result.Message != "feature disabled" {
		t.Fatalf("result = %+v, want Skipped with feature disabled", result)
	}
}

type assertionErr struct {
	line   string
	locals map[string]hostrt.Value
}

func (e *assertionErr) Error() string                     { return "AssertionError: " + e.line }
func (e *assertionErr) AssertionLine() string              { return e.line }
func (e *assertionErr) Locals() map[string]hostrt.Value { return e.locals }

func TestExecuteFailedWithAssertionEnrichment(t *testing.T) {
	store, loopReg, clk := newHarness()
	m := model.NewModule("m")
	tc := &model.TestCase{
		Name: "test_fail", DisplayName: "test_fail", Path: "t.py",
		Callable: func(ctx context.Context, args []hostrt.Value) (hostrt.Value, error) {
			return nil, &assertionErr{
				line:   "assert got == want",
				locals: map[string]hostrt.Value{"got": 1, "want": 2},
			}
		},
	}
	result := Execute(context.Background(), tc, m, store, loopReg, hostrt.NewFake(), clk, enginecfg.Default())
	if result.Status != report.Failed {
		t.Fatalf("Status = %v, want Failed", result.Status)
	}
	if !contains(result.Message, "__ASSERTION_VALUES__") || !contains(result.Message, "Expected: 2") || !contains(result.Message, "Received: 1") {
		t.Fatalf("Message = %q, want it to include the expected/received sentinel", result.Message)
	}
}

// TestExecuteDrainsFunctionScopeOnResolutionFailure covers spec.md §4.F
// step 7: when a fixture resolved earlier in the Roots list succeeds and
// a later one fails, the earlier fixture's function-scope teardown must
// still run and its cache entry still get drained before Execute returns
// the failed result, so a subsequent test sharing the same Store never
// sees a stale, never-torn-down function-scope entry.
func TestExecuteDrainsFunctionScopeOnResolutionFailure(t *testing.T) {
	store, loopReg, clk := newHarness()
	m := model.NewModule("m")
	tornDown := false
	m.Fixtures["good"] = &model.Fixture{
		Name: "good", Scope: model.ScopeFunction, Flavour: model.Generator,
		Callable: func(ctx context.Context, args []hostrt.Value) (hostrt.Value, error) {
			calls := 0
			return hostrt.IteratorFunc(func(ctx context.Context) (hostrt.Value, error) {
				calls++
				if calls == 1 {
					return "ready", nil
				}
				tornDown = true
				return nil, nil
			}), nil
		},
	}
	m.Fixtures["bad"] = &model.Fixture{
		Name: "bad", Scope: model.ScopeFunction,
		Callable: func(ctx context.Context, args []hostrt.Value) (hostrt.Value, error) {
			return nil, errors.New("fixture setup failed")
		},
	}
	tc := &model.TestCase{
		Name: "test_fail_after_good_fixture", DisplayName: "test_fail_after_good_fixture", Path: "t.py",
		Parameters: []string{"good", "bad"},
		Callable:   func(ctx context.Context, args []hostrt.Value) (hostrt.Value, error) { return nil, nil },
	}

	result := Execute(context.Background(), tc, m, store, loopReg, hostrt.NewFake(), clk, enginecfg.Default())
	if result.Status != report.Failed {
		t.Fatalf("Status = %v, want Failed (fixture setup failure)", result.Status)
	}
	if !tornDown {
		t.Fatalf("good's generator teardown did not run despite the later resolution failure")
	}
	if store.Len(model.ScopeFunction) != 0 {
		t.Fatalf("store.Len(ScopeFunction) = %d, want 0 (drained on the failure path)", store.Len(model.ScopeFunction))
	}
}

func TestExecuteScopeMismatchSurfacesAsFailed(t *testing.T) {
	store, loopReg, clk := newHarness()
	m := model.NewModule("m")
	m.Fixtures["small"] = &model.Fixture{Name: "small", Scope: model.ScopeFunction}
	m.Fixtures["big"] = &model.Fixture{Name: "big", Scope: model.ScopeSession, Parameters: []string{"small"}}
	tc := &model.TestCase{
		Name: "test_big", DisplayName: "test_big", Path: "t.py", Parameters: []string{"big"},
		Callable: func(ctx context.Context, args []hostrt.Value) (hostrt.Value, error) { return nil, nil },
	}
	result := Execute(context.Background(), tc, m, store, loopReg, hostrt.NewFake(), clk, enginecfg.Default())
	if result.Status != report.Failed || !contains(result.Message, "ScopeMismatch") {
		t.Fatalf("result = %+v, want Failed carrying ScopeMismatch", result)
	}
}

// TestExecuteCapturesOutputWhenEnabled covers spec.md §4.F step 4 and §6's
// capture_output flag: output capture only runs when cfg.CaptureOutput is
// set, and only when rt implements hostrt.OutputCapture.
func TestExecuteCapturesOutputWhenEnabled(t *testing.T) {
	store, loopReg, clk := newHarness()
	m := model.NewModule("m")
	tc := &model.TestCase{
		Name: "test_ok", DisplayName: "test_ok", Path: "t.py",
		Callable: func(ctx context.Context, args []hostrt.Value) (hostrt.Value, error) { return nil, nil },
	}
	rt := hostrt.NewFakeCapturingRuntime("hello\n", "warn\n")

	result := Execute(context.Background(), tc, m, store, loopReg, rt, clk, enginecfg.Config{CaptureOutput: true})
	if !rt.Started {
		t.Fatalf("StartCapture was never called despite cfg.CaptureOutput")
	}
	if !result.HasStdout || result.Stdout != "hello\n" {
		t.Fatalf("result.Stdout = %q (HasStdout=%v), want \"hello\\n\"", result.Stdout, result.HasStdout)
	}
	if !result.HasStderr || result.Stderr != "warn\n" {
		t.Fatalf("result.Stderr = %q (HasStderr=%v), want \"warn\\n\"", result.Stderr, result.HasStderr)
	}
}

func TestExecuteSkipsCaptureWhenDisabled(t *testing.T) {
	store, loopReg, clk := newHarness()
	m := model.NewModule("m")
	tc := &model.TestCase{
		Name: "test_ok", DisplayName: "test_ok", Path: "t.py",
		Callable: func(ctx context.Context, args []hostrt.Value) (hostrt.Value, error) { return nil, nil },
	}
	rt := hostrt.NewFakeCapturingRuntime("hello\n", "warn\n")

	result := Execute(context.Background(), tc, m, store, loopReg, rt, clk, enginecfg.Default())
	if rt.Started {
		t.Fatalf("StartCapture was called despite cfg.CaptureOutput being false")
	}
	if result.HasStdout || result.HasStderr {
		t.Fatalf("result = %+v, want no captured output", result)
	}
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
