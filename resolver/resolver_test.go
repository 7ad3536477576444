package resolver

import (
	"context"
	"testing"
	"time"

	"code.cloudfoundry.org/clock/fakeclock"

	"github.com/apexrun/fixrunner/cache"
	"github.com/apexrun/fixrunner/hostrt"
	"github.com/apexrun/fixrunner/loop"
	"github.com/apexrun/fixrunner/model"
)

func newFixture(name string, scope model.Scope, flavour model.Flavour, fn hostrt.Func) *model.Fixture {
	return &model.Fixture{Name: name, Scope: scope, Flavour: flavour, Callable: fn}
}

func newHarness() (*cache.Store, *loop.Registry) {
	return cache.NewStore(), loop.NewRegistry(fakeclock.NewFakeClock(time.Unix(0, 0)))
}

// TestSimplePass covers spec.md §8 scenario S1.
func TestSimplePass(t *testing.T) {
	store, loopReg := newHarness()
	m := model.NewModule("m")
	m.Fixtures["x"] = newFixture("x", model.ScopeFunction, model.Plain, func(ctx context.Context, args []hostrt.Value) (hostrt.Value, error) {
		return 7, nil
	})
	tc := &model.TestCase{Name: "test_ok", DisplayName: "test_ok", Parameters: []string{"x"}}

	r := New(store, m, tc, loopReg, model.ScopeFunction, hostrt.NewFake())
	v, err := r.Resolve(context.Background(), "x")
	if err != nil || v != 7 {
		t.Fatalf("Resolve(x) = %v, %v; want 7, nil", v, err)
	}
}

// TestGeneratorTeardownOrder covers spec.md §8 scenario S2: two
// function-scope generator fixtures, b depends on a, with setup appending
// ["a","b"] and teardown appending ["b","a"] (LIFO).
func TestGeneratorTeardownOrder(t *testing.T) {
	store, loopReg := newHarness()
	var log []string

	m := model.NewModule("m")
	m.Fixtures["a"] = newFixture("a", model.ScopeFunction, model.Generator, func(ctx context.Context, args []hostrt.Value) (hostrt.Value, error) {
		first := true
		return hostrt.IteratorFunc(func(ctx context.Context) (hostrt.Value, error) {
			if first {
				first = false
				log = append(log, "a")
				return "a-value", nil
			}
			log = append(log, "a")
			return nil, nil
		}), nil
	})
	m.Fixtures["b"] = newFixture("b", model.ScopeFunction, model.Generator, func(ctx context.Context, args []hostrt.Value) (hostrt.Value, error) {
		first := true
		return hostrt.IteratorFunc(func(ctx context.Context) (hostrt.Value, error) {
			if first {
				first = false
				log = append(log, "b")
				return "b-value", nil
			}
			log = append(log, "b")
			return nil, nil
		}), nil
	})
	m.Fixtures["b"].Parameters = []string{"a"}

	tc := &model.TestCase{Name: "test_order", DisplayName: "test_order", Parameters: []string{"b"}}
	r := New(store, m, tc, loopReg, model.ScopeFunction, hostrt.NewFake())

	if _, err := r.Resolve(context.Background(), "b"); err != nil {
		t.Fatalf("Resolve(b) failed: %v", err)
	}
	wantSetup := []string{"a", "b"}
	if !equalStrings(log, wantSetup) {
		t.Fatalf("after setup, log = %v, want %v", log, wantSetup)
	}

	store.Drain(context.Background(), model.ScopeFunction)
	want := []string{"a", "b", "b", "a"}
	if !equalStrings(log, want) {
		t.Fatalf("after teardown, log = %v, want %v", log, want)
	}
}

// TestParametrisedFixtureConstructedOncePerIndex covers spec.md §8
// scenario S4: a fixture with three param_values, each cache key
// constructed exactly once.
func TestParametrisedFixtureConstructedOncePerIndex(t *testing.T) {
	calls := map[int]int{}
	m := model.NewModule("m")
	m.Fixtures["n"] = &model.Fixture{
		Name:  "n",
		Scope: model.ScopeFunction,
		ParamValues: []model.ParamValue{
			{ID: "0", Value: 1},
			{ID: "1", Value: 2},
			{ID: "2", Value: 3},
		},
		Callable: func(ctx context.Context, args []hostrt.Value) (hostrt.Value, error) {
			return nil, nil
		},
	}
	// Override Callable per call via a closure capturing the resolver's
	// selected index isn't directly observable here, so instead verify
	// at-most-once construction through the cache directly.
	for idx := 0; idx < 3; idx++ {
		store, loopReg := newHarness()
		tc := &model.TestCase{
			Name: "test_n", DisplayName: "test_n", Parameters: []string{"n"},
			FixtureParamIndices: map[string]int{"n": idx},
		}
		m.Fixtures["n"].Callable = func(ctx context.Context, args []hostrt.Value) (hostrt.Value, error) {
			calls[idx]++
			return m.Fixtures["n"].ParamValues[idx].Value, nil
		}
		r := New(store, m, tc, loopReg, model.ScopeFunction, hostrt.NewFake())
		v, err := r.Resolve(context.Background(), "n")
		if err != nil {
			t.Fatalf("Resolve(n) failed: %v", err)
		}
		if v != idx+1 {
			t.Fatalf("Resolve(n)[%d] = %v, want %d", idx, v, idx+1)
		}
		// Second resolve within the same test/cache must not re-invoke.
		if _, err := r.Resolve(context.Background(), "n"); err != nil {
			t.Fatalf("second Resolve(n) failed: %v", err)
		}
	}
	for idx := 0; idx < 3; idx++ {
		if calls[idx] != 1 {
			t.Fatalf("fixture n[%d] invoked %d times, want 1", idx, calls[idx])
		}
	}
}

// TestParametrisedFixtureDefaultIndexSharesKeyWithExplicitZero covers
// spec.md §4.A: a parametrised fixture requested without an explicit
// FixtureParamIndices entry defaults to param index 0 for construction,
// and must land on the same cache key a test that explicitly selects
// index 0 would use, so the two share the one constructed instance
// within their common scope instead of the fixture being built twice.
func TestParametrisedFixtureDefaultIndexSharesKeyWithExplicitZero(t *testing.T) {
	store, loopReg := newHarness()
	m := model.NewModule("m")
	calls := 0
	m.Fixtures["n"] = &model.Fixture{
		Name:  "n",
		Scope: model.ScopeModule,
		ParamValues: []model.ParamValue{
			{ID: "0", Value: 10},
		},
		Callable: func(ctx context.Context, args []hostrt.Value) (hostrt.Value, error) {
			calls++
			return 10, nil
		},
	}

	explicit := &model.TestCase{
		Name: "test_explicit", DisplayName: "test_explicit", Parameters: []string{"n"},
		FixtureParamIndices: map[string]int{"n": 0},
	}
	r1 := New(store, m, explicit, loopReg, model.ScopeFunction, hostrt.NewFake())
	if _, err := r1.Resolve(context.Background(), "n"); err != nil {
		t.Fatalf("Resolve(n) for explicit index 0 failed: %v", err)
	}

	implicit := &model.TestCase{
		Name: "test_implicit", DisplayName: "test_implicit", Parameters: []string{"n"},
	}
	r2 := New(store, m, implicit, loopReg, model.ScopeFunction, hostrt.NewFake())
	if _, err := r2.Resolve(context.Background(), "n"); err != nil {
		t.Fatalf("Resolve(n) for implicit (no param index) failed: %v", err)
	}

	if calls != 1 {
		t.Fatalf("fixture n invoked %d times, want 1 (both tests should share the module-scope cache hit)", calls)
	}
}

func TestCycleDetectedAtResolveTime(t *testing.T) {
	store, loopReg := newHarness()
	m := model.NewModule("m")
	m.Fixtures["a"] = newFixture("a", model.ScopeFunction, model.Plain, func(ctx context.Context, args []hostrt.Value) (hostrt.Value, error) {
		return nil, nil
	})
	m.Fixtures["a"].Parameters = []string{"b"}
	m.Fixtures["b"] = newFixture("b", model.ScopeFunction, model.Plain, func(ctx context.Context, args []hostrt.Value) (hostrt.Value, error) {
		return nil, nil
	})
	m.Fixtures["b"].Parameters = []string{"a"}

	tc := &model.TestCase{Name: "test_cycle", DisplayName: "test_cycle", Parameters: []string{"a"}}
	r := New(store, m, tc, loopReg, model.ScopeFunction, hostrt.NewFake())
	if _, err := r.Resolve(context.Background(), "a"); err == nil {
		t.Fatalf("Resolve succeeded, want cycle error")
	}
}

func TestRequestExposesCurrentFixtureParam(t *testing.T) {
	store, loopReg := newHarness()
	var seenParam hostrt.Value
	var seenHasParam bool

	m := model.NewModule("m")
	m.Fixtures["n"] = &model.Fixture{
		Name:        "n",
		Scope:       model.ScopeFunction,
		Parameters:  []string{"request"},
		ParamValues: []model.ParamValue{{ID: "0", Value: "x"}},
		Callable: func(ctx context.Context, args []hostrt.Value) (hostrt.Value, error) {
			req := args[0].(*Request)
			seenParam = req.Param
			seenHasParam = req.HasParam
			return req.Param, nil
		},
	}

	tc := &model.TestCase{Name: "test_req", DisplayName: "test_req", Parameters: []string{"n"}}
	r := New(store, m, tc, loopReg, model.ScopeFunction, hostrt.NewFake())
	if _, err := r.Resolve(context.Background(), "n"); err != nil {
		t.Fatalf("Resolve(n) failed: %v", err)
	}
	if !seenHasParam || seenParam != "x" {
		t.Fatalf("request.Param = %v, HasParam = %v; want x, true", seenParam, seenHasParam)
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
