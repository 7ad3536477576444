// Package resolver implements the fixture resolver (spec.md §4.E): a
// stateful object created per test that resolves a fixture or pseudo-
// fixture name to a value, driving the scope cache (package cache), the
// loop registry (package loop), and the host runtime (package hostrt)
// together.
//
// The algorithm is grounded on original_source/src/execution.rs's
// FixtureResolver: the cache-probe order, the flavour dispatch, the
// request pseudo-fixture, and the current-param-value stack used to
// recurse correctly are all carried over from there. The isolation of
// each host-runtime call onto its own goroutine is grounded on
// internal/planner/fixt.go's statefulFixture.RunSetUp/RunTearDown, which
// never call fixture code directly but always through safe.go's
// safeCall, re-expressed here as the shared package safecall.
package resolver

import (
	"context"

	"github.com/apexrun/fixrunner/cache"
	"github.com/apexrun/fixrunner/hostrt"
	"github.com/apexrun/fixrunner/loop"
	"github.com/apexrun/fixrunner/model"
	"github.com/apexrun/fixrunner/rterrors"
	"github.com/apexrun/fixrunner/safecall"
)

// frame is one entry of the resolver's recursion stack: it doubles as the
// cycle guard (spec.md §4.E step 4) and as the source of the current
// fixture's parametrisation value for a nested "request" resolution.
type frame struct {
	name     string
	param    hostrt.Value
	hasParam bool
}

// Resolver resolves fixture and pseudo-fixture names for a single test.
// It is not safe for concurrent use; exactly one goroutine should call
// Resolve for a given Resolver at a time (the host runtime itself
// serialises test code, so the engine never needs to either).
type Resolver struct {
	cache     *cache.Store
	module    *model.Module
	test      *model.TestCase
	loopReg   *loop.Registry
	loopScope model.Scope
	runtime   hostrt.Runtime

	stack []frame
}

// New creates a Resolver for test within module, using loopScope (from
// planner.InferLoopScope) as the loop scope any async fixture in its
// closure should schedule onto.
func New(store *cache.Store, module *model.Module, test *model.TestCase, loopReg *loop.Registry, loopScope model.Scope, rt hostrt.Runtime) *Resolver {
	return &Resolver{
		cache:     store,
		module:    module,
		test:      test,
		loopReg:   loopReg,
		loopScope: loopScope,
		runtime:   rt,
	}
}

// Resolve resolves name to a value (spec.md §4.E).
func (r *Resolver) Resolve(ctx context.Context, name string) (hostrt.Value, error) {
	if val, ok := r.test.ParameterValues[name]; ok {
		if r.test.IsIndirectParam(name) {
			s, ok := val.(string)
			if !ok {
				return nil, rterrors.Errorf("indirect parameter %q does not carry a fixture name", name)
			}
			return r.Resolve(ctx, s)
		}
		return val, nil
	}

	if name == "request" {
		return r.currentRequest(), nil
	}

	f, ok := r.module.Fixture(name)
	if !ok {
		return nil, rterrors.Errorf("unknown fixture %q", name)
	}

	// The cache key must be built from the effective param index
	// (defaulted to 0 for a parametrised fixture requested without an
	// explicit index), not the raw, possibly -1, FixtureParamIndex: two
	// tests that end up constructing the same param-0 variant must land
	// on the same key, or invariant 2 ("constructed at most once per
	// scope") breaks for the common case of a parametrised fixture used
	// by both an indirect-parametrised test and a plain one.
	idx := r.test.FixtureParamIndex(name)
	paramIdx := idx
	if paramIdx < 0 && f.IsParametrised() {
		paramIdx = 0
	}
	key := model.CacheKeyFor(name, paramIdx)
	if v, ok := r.cache.Probe(key); ok {
		return v, nil
	}

	for _, fr := range r.stack {
		if fr.name == name {
			return nil, rterrors.Errorf("dependency cycle detected at fixture %q", name)
		}
	}

	var paramVal hostrt.Value
	hasParam := false
	if f.IsParametrised() && paramIdx < len(f.ParamValues) {
		paramVal = f.ParamValues[paramIdx].Value
		hasParam = true
	}

	r.stack = append(r.stack, frame{name: name, param: paramVal, hasParam: hasParam})
	defer func() { r.stack = r.stack[:len(r.stack)-1] }()

	args := make([]hostrt.Value, len(f.Parameters))
	for i, dep := range f.Parameters {
		v, err := r.Resolve(ctx, dep)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}

	val, err := r.invoke(ctx, f, key, args)
	if err != nil {
		return nil, err
	}

	r.cache.Store(f.Scope, key, val)
	return val, nil
}

// invoke calls f's callable and dispatches on its flavour (spec.md §4.E
// step 5), enqueuing a teardown handle for generator/async-generator
// flavours (invariant 3).
func (r *Resolver) invoke(ctx context.Context, f *model.Fixture, key string, args []hostrt.Value) (hostrt.Value, error) {
	switch f.Flavour {
	case model.Plain:
		return safecall.Call(func() (hostrt.Value, error) { return f.Callable(ctx, args) })

	case model.Generator:
		iterVal, err := safecall.Call(func() (hostrt.Value, error) { return f.Callable(ctx, args) })
		if err != nil {
			return nil, err
		}
		iter, ok := iterVal.(hostrt.Iterator)
		if !ok {
			return nil, rterrors.Errorf("fixture %q: generator flavour callable did not return an Iterator", f.Name)
		}
		val, err := safecall.Call(func() (hostrt.Value, error) { return iter.Advance(ctx) })
		if err != nil {
			return nil, err
		}
		r.cache.AddTeardown(f.Scope, key, func(ctx context.Context) error {
			_, err := safecall.Call(func() (hostrt.Value, error) { return iter.Advance(ctx) })
			return err
		})
		return val, nil

	case model.AsyncPlain:
		coroVal, err := safecall.Call(func() (hostrt.Value, error) { return f.Callable(ctx, args) })
		if err != nil {
			return nil, err
		}
		coro, ok := coroVal.(hostrt.Coroutine)
		if !ok {
			return nil, rterrors.Errorf("fixture %q: async-plain flavour callable did not return a Coroutine", f.Name)
		}
		sched := r.loopReg.Acquire(ctx, r.loopScope)
		return sched.Run(coro)

	case model.AsyncGenerator:
		aiVal, err := safecall.Call(func() (hostrt.Value, error) { return f.Callable(ctx, args) })
		if err != nil {
			return nil, err
		}
		ai, ok := aiVal.(hostrt.AsyncIterator)
		if !ok {
			return nil, rterrors.Errorf("fixture %q: async-generator flavour callable did not return an AsyncIterator", f.Name)
		}
		sched := r.loopReg.Acquire(ctx, r.loopScope)
		val, err := sched.Run(ai.Advance())
		if err != nil {
			return nil, err
		}
		r.cache.AddTeardown(f.Scope, key, func(ctx context.Context) error {
			_, err := sched.Run(ai.Advance())
			return err
		})
		return val, nil

	default:
		return nil, rterrors.Errorf("fixture %q: unknown flavour", f.Name)
	}
}

// currentRequest builds the request pseudo-fixture's value from the top
// of the recursion stack, or an empty Request if resolve("request") was
// called outside any fixture construction (e.g. a test itself declares a
// "request" parameter).
func (r *Resolver) currentRequest() *Request {
	if len(r.stack) == 0 {
		return &Request{}
	}
	top := r.stack[len(r.stack)-1]
	return &Request{Param: top.param, HasParam: top.hasParam}
}
