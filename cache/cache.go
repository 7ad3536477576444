// Package cache implements the scope cache (spec.md §4.A): five layered
// associative maps, one per model.Scope, each with a parallel LIFO list of
// teardown handles for generator and async-generator fixtures.
//
// The five-layer shape is grounded on original_source/src/execution.rs's
// FixtureContext (one IndexMap per scope); the green/red idea of "a fixture
// is either memoised or not yet" and the LIFO teardown-on-drain discipline
// are the same invariants internal/planner/fixt.go's FixtureStack enforces
// for a single traversal path, generalised here to five independent layers
// that are drained on their own schedule rather than popped in lockstep.
package cache

import (
	"context"

	"github.com/apexrun/fixrunner/hostrt"
	"github.com/apexrun/fixrunner/model"
)

// Teardown is a deferred cleanup action enqueued when a generator or
// async-generator fixture is constructed. It is invoked at most once, when
// its owning layer is drained.
type Teardown func(ctx context.Context) error

type teardownEntry struct {
	cacheKey string
	run      Teardown
}

// layer is one scope's memoisation table plus its teardown stack.
type layer struct {
	values    map[string]hostrt.Value
	teardowns []teardownEntry
}

func newLayer() *layer {
	return &layer{values: make(map[string]hostrt.Value)}
}

// probeOrder is function → class → module → package → session, matching
// spec.md §4.A's lookup order: the narrowest-lived cache is checked first
// since a fixture is always memoised at its own declared scope and that is
// never wider than the scope being probed from.
var probeOrder = [...]model.Scope{
	model.ScopeFunction,
	model.ScopeClass,
	model.ScopeModule,
	model.ScopePackage,
	model.ScopeSession,
}

// Store holds the five scope layers for one test run.
type Store struct {
	layers map[model.Scope]*layer
}

// NewStore creates an empty five-layer cache.
func NewStore() *Store {
	s := &Store{layers: make(map[model.Scope]*layer, len(probeOrder))}
	for _, sc := range probeOrder {
		s.layers[sc] = newLayer()
	}
	return s
}

// Probe looks up key across every layer in narrowest-to-widest order and
// returns the first hit (spec.md §4.A).
func (s *Store) Probe(key string) (hostrt.Value, bool) {
	for _, sc := range probeOrder {
		if v, ok := s.layers[sc].values[key]; ok {
			return v, true
		}
	}
	return nil, false
}

// Store memoises value under key in the layer for scope. Invariant 2
// ("each (fixture_name, param_index) pair is constructed at most once per
// its scope's active lifetime") is the resolver's responsibility to
// uphold by probing before constructing; Store itself just records.
func (s *Store) Store(scope model.Scope, key string, value hostrt.Value) {
	s.layers[scope].values[key] = value
}

// AddTeardown enqueues a teardown handle on scope's layer. Teardowns run
// in LIFO order with respect to the order they were enqueued, within the
// same layer (invariant 3).
func (s *Store) AddTeardown(scope model.Scope, key string, fn Teardown) {
	l := s.layers[scope]
	l.teardowns = append(l.teardowns, teardownEntry{cacheKey: key, run: fn})
}

// Drain clears scope's layer and runs its teardowns in reverse insertion
// order. A teardown error does not abort the remaining teardowns (spec.md
// §4.A); every error encountered is returned so the caller can log it as a
// TeardownError (spec.md §7) without failing the run.
func (s *Store) Drain(ctx context.Context, scope model.Scope) []error {
	l := s.layers[scope]
	var errs []error
	for i := len(l.teardowns) - 1; i >= 0; i-- {
		if err := l.teardowns[i].run(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	l.teardowns = nil
	l.values = make(map[string]hostrt.Value)
	return errs
}

// Len reports the number of memoised entries in scope's layer, for tests
// asserting at-most-one construction (Testable Property 2).
func (s *Store) Len(scope model.Scope) int {
	return len(s.layers[scope].values)
}

// WithFreshFunctionScope returns a Store sharing every layer with s except
// ScopeFunction, which is a brand-new, empty layer. Function scope is
// fresh per test invocation (spec.md §3); a gathered batch (batch.
// RunGathered) resolves several tests against what would otherwise be one
// shared Store, and without this a second test's probe would get the
// first test's memoised function-scope fixture instead of constructing
// its own. Wider scopes (class/module/package/session) are intentionally
// still shared, since those are scoped across the whole batch or run.
func (s *Store) WithFreshFunctionScope() *Store {
	sub := &Store{layers: make(map[model.Scope]*layer, len(probeOrder))}
	for _, sc := range probeOrder {
		if sc == model.ScopeFunction {
			sub.layers[sc] = newLayer()
			continue
		}
		sub.layers[sc] = s.layers[sc]
	}
	return sub
}
