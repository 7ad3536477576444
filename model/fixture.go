package model

import (
	"strconv"

	"github.com/apexrun/fixrunner/hostrt"
)

// ParamValue is a single entry of a parametrised fixture's param_values
// list, carrying both the value made available to the fixture callable and
// request.param and a stable id used to build cache keys and display names.
type ParamValue struct {
	ID    string
	Value hostrt.Value
}

// Fixture is the declarative record produced by the collector for one
// fixture declaration (spec.md §3).
type Fixture struct {
	// Name is unique within its module.
	Name string

	// Callable is the opaque host-runtime handle implementing the
	// fixture body, dispatched according to Flavour.
	Callable hostrt.Func

	// Parameters is the ordered list of dependency names: other fixture
	// names, or the reserved name "request".
	Parameters []string

	Scope   Scope
	Flavour Flavour

	// Autouse fixtures are requested implicitly by every test inside
	// EnclosingClass (if set) or the whole module (if not).
	Autouse bool

	// EnclosingClass restricts autouse applicability and class-scope
	// cache sharing. Empty means module-level.
	EnclosingClass string

	// ParamValues, if non-empty, makes this a parametrised fixture
	// yielding len(ParamValues) variants, one per index.
	ParamValues []ParamValue
}

// IsParametrised reports whether the fixture yields more than one variant.
func (f *Fixture) IsParametrised() bool { return len(f.ParamValues) > 0 }

// CacheKey returns the key used to memoise this fixture in a cache layer.
// idx is the selected ParamValues index, or -1 for non-parametrised
// fixtures (spec.md §4.A: "fixture_name[idx]" for parametrised ones).
func (f *Fixture) CacheKey(idx int) string {
	return CacheKeyFor(f.Name, idx)
}

// CacheKeyFor builds the cache key for a fixture variant without
// requiring a *Fixture, for use by callers holding only a name and an
// index (e.g. from TestCase.FixtureParamIndices). idx < 0 means
// non-parametrised (the common case, since TestCase.FixtureParamIndex
// defaults to -1), and the key is the bare name (spec.md §4.A: "cache key
// = fixture_name for non-parametrised fixtures").
func CacheKeyFor(name string, idx int) string {
	if idx < 0 {
		return name
	}
	return name + "[" + strconv.Itoa(idx) + "]"
}
