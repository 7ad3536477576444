package model

import (
	"github.com/apexrun/fixrunner/hostrt"
	"golang.org/x/exp/slices"
)

// TestCase is the declarative record produced by the collector for one test
// (spec.md §3), including one parametrisation case if the test is
// parametrised — the collector is responsible for expanding a parametrised
// test declaration into one TestCase per case (Testable Property 7).
type TestCase struct {
	Name        string
	DisplayName string // includes the parametrisation suffix "[id]"

	Path           string
	EnclosingClass string
	Callable       hostrt.Func

	// Parameters is the ordered list of formal parameter names the
	// callable consumes.
	Parameters []string

	// ParameterValues maps a formal parameter name to its value. If the
	// name also appears in IndirectParams, the value is a string to be
	// reinterpreted as a fixture name rather than used literally.
	ParameterValues map[string]hostrt.Value

	// IndirectParams lists parameter names whose ParameterValues entry is
	// a fixture name reference rather than a literal.
	IndirectParams []string

	// FixtureParamIndices maps a fixture name to the ParamValues index
	// this test case selects, permitting parametrisation of a shared
	// fixture without sharing its cache entry across variants.
	FixtureParamIndices map[string]int

	Marks []Mark

	// SkipReason, if non-empty, short-circuits execution with a skipped
	// result.
	SkipReason string
}

// ID is the stable identifier used in result records and the last-failed
// document: "<relative-path>::<display_name>".
func (t *TestCase) ID() string {
	return t.Path + "::" + t.DisplayName
}

// MarkNames returns the flat list of mark names attached to the test, for
// the result record's marks[] field.
func (t *TestCase) MarkNames() []string {
	names := make([]string, len(t.Marks))
	for i, m := range t.Marks {
		names[i] = m.Name
	}
	return names
}

// UsefixturesNames returns the fixture names named in this test's
// usefixtures marks.
func (t *TestCase) UsefixturesNames() []string {
	return UsefixturesNames(t.Marks)
}

// AsyncioLoopScope returns the explicit loop scope from an asyncio mark, if
// any.
func (t *TestCase) AsyncioLoopScope() (Scope, bool) {
	for _, m := range t.Marks {
		if scope, ok := m.AsyncioLoopScope(); ok {
			return scope, ok
		}
	}
	return ScopeFunction, false
}

// HasBareAsyncioMark reports whether the test carries an asyncio mark with
// no loop_scope argument (as opposed to no asyncio mark at all).
func (t *TestCase) HasBareAsyncioMark() bool {
	for _, m := range t.Marks {
		if m.IsNamed("asyncio") {
			if _, ok := m.Kwarg("loop_scope"); !ok {
				return true
			}
		}
	}
	return false
}

// IsIndirectParam reports whether param's literal value should be
// reinterpreted as a fixture name rather than used as-is.
func (t *TestCase) IsIndirectParam(param string) bool {
	return slices.Contains(t.IndirectParams, param)
}

// FixtureParamIndex returns the selected ParamValues index for a
// parametrised fixture, or -1 if this test case doesn't select one.
func (t *TestCase) FixtureParamIndex(fixtureName string) int {
	if t.FixtureParamIndices == nil {
		return -1
	}
	if idx, ok := t.FixtureParamIndices[fixtureName]; ok {
		return idx
	}
	return -1
}
