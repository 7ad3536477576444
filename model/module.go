package model

import "golang.org/x/exp/slices"

// Module is the declarative record produced by the collector for one
// source file (spec.md §3): its fixture registry and its ordered list of
// test cases.
type Module struct {
	// Path is the module's path relative to the collection root, used
	// both as the package-boundary key (parent directory) and as the
	// prefix of every test's stable id.
	Path string

	Fixtures map[string]*Fixture
	Tests    []*TestCase
}

// NewModule creates an empty Module for the given path.
func NewModule(path string) *Module {
	return &Module{Path: path, Fixtures: make(map[string]*Fixture)}
}

// Fixture looks up a fixture by name, reporting whether it was found.
func (m *Module) Fixture(name string) (*Fixture, bool) {
	f, ok := m.Fixtures[name]
	return f, ok
}

// AutouseFixtures returns, in a stable order, every autouse fixture that
// applies to a test with the given enclosing class (invariant 4: a
// class-scoped autouse fixture applies only within its class; a
// module-level one, EnclosingClass == "", applies to every test in the
// module).
func (m *Module) AutouseFixtures(enclosingClass string) []*Fixture {
	var out []*Fixture
	for _, name := range m.sortedFixtureNames() {
		f := m.Fixtures[name]
		if !f.Autouse {
			continue
		}
		if f.EnclosingClass == "" || f.EnclosingClass == enclosingClass {
			out = append(out, f)
		}
	}
	return out
}

// sortedFixtureNames returns fixture names in a deterministic order so that
// autouse application order doesn't depend on Go's randomised map
// iteration (Testable Property 4 requires a test to see the same autouse
// set run in the same order across runs).
func (m *Module) sortedFixtureNames() []string {
	names := make([]string, 0, len(m.Fixtures))
	for name := range m.Fixtures {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// ClassGroup is one group of the module's test cases sharing an
// EnclosingClass, as produced by GroupByClass in discovery order (spec.md §4.H: "groups
// tests by enclosing_class preserving discovery order"). A zero-value
// group key "" holds unclassed tests and may be interleaved with classed
// groups in discovery order.
type ClassGroup struct {
	EnclosingClass string
	Tests          []*TestCase
}

// GroupByClass groups m.Tests into contiguous runs sharing the same
// non-empty EnclosingClass, matching discovery order: a module with tests
// [free1, C.t1, C.t2, free2] yields three groups ([free1], [C.t1, C.t2],
// [free2]), not two, because spec.md §4.H requires draining class
// fixtures "between any two consecutive unclassed tests" — an unclassed
// test never shares a group with another unclassed test, so the
// orchestrator's "drain between groups" rule alone reproduces that
// requirement without a special case.
func (m *Module) GroupByClass() []ClassGroup {
	var groups []ClassGroup
	for _, t := range m.Tests {
		n := len(groups)
		if n > 0 && t.EnclosingClass != "" && groups[n-1].EnclosingClass == t.EnclosingClass {
			groups[n-1].Tests = append(groups[n-1].Tests, t)
			continue
		}
		groups = append(groups, ClassGroup{EnclosingClass: t.EnclosingClass, Tests: []*TestCase{t}})
	}
	return groups
}
