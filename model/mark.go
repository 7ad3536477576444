package model

// Mark is a named annotation attached to a TestCase, e.g.
// @mark.asyncio(loop_scope="module"), @mark.usefixtures("db"), @mark.skip("wip").
type Mark struct {
	Name   string
	Args   []string
	Kwargs map[string]string
}

// IsNamed reports whether the mark has the given name.
func (m Mark) IsNamed(name string) bool { return m.Name == name }

// Kwarg returns the value of a keyword argument and whether it was present.
func (m Mark) Kwarg(key string) (string, bool) {
	v, ok := m.Kwargs[key]
	return v, ok
}

// AsyncioLoopScope extracts the loop_scope keyword argument from an
// "asyncio" mark, if present. ok is false both when the mark isn't present
// and when it is present without a loop_scope argument (the two cases the
// engine must distinguish: the latter means "infer", the former means "this
// isn't even an async test annotation").
func (m Mark) AsyncioLoopScope() (Scope, bool) {
	if !m.IsNamed("asyncio") {
		return ScopeFunction, false
	}
	raw, ok := m.Kwarg("loop_scope")
	if !ok {
		return ScopeFunction, false
	}
	scope, ok := ParseScope(raw)
	if !ok {
		return ScopeFunction, false
	}
	return scope, true
}

// HasAsyncioMark reports whether any mark named "asyncio" is present,
// regardless of whether it carries a loop_scope argument.
func HasAsyncioMark(marks []Mark) bool {
	for _, m := range marks {
		if m.IsNamed("asyncio") {
			return true
		}
	}
	return false
}

// UsefixturesNames collects the fixture names listed across every
// usefixtures mark on a test, in declaration order.
func UsefixturesNames(marks []Mark) []string {
	var names []string
	for _, m := range marks {
		if m.IsNamed("usefixtures") {
			names = append(names, m.Args...)
		}
	}
	return names
}
