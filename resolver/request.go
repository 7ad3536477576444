package resolver

import "github.com/apexrun/fixrunner/hostrt"

// Request is the value returned for the reserved "request" pseudo-fixture
// name (spec.md §3 invariant 6): it exposes the parametrisation value of
// whichever fixture is currently being constructed, and is never cached.
type Request struct {
	// Param is the current fixture's selected param_values entry.
	Param hostrt.Value
	// HasParam is false when the currently-constructing fixture (or the
	// test itself, if resolved outside any fixture) is not parametrised.
	HasParam bool
}
