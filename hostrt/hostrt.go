// Package hostrt defines the narrow capability interface the engine uses to
// drive a foreign, dynamically-typed host language runtime. The engine
// never assumes anything about the host language beyond these operations:
// call a callable with ordered arguments, advance an iterator, schedule a
// coroutine and await it, classify a value as a coroutine, and format an
// exception. Everything else about the host language (object model,
// reference counting, GIL) is the concern of whatever implements Runtime.
package hostrt

import "context"

// Value is an opaque host-language value flowing through the engine. The
// engine never inspects it except to pass it back into the host runtime.
type Value = interface{}

// Func is the opaque host-runtime callable backing a fixture or test body.
// The shape of the returned Value is determined by the owning fixture's
// Flavour: a plain value, an Iterator, a Coroutine, or an AsyncIterator.
type Func func(ctx context.Context, args []Value) (Value, error)

// Iterator is returned by a generator-flavoured fixture. Advance is called
// exactly twice: once to obtain the yielded setup value, and once more at
// teardown to run the fixture's cleanup code past the yield point. The
// value returned by the second call is discarded.
type Iterator interface {
	Advance(ctx context.Context) (Value, error)
}

// Coroutine is returned by an async-plain fixture or an async test body. It
// must be driven to completion by a scheduler (package loop) rather than
// called directly, mirroring a cooperative scheduler's run_until_complete.
type Coroutine func(ctx context.Context) (Value, error)

// AsyncIterator is returned by an async-generator-flavoured fixture. Each
// call to Advance returns a Coroutine that must be scheduled; Advance is
// called exactly twice, mirroring Iterator.
type AsyncIterator interface {
	Advance() Coroutine
}

// Runtime is the narrow capability interface the engine uses to drive the
// host language runtime, per the design note in spec.md §9: a sealed set of
// operations against an opaque handle. Calling a callable, advancing an
// iterator, and scheduling a coroutine are all modeled as plain Go function
// calls on the Func/Iterator/Coroutine values above; Runtime supplies only
// the two operations that need the host runtime's own introspection.
type Runtime interface {
	// IsCoroutine reports whether a value is a suspended host-language
	// coroutine. Component F uses this to decide whether a test
	// callable's return value must be scheduled and awaited.
	IsCoroutine(v Value) bool

	// FormatException renders a host-runtime error the way the host
	// language would print a traceback, for inclusion in a failed
	// Result's message.
	FormatException(err error) string
}

// AssertionLocals is implemented by an error a test callable returns when
// it wants the executor to attempt assertion introspection (spec.md §4.F
// step 6). A Runtime that can capture the failing frame's local variables
// wraps its assertion error in a type implementing this; an error that
// doesn't implement it simply gets no "Expected/Received" enrichment.
type AssertionLocals interface {
	error
	// AssertionLine is the raw source line of the failing assert
	// statement, e.g. "assert got == want".
	AssertionLine() string
	// Locals are the simple-name local variable bindings visible at the
	// point of failure. Only direct name lookups are supported — unlike
	// a host runtime with a real expression evaluator, this engine does
	// not evaluate attribute access or other compound expressions
	// against Locals (see SPEC_FULL.md's assertion-introspection open
	// question).
	Locals() map[string]Value
}

// OutputCapture is an optional Runtime capability (spec.md §4.F step 4):
// a runtime able to redirect its standard output/error streams into
// per-test buffers implements this so the executor can attach a Result's
// stdout/stderr fields. A Runtime that can't capture output simply
// doesn't implement it, and the executor skips the step.
type OutputCapture interface {
	StartCapture() error
	StopCapture() (stdout, stderr string, err error)
}

// SkipError is the canonical skip signal: a host-runtime exception whose
// qualified name ends in ".Skipped". Runtime implementations that cannot
// produce a typed exception should instead format a message beginning with
// "Skipped: ", which executor's classifySkip also recognises (spec.md
// §4.F step 6).
type SkipError struct {
	Reason string
}

func (e *SkipError) Error() string {
	if e.Reason == "" {
		return "Skipped"
	}
	return "Skipped: " + e.Reason
}
