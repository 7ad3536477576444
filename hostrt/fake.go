package hostrt

import (
	"context"
	"strings"
)

// Fake is an in-memory Runtime double used by this module's own tests, the
// same way internal/testing/output.go's OutputReader is test scaffolding
// for the teacher rather than part of its production surface.
type Fake struct{}

// NewFake creates a Fake runtime.
func NewFake() *Fake { return &Fake{} }

// IsCoroutine reports whether v is a Coroutine value.
func (f *Fake) IsCoroutine(v Value) bool {
	_, ok := v.(Coroutine)
	return ok
}

// FormatException renders err as a two-line pseudo-traceback: a
// "Traceback (most recent call last):" header, then err.Error(). Tests that
// need to assert on a failure message can match against this format.
func (f *Fake) FormatException(err error) string {
	if err == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString("Traceback (most recent call last):\n")
	b.WriteString(err.Error())
	return b.String()
}

// IteratorFunc adapts a closure to the Iterator interface, for tests that
// want to write generator fixtures as a small state machine without
// defining a named type.
type IteratorFunc func(ctx context.Context) (Value, error)

func (f IteratorFunc) Advance(ctx context.Context) (Value, error) { return f(ctx) }

// AsyncIteratorFunc adapts a closure to the AsyncIterator interface.
type AsyncIteratorFunc func() Coroutine

func (f AsyncIteratorFunc) Advance() Coroutine { return f() }

// FakeCapturingRuntime is a Fake that also implements OutputCapture,
// returning a fixed stdout/stderr pair once StopCapture is called. It
// exists so this module's own tests can exercise the executor's and
// batch scheduler's output-capture step without a real host runtime.
type FakeCapturingRuntime struct {
	Fake
	Stdout, Stderr string
	Started        bool
}

// NewFakeCapturingRuntime creates a FakeCapturingRuntime that reports
// stdout/stderr on StopCapture.
func NewFakeCapturingRuntime(stdout, stderr string) *FakeCapturingRuntime {
	return &FakeCapturingRuntime{Stdout: stdout, Stderr: stderr}
}

func (f *FakeCapturingRuntime) StartCapture() error {
	f.Started = true
	return nil
}

func (f *FakeCapturingRuntime) StopCapture() (stdout, stderr string, err error) {
	return f.Stdout, f.Stderr, nil
}
