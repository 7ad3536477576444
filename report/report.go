// Package report defines the event stream and result record exposed to
// the reporter sink (spec.md §6), generalizing
// internal/planner/output.go's OutputStream — a per-run interface fed
// streamed per-entity events — to the coarser, per-test event set this
// engine reports: the collector upstream of this engine, not the engine
// itself, owns fine-grained log/error streaming during a test body.
package report

import "time"

// Status is a test's terminal outcome.
type Status int

const (
	Passed Status = iota
	Failed
	Skipped
)

func (s Status) String() string {
	switch s {
	case Passed:
		return "passed"
	case Failed:
		return "failed"
	case Skipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Result is the per-test record (spec.md §6): "{ unique_id, status,
// duration_seconds, stdout?, stderr?, message?, marks[] }".
type Result struct {
	UniqueID        string
	Status          Status
	DurationSeconds float64

	Stdout    string
	HasStdout bool
	Stderr    string
	HasStderr bool
	Message   string
	HasMessage bool

	Marks []string

	// Aggregate reports that Stdout/Stderr (if present) were captured
	// across an entire gathered batch rather than this test alone
	// (spec.md §4.G: "assign the same buffer to every test in the batch
	// and note this in the result payload").
	Aggregate bool
}

// CollectionError is surfaced verbatim from the collector (spec.md §6,
// §7).
type CollectionError struct {
	Path    string
	Message string
}

// Summary is the run-end report (spec.md §4.H): totals, aggregate wall
// time, ordered per-test results, and any collection errors.
type Summary struct {
	Passed, Failed, Skipped, Errors int
	WallTime                        time.Duration
	Results                         []Result
	CollectionErrors                []CollectionError
	// FailFastStopped is true if the run ended early because fail_fast
	// was enabled and a test failed (spec.md §4.H).
	FailFastStopped bool
}

// Sink receives the structured event stream spec.md §6 names:
// SuiteStarted, FileStarted, TestCompleted, FileCompleted,
// SuiteCompleted, CollectionError. Every event carries a wall-clock
// timestamp.
//
// Log reports an out-of-band diagnostic that is not itself a test
// result, such as a TeardownError (spec.md §7: "logged as a warning on
// the error stream", never failing the run) — the per-entity equivalent
// of the teacher's own entityOutputStream.Log/Error
// (internal/planner/output.go).
type Sink interface {
	SuiteStarted(at time.Time)
	FileStarted(at time.Time, path string)
	TestCompleted(at time.Time, result Result)
	FileCompleted(at time.Time, path string)
	SuiteCompleted(at time.Time, summary Summary)
	CollectionError(at time.Time, err CollectionError)
	Log(at time.Time, path string, msg string)
}

// NopSink discards every event. It is useful as an embedded default for
// callers that only want to override a subset of Sink's methods, the way
// the teacher's own tests embed a minimal fake rather than implementing
// every OutputStream method from scratch.
type NopSink struct{}

func (NopSink) SuiteStarted(at time.Time)                 {}
func (NopSink) FileStarted(at time.Time, path string)      {}
func (NopSink) TestCompleted(at time.Time, result Result)  {}
func (NopSink) FileCompleted(at time.Time, path string)    {}
func (NopSink) SuiteCompleted(at time.Time, summary Summary) {}
func (NopSink) CollectionError(at time.Time, err CollectionError) {}
func (NopSink) Log(at time.Time, path string, msg string)         {}
