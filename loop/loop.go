// Package loop implements the loop registry (spec.md §4.B): one optional
// cooperative-scheduler handle per scope, acquired lazily and shared by
// every async fixture and async test within that scope until it is
// released at the scope's teardown boundary (invariant 5).
//
// The host language this engine was modelled on serialises interpreted
// code under a single process-wide lock, so its "cooperative scheduler"
// never runs two coroutines on two OS threads at once — concurrency comes
// from interleaving suspended coroutines on one thread. Go has no such
// lock and no native coroutines, so a loop.Scheduler instead runs each
// coroutine on the calling goroutine with the scheduler's cancellable
// context; package batch is what actually runs many of them concurrently
// (via a zero-value errgroup.Group, so one coroutine's failure never
// cancels its siblings), while resolver and executor each drive exactly
// one at a time through Scheduler.Run. The acquire-or-create-then-release-cancels
// shape is grounded on internal/xcontext/xcontext.go's CancelFunc, whose
// cancellation always leaves the context provably done before returning.
package loop

import (
	"context"
	"sync"

	"code.cloudfoundry.org/clock"

	"github.com/apexrun/fixrunner/hostrt"
	"github.com/apexrun/fixrunner/model"
)

// Scheduler drives hostrt.Coroutine values to completion on behalf of a
// single scope. It is safe for concurrent use: package batch calls Run
// from multiple goroutines at once for a gathered batch.
type Scheduler struct {
	scope  model.Scope
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	clk    clock.Clock
}

func newScheduler(parent context.Context, scope model.Scope, clk clock.Clock) *Scheduler {
	ctx, cancel := context.WithCancel(parent)
	return &Scheduler{scope: scope, ctx: ctx, cancel: cancel, clk: clk}
}

// Scope reports which scope this scheduler instance belongs to.
func (s *Scheduler) Scope() model.Scope { return s.scope }

// Context returns the scheduler's cancellable context, for callers that
// launch a coroutine themselves rather than going through Run.
func (s *Scheduler) Context() context.Context { return s.ctx }

// Run schedules coro and blocks until it completes or the scheduler is
// closed out from under it. This is the "schedule a coroutine and await"
// capability named in spec.md §9's host-runtime design note.
func (s *Scheduler) Run(coro hostrt.Coroutine) (hostrt.Value, error) {
	s.wg.Add(1)
	defer s.wg.Done()
	return coro(s.ctx)
}

// Close requests cancellation of every pending task and waits for all of
// them to return before closing the scheduler, matching spec.md §5:
// "all pending tasks are requested to cancel before the scheduler is
// closed to avoid resource warnings".
func (s *Scheduler) Close() {
	s.cancel()
	s.wg.Wait()
}

// Registry holds at most one Scheduler per scope, lazily created.
type Registry struct {
	clk        clock.Clock
	schedulers map[model.Scope]*Scheduler
}

// NewRegistry creates an empty Registry using clk for the schedulers it
// creates. Tests inject a fake clock the way xcontext_test.go does;
// production code should pass clock.NewClock().
func NewRegistry(clk clock.Clock) *Registry {
	return &Registry{clk: clk, schedulers: make(map[model.Scope]*Scheduler)}
}

// Acquire returns the existing scheduler for scope if one is open,
// otherwise creates one bound to ctx and installs it as current for that
// scope (spec.md §4.B).
func (r *Registry) Acquire(ctx context.Context, scope model.Scope) *Scheduler {
	if s, ok := r.schedulers[scope]; ok {
		return s
	}
	s := newScheduler(ctx, scope, r.clk)
	r.schedulers[scope] = s
	return s
}

// Peek returns the currently open scheduler for scope without creating
// one, reporting whether it exists.
func (r *Registry) Peek(scope model.Scope) (*Scheduler, bool) {
	s, ok := r.schedulers[scope]
	return s, ok
}

// Release closes and forgets the scheduler for scope, if one is open. It
// is a no-op if scope has no open scheduler.
func (r *Registry) Release(scope model.Scope) {
	s, ok := r.schedulers[scope]
	if !ok {
		return
	}
	s.Close()
	delete(r.schedulers, scope)
}
