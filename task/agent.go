package task

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/dauphin/diag"
)

// Agent is the ambient, task-local handle to scheduler services: every
// suspension point (Tick, Timer, Turnstile, NamedWait, Tidy) goes through
// it, and it is reachable without parameter threading via Current() while
// its owning task holds the run permit.
type Agent struct {
	exec   *Executor
	handle *TaskHandle
	ctx    context.Context

	waitMu sync.Mutex
	waits  []string

	childSeq atomic.Uint64
}

func newAgent(exec *Executor, handle *TaskHandle, ctx context.Context) *Agent {
	return &Agent{exec: exec, handle: handle, ctx: ctx}
}

// current holds whichever Agent presently owns the run permit. Only one
// Agent process-wide is ever "current" at a time, since only one task's
// code executes between suspension points — this assumes a
// single Executor drives the process; running two Executors concurrently
// is unsupported by the ambient accessors (direct *Agent references still
// work regardless).
var current atomic.Pointer[Agent]

func setCurrent(ag *Agent) { current.Store(ag) }

// clearCurrent releases the ambient slot, but only if ag is still the
// occupant — guards against a stale clear racing a nested acquire/release
// pair performed by a suspend call.
func clearCurrent(ag *Agent) { current.CompareAndSwap(ag, nil) }

// Current returns the Agent for the task presently holding the run permit,
// or nil if called from outside any task.
func Current() *Agent { return current.Load() }

// Identity returns the owning task's permanent id.
func (ag *Agent) Identity() uint64 { return ag.handle.id }

// Name returns the owning task's current display name.
func (ag *Agent) Name() string { return ag.handle.Name() }

// SetName changes the owning task's display name, visible in Executor.Tasks.
func (ag *Agent) SetName(name string) { ag.handle.setName(name) }

// Waits returns the labels currently pushed by NamedWait, innermost last —
// the live equivalent of TaskSummary's wait list.
func (ag *Agent) Waits() []string {
	ag.waitMu.Lock()
	defer ag.waitMu.Unlock()
	out := make([]string, len(ag.waits))
	copy(out, ag.waits)
	return out
}

func (ag *Agent) pushWait(label string) {
	ag.waitMu.Lock()
	ag.waits = append(ag.waits, label)
	ag.waitMu.Unlock()
}

func (ag *Agent) popWait() {
	ag.waitMu.Lock()
	if n := len(ag.waits); n > 0 {
		ag.waits = ag.waits[:n-1]
	}
	ag.waitMu.Unlock()
}

// suspend releases the run permit for the duration of wait, re-clearing
// and re-setting the ambient Current() pointer around it. Every blocking
// operation an Agent exposes funnels through this so the executor never
// has more than one task's code actually running at once.
func (ag *Agent) suspend(wait func(ctx context.Context) error) error {
	clearCurrent(ag)
	ag.exec.release()
	err := wait(ag.ctx)
	ag.exec.acquire(ag.handle.cfg.Priority)
	setCurrent(ag)
	return err
}

// Tick suspends the task until the executor's logical clock has advanced by
// at least n ticks from its value at the time of the call.
func (ag *Agent) Tick(n uint64) error {
	return ag.suspend(func(ctx context.Context) error {
		return ag.exec.awaitTick(ctx, ag.exec.currentTick()+n)
	})
}

// Timer suspends the task for a wall-clock duration.
func (ag *Agent) Timer(d time.Duration) error {
	return ag.suspend(func(ctx context.Context) error {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			return nil
		}
	})
}

// Await suspends the task until done closes, surfacing ctx cancellation if
// that happens first. Used by callers bridging an Agent to an arbitrary
// channel-based async operation (e.g. a promise.PromiseFuture's Done()).
func (ag *Agent) Await(done <-chan struct{}) error {
	return ag.suspend(func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-done:
			return nil
		}
	})
}

// turnstileResult carries the outcome of the inner operation back across
// the goroutine boundary Turnstile starts it on.
type turnstileResult struct {
	value any
	err   error
}

// Turnstile runs inner concurrently and suspends the caller until it has
// both finished AND the executor's logical clock has advanced at least one
// further tick — serializing a burst of otherwise-simultaneous completions
// to at most one delivery per tick.
func (ag *Agent) Turnstile(inner func(ctx context.Context) (any, error)) (any, error) {
	resultCh := make(chan turnstileResult, 1)
	go func() {
		v, err := inner(ag.ctx)
		resultCh <- turnstileResult{v, err}
	}()

	var res turnstileResult
	err := ag.suspend(func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case res = <-resultCh:
		}
		return ag.exec.awaitTick(ctx, ag.exec.currentTick()+1)
	})
	if err != nil {
		return nil, err
	}
	return res.value, res.err
}

// NamedWait labels the task's current wait (visible via Waits/Summary)
// while inner runs, restoring the previous label set on return.
func (ag *Agent) NamedWait(name string, inner func() error) error {
	ag.pushWait(name)
	defer ag.popWait()
	return inner()
}

// tidyResult carries the outcome of a Tidy cleanup across its goroutine.
type tidyResult struct {
	value any
	err   error
}

// Tidy runs inner to completion exactly once, even if the owning task is
// killed while it is in flight — the executor's Shutdown waits for all
// outstanding Tidy cleanups before returning, so cleanup always gets to
// finish.
func (ag *Agent) Tidy(inner func() (any, error)) (any, error) {
	ag.exec.tidyWG.Add(1)
	doneCh := make(chan tidyResult, 1)
	go func() {
		defer ag.exec.tidyWG.Done()
		v, err := inner()
		doneCh <- tidyResult{v, err}
	}()
	var res tidyResult
	_ = ag.suspend(func(context.Context) error {
		// Tidy is not cancellable: the cleanup always runs to completion,
		// so this wait ignores ctx and only reports when inner is done.
		res = <-doneCh
		return nil
	})
	return res.value, res.err
}

// Spawn starts a child task under the same Executor, with a context derived
// from ag's task context: killing ag's task (including by timeout) cancels
// the child's context, which the child observes at its next suspension
// point. The child is not itself settled as Killed by this, and neither its
// context nor its outcome is affected when ag's task finishes normally.
func (ag *Agent) Spawn(fn TaskFunc, cfg RunConfig) *TaskHandle {
	return ag.exec.Add(ag.ctx, fn, cfg)
}

// Tidy, Turnstile and NamedWait below are free-function convenience
// wrappers over Current(), for library code that reads the ambient agent
// rather than requiring the caller to already hold an *Agent reference.
// Calling one outside of a running task is a Fatal error: there is no
// ambient agent to operate on.

func noAmbientAgent(op string) error {
	return diag.New(diag.Fatal, diag.Code{Namespace: "task", Number: 10}, "%s called with no task currently running", op)
}

// Tidy is the free-function form of (*Agent).Tidy, operating on Current().
func Tidy(inner func() (any, error)) (any, error) {
	ag := Current()
	if ag == nil {
		return nil, noAmbientAgent("Tidy")
	}
	return ag.Tidy(inner)
}

// Turnstile is the free-function form of (*Agent).Turnstile, operating on
// Current().
func Turnstile(inner func(ctx context.Context) (any, error)) (any, error) {
	ag := Current()
	if ag == nil {
		return nil, noAmbientAgent("Turnstile")
	}
	return ag.Turnstile(inner)
}

// NamedWait is the free-function form of (*Agent).NamedWait, operating on
// Current().
func NamedWait(name string, inner func() error) error {
	ag := Current()
	if ag == nil {
		return noAmbientAgent("NamedWait")
	}
	return ag.NamedWait(name, inner)
}
