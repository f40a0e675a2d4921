package task

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"time"
)

// waiter is one pending request for the executor's single run permit,
// ordered by (priority, insertion-seq).
type waiter struct {
	priority Priority
	seq      int64
	ch       chan struct{}
}

type waiterHeap []*waiter

func (h waiterHeap) Len() int { return len(h) }
func (h waiterHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority // higher priority runs first
	}
	return h[i].seq < h[j].seq // ties broken by insertion order
}
func (h waiterHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *waiterHeap) Push(x any)        { *h = append(*h, x.(*waiter)) }
func (h *waiterHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return x
}

// Executor is a single-threaded, cooperatively-scheduled task runtime.
// There is no preemption and no parallel execution of task
// logic: at most one task's code runs at a time, enforced by a priority
// run-permit (permitMu/waiters below) rather than by actually pinning
// everything to one OS thread — each Task gets its own goroutine, but only
// the one holding the permit is allowed to execute between suspension
// points.
type Executor struct {
	permitMu sync.Mutex
	held     bool
	waiters  waiterHeap
	seq      int64

	slotMu sync.Mutex
	slots  map[Slot]*TaskHandle

	taskMu sync.Mutex
	tasks  map[uint64]*TaskHandle

	tickMu    sync.Mutex
	tickCount uint64
	tickCh    chan struct{}

	tidyWG sync.WaitGroup
}

// NewExecutor constructs an idle Executor.
func NewExecutor() *Executor {
	return &Executor{
		slots:  make(map[Slot]*TaskHandle),
		tasks:  make(map[uint64]*TaskHandle),
		tickCh: make(chan struct{}),
	}
}

// acquire blocks until the caller is the sole holder of the run permit,
// honoring priority order amongst concurrent waiters.
func (e *Executor) acquire(priority Priority) {
	e.permitMu.Lock()
	if !e.held {
		e.held = true
		e.permitMu.Unlock()
		return
	}
	w := &waiter{priority: priority, seq: e.seq, ch: make(chan struct{})}
	e.seq++
	heap.Push(&e.waiters, w)
	e.permitMu.Unlock()
	<-w.ch
}

// release hands the permit to the next highest-priority waiter, if any.
func (e *Executor) release() {
	e.permitMu.Lock()
	if e.waiters.Len() == 0 {
		e.held = false
		e.permitMu.Unlock()
		return
	}
	w := heap.Pop(&e.waiters).(*waiter)
	e.permitMu.Unlock()
	close(w.ch) // ownership transfers directly; held remains true
}

// TaskFunc is the body of a scheduled task. It receives a context cancelled
// on kill/timeout, and the Agent giving it access to scheduler services.
type TaskFunc func(ctx context.Context, ag *Agent) (any, error)

// Add enqueues a task for execution. If cfg.Slot is
// occupied, the incumbent is delivered Killed(NotNeeded) before the new
// task's goroutine is ever started — satisfying the invariant that the
// incumbent settles before the entrant's first poll.
func (e *Executor) Add(parent context.Context, fn TaskFunc, cfg RunConfig) *TaskHandle {
	if parent == nil {
		parent = context.Background()
	}
	id := nextTaskID()
	ctx, cancel := context.WithCancel(parent)
	h := &TaskHandle{
		id:   id,
		cfg:  cfg,
		name: fmt.Sprintf("task-%d", id),
		done: make(chan struct{}),
		cancel: cancel,
	}
	h.outcome.State = Ongoing
	ag := newAgent(e, h, ctx)
	h.agent = ag

	if !cfg.Slot.Empty() {
		e.slotMu.Lock()
		incumbent, occupied := e.slots[cfg.Slot]
		e.slots[cfg.Slot] = h
		e.slotMu.Unlock()
		if occupied {
			incumbent.Kill(NotNeeded)
		}
	}

	if cfg.Timeout > 0 {
		switch cfg.TimeoutUnit {
		case TimeoutRealTime:
			h.timeoutTimer = time.AfterFunc(time.Duration(cfg.Timeout*float64(time.Second)), func() {
				h.Kill(Timeout)
			})
		case TimeoutTicks:
			// Set before the handle becomes visible in e.tasks, so an
			// AdvanceTick running concurrently with Add sees the deadline.
			h.tickDeadline = e.currentTick() + uint64(cfg.Timeout)
			h.hasTickDeadline = true
		}
	}

	e.taskMu.Lock()
	e.tasks[id] = h
	e.taskMu.Unlock()

	go e.run(ctx, h, ag, fn)

	return h
}

func (e *Executor) run(ctx context.Context, h *TaskHandle, ag *Agent, fn TaskFunc) {
	defer func() {
		if h.timeoutTimer != nil {
			h.timeoutTimer.Stop()
		}
		e.slotMu.Lock()
		if cur, ok := e.slots[h.cfg.Slot]; ok && cur == h {
			delete(e.slots, h.cfg.Slot)
		}
		e.slotMu.Unlock()
		e.taskMu.Lock()
		delete(e.tasks, h.id)
		e.taskMu.Unlock()

		if r := recover(); r != nil {
			// A panic is a hard termination of this task only; siblings
			// are left running.
			h.settle(Outcome{State: Killed, Reason: Cancelled, Err: fmt.Errorf("task panic: %v", r)})
			e.release()
		}
	}()

	e.acquire(h.cfg.Priority)
	setCurrent(ag)

	if ctx.Err() != nil {
		// Already killed (e.g. slot displacement) before our first poll.
		clearCurrent(ag)
		e.release()
		return
	}

	val, err := fn(ctx, ag)

	clearCurrent(ag)
	e.release()
	h.settle(Outcome{State: Done, Value: val, Err: err})
}

// currentTick returns the executor's logical tick counter.
func (e *Executor) currentTick() uint64 {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()
	return e.tickCount
}

// AdvanceTick moves the logical clock forward by n ticks, waking any task
// suspended in Agent.Tick whose target has now been reached and killing
// any task whose tick deadline is now breached.
func (e *Executor) AdvanceTick(n uint64) {
	if n == 0 {
		return
	}
	e.tickMu.Lock()
	e.tickCount += n
	now := e.tickCount
	old := e.tickCh
	e.tickCh = make(chan struct{})
	e.tickMu.Unlock()
	close(old)

	e.taskMu.Lock()
	var expired []*TaskHandle
	for _, h := range e.tasks {
		if h.hasTickDeadline && now >= h.tickDeadline {
			expired = append(expired, h)
		}
	}
	e.taskMu.Unlock()
	for _, h := range expired {
		h.Kill(Timeout)
	}
}

func (e *Executor) awaitTick(ctx context.Context, target uint64) error {
	for {
		e.tickMu.Lock()
		if e.tickCount >= target {
			e.tickMu.Unlock()
			return nil
		}
		ch := e.tickCh
		e.tickMu.Unlock()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}

// Tasks returns a diagnostic snapshot of all ongoing tasks, for "ps-like"
// summaries.
func (e *Executor) Tasks() []Summary {
	e.taskMu.Lock()
	defer e.taskMu.Unlock()
	out := make([]Summary, 0, len(e.tasks))
	for _, h := range e.tasks {
		out = append(out, Summary{
			Identity: h.id,
			Name:     h.Name(),
			Waits:    h.agent.Waits(),
		})
	}
	return out
}

// Shutdown waits for all in-flight Tidy cleanups to complete, or for ctx to
// be cancelled first.
func (e *Executor) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.tidyWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TaskHandle is the caller-visible handle returned by Executor.Add.
type TaskHandle struct {
	id   uint64
	cfg  RunConfig
	name string

	mu      sync.Mutex
	outcome Outcome
	done    chan struct{}

	cancel       context.CancelFunc
	timeoutTimer *time.Timer
	agent        *Agent

	tickDeadline    uint64
	hasTickDeadline bool
}

// Identity is the task's permanent, never-reused id.
func (h *TaskHandle) Identity() uint64 { return h.id }

// Name returns the task's current display name (mutable via Agent.SetName).
func (h *TaskHandle) Name() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.name
}

func (h *TaskHandle) setName(name string) {
	h.mu.Lock()
	h.name = name
	h.mu.Unlock()
}

// Outcome returns the current lifecycle snapshot.
func (h *TaskHandle) Outcome() Outcome {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.outcome
}

// settle transitions the task to a terminal state exactly once. Returns
// false if the task had already settled.
func (h *TaskHandle) settle(o Outcome) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.outcome.State != Ongoing {
		return false
	}
	h.outcome = o
	close(h.done)
	return true
}

// Kill delivers a terminal Killed(reason) state immediately (before the
// task's goroutine necessarily observes it), then cancels the task's
// context so it unwinds at its next suspension point.
func (h *TaskHandle) Kill(reason KillReason) {
	if h.settle(Outcome{State: Killed, Reason: reason}) {
		h.cancel()
	}
}

// Done returns a channel closed once the task reaches a terminal state.
func (h *TaskHandle) Done() <-chan struct{} { return h.done }

// Wait blocks until the task settles or ctx is cancelled.
func (h *TaskHandle) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-h.done:
		return h.Outcome(), nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}
