// Package promise implements the single-assignment and fan-out future
// primitives the executor and request layer are built on: satisfy-once
// futures, broadcast fuses whose late subscribers still receive the value,
// and a memoizing async-once cell.
package promise

import (
	"sync"

	"github.com/joeycumines/dauphin/diag"
)

// PromiseFuture is a single-assignment future: Satisfy may be called at
// most once, and Await (or Done) observes that one value from any number
// of goroutines.
type PromiseFuture[T any] struct {
	mu        sync.Mutex
	done      chan struct{}
	satisfied bool
	value     T
	err       error
}

// NewFuture returns an unsatisfied PromiseFuture.
func NewFuture[T any]() *PromiseFuture[T] {
	return &PromiseFuture[T]{done: make(chan struct{})}
}

// Satisfy assigns the future's value exactly once. A second call returns a
// Fatal diag.Error: re-satisfying a promise is a programming error.
func (p *PromiseFuture[T]) Satisfy(value T, err error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.satisfied {
		return diag.New(diag.Fatal, diag.Code{Namespace: "promise", Number: 1}, "promise satisfied more than once")
	}
	p.value, p.err = value, err
	p.satisfied = true
	close(p.done)
	return nil
}

// Done returns a channel closed once the future is satisfied.
func (p *PromiseFuture[T]) Done() <-chan struct{} { return p.done }

// Await blocks until the future is satisfied and returns its value. Safe to
// call from multiple goroutines and any number of times once satisfied.
func (p *PromiseFuture[T]) Await() (T, error) {
	<-p.done
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value, p.err
}

// Peek returns the future's value and whether it has been satisfied yet,
// without blocking.
func (p *PromiseFuture[T]) Peek() (value T, err error, ready bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value, p.err, p.satisfied
}

// FusePromise fans a single eventual value out to any number of
// subscribers, including ones registered after the value already landed.
type FusePromise[T any] struct {
	mu          sync.Mutex
	satisfied   bool
	value       T
	err         error
	subscribers []chan struct{}
}

// NewFuse returns an unsatisfied FusePromise.
func NewFuse[T any]() *FusePromise[T] { return &FusePromise[T]{} }

// Satisfy assigns the value and wakes every current and future subscriber.
// Unlike PromiseFuture, a second call is a silent no-op: FusePromise models
// a broadcast slot, not a single-assignment cell.
func (f *FusePromise[T]) Satisfy(value T, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.satisfied {
		return
	}
	f.value, f.err = value, err
	f.satisfied = true
	for _, ch := range f.subscribers {
		close(ch)
	}
	f.subscribers = nil
}

// Subscribe returns a channel closed once the value is available. If the
// value already landed, the returned channel is already closed.
func (f *FusePromise[T]) Subscribe() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.satisfied {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	ch := make(chan struct{})
	f.subscribers = append(f.subscribers, ch)
	return ch
}

// Await blocks until the value is available and returns it.
func (f *FusePromise[T]) Await() (T, error) {
	<-f.Subscribe()
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value, f.err
}

// onceState is AsyncOnce's lifecycle.
type onceState int

const (
	onceUnstarted onceState = iota
	onceStarted
	onceFinished
)

// AsyncOnce memoizes a single async computation: the first caller to Get
// starts it, concurrent callers share its FusePromise, and later callers
// after completion receive the cached value immediately.
type AsyncOnce[T any] struct {
	mu    sync.Mutex
	state onceState
	fuse  *FusePromise[T]
}

// NewAsyncOnce returns an Unstarted AsyncOnce.
func NewAsyncOnce[T any]() *AsyncOnce[T] { return &AsyncOnce[T]{} }

// Get runs load on the first call (from any goroutine) and returns its
// eventual result to every caller, including ones that arrive after it has
// finished.
func (o *AsyncOnce[T]) Get(load func() (T, error)) (T, error) {
	o.mu.Lock()
	switch o.state {
	case onceUnstarted:
		o.state = onceStarted
		o.fuse = NewFuse[T]()
		fuse := o.fuse
		o.mu.Unlock()
		go func() {
			v, err := load()
			fuse.Satisfy(v, err)
			o.mu.Lock()
			o.state = onceFinished
			o.mu.Unlock()
		}()
		return fuse.Await()
	case onceStarted, onceFinished:
		fuse := o.fuse
		o.mu.Unlock()
		return fuse.Await()
	default:
		o.mu.Unlock()
		var zero T
		return zero, diag.New(diag.Fatal, diag.Code{Namespace: "promise", Number: 2}, "unreachable AsyncOnce state")
	}
}
