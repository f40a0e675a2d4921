// Package puzzle implements the reactive "Value" system: lazy functions
// of an optional Answer, combined through constant/derived/unknown/
// delayed/commute/memoized combinators, backed by an AnswerAllocator that
// mints recyclable small-integer Answer indices.
package puzzle

import "sync"

// Answer is an allocation token identifying one evaluation of the puzzle:
// a distinct small integer index, recycled once released.
type Answer struct {
	index int
	alloc *AnswerAllocator
}

// Index returns the Answer's small integer slot, used by Value caches to
// index directly into a slice rather than hashing into a map.
func (a *Answer) Index() int { return a.index }

// retained is the per-Answer, per-cache-key value map: a Value may stash
// a computed result against the Answer's lifetime, reclaimed automatically
// when the Answer is released.
type retained struct {
	mu     sync.Mutex
	values map[any]any
}

// Retain stores v under key for the lifetime of this Answer, and returns
// it. A later Retain call with the same key before the Answer is released
// returns the previously stored value without recomputing.
func (a *Answer) Retain(key any, compute func() any) any {
	r := a.alloc.retainedFor(a.index)
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.values[key]; ok {
		return v
	}
	v := compute()
	r.values[key] = v
	return v
}

// AnswerAllocator mints Answers carrying distinct indices, recycling an
// index (and releasing its retained values) once the Answer is released.
type AnswerAllocator struct {
	mu       sync.Mutex
	free     []int
	next     int
	retained map[int]*retained
}

// NewAnswerAllocator returns an empty allocator.
func NewAnswerAllocator() *AnswerAllocator {
	return &AnswerAllocator{retained: make(map[int]*retained)}
}

// Allocate mints a fresh Answer, reusing the most recently released index
// if any is available.
func (a *AnswerAllocator) Allocate() *Answer {
	a.mu.Lock()
	defer a.mu.Unlock()

	var idx int
	if n := len(a.free); n > 0 {
		idx = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		idx = a.next
		a.next++
	}
	a.retained[idx] = &retained{values: make(map[any]any)}
	return &Answer{index: idx, alloc: a}
}

// Release recycles ans's index and drops everything retained against it.
func (a *AnswerAllocator) Release(ans *Answer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.retained, ans.index)
	a.free = append(a.free, ans.index)
}

func (a *AnswerAllocator) retainedFor(idx int) *retained {
	a.mu.Lock()
	defer a.mu.Unlock()
	r, ok := a.retained[idx]
	if !ok {
		r = &retained{values: make(map[any]any)}
		a.retained[idx] = r
	}
	return r
}
