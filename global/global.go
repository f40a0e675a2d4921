// Package global implements cross-train global-value aggregation: each
// train (one viewport epoch) contributes a locally-reduced value under a
// stable key, and once per epoch a reducer folds every contributor's
// value into one canonical answer, hashed so consumers can cheaply detect
// whether the aggregate changed between epochs.
package global

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sort"
	"sync"
)

// Key identifies a contribution's aggregation bucket, e.g. an allotment
// name.
type Key string

// Train identifies one viewport epoch's local contributions.
type Train uint64

// Reducer folds a key's contributions from every train that supplied one
// into the canonical answer for that key. The values slice is ordered by
// Train to keep the fold deterministic.
type Reducer[T any] func(values []T) T

// Identity is a stable fingerprint of an aggregate's contributing values,
// letting a consumer skip re-rendering an unchanged aggregate.
type Identity string

// Aggregator collects per-train local contributions under a Key and
// produces the per-epoch canonical reduction.
type Aggregator[T any] struct {
	reduce Reducer[T]
	encode func(T) []byte

	mu            sync.Mutex
	contributions map[Key]map[Train]T
	canonical     map[Key]result[T]
}

type result[T any] struct {
	value    T
	identity Identity
}

// NewAggregator builds an Aggregator using reduce to fold per-key
// contributions and encode to turn a single contribution into bytes for
// hashing. encode need not be collision-proof across types, only stable
// for a given T.
func NewAggregator[T any](reduce Reducer[T], encode func(T) []byte) *Aggregator[T] {
	return &Aggregator[T]{
		reduce:        reduce,
		encode:        encode,
		contributions: make(map[Key]map[Train]T),
		canonical:     make(map[Key]result[T]),
	}
}

// Contribute records train's local value for key, replacing any prior
// contribution from the same train (a train may recompute its local
// reduction before the epoch closes).
func (a *Aggregator[T]) Contribute(key Key, train Train, value T) {
	a.mu.Lock()
	defer a.mu.Unlock()
	byTrain, ok := a.contributions[key]
	if !ok {
		byTrain = make(map[Train]T)
		a.contributions[key] = byTrain
	}
	byTrain[train] = value
}

// Forget drops train's contribution to key, used when a train is retired
// (its viewport scrolled away or was replaced).
func (a *Aggregator[T]) Forget(key Key, train Train) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if byTrain, ok := a.contributions[key]; ok {
		delete(byTrain, train)
	}
}

// Commit reduces key's current contributions into the canonical answer
// for this epoch, returning the value, its Identity, and whether the
// Identity changed since the last Commit of this key.
func (a *Aggregator[T]) Commit(key Key) (value T, identity Identity, changed bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	byTrain := a.contributions[key]
	trains := make([]Train, 0, len(byTrain))
	for tr := range byTrain {
		trains = append(trains, tr)
	}
	sort.Slice(trains, func(i, j int) bool { return trains[i] < trains[j] })

	values := make([]T, 0, len(trains))
	h := sha256.New()
	for _, tr := range trains {
		v := byTrain[tr]
		values = append(values, v)
		var trainID [8]byte
		binary.LittleEndian.PutUint64(trainID[:], uint64(tr))
		h.Write(trainID[:])
		h.Write(a.encode(v))
	}

	value = a.reduce(values)
	identity = Identity(hex.EncodeToString(h.Sum(nil)))

	prior, had := a.canonical[key]
	changed = !had || prior.identity != identity
	a.canonical[key] = result[T]{value: value, identity: identity}
	return value, identity, changed
}

// Canonical returns the last value Commit produced for key, without
// recomputing.
func (a *Aggregator[T]) Canonical(key Key) (value T, identity Identity, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	r, ok := a.canonical[key]
	return r.value, r.identity, ok
}
