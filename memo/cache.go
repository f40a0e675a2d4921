package memo

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/joeycumines/dauphin/diag"
)

// Cache is the bounded memoization mode: an LRU of capacity n (spec
// §4.G). Eviction policy, including tie-breaking, is whatever
// github.com/hashicorp/golang-lru/v2 implements; this package does not
// second-guess it.
type Cache[K comparable, V any] struct {
	mu    sync.Mutex
	lru   *lru.Cache[K, V]
	calls map[K]*call[V]
}

// NewCache returns a Cache holding at most n entries. n must be positive.
func NewCache[K comparable, V any](n int) (*Cache[K, V], error) {
	l, err := lru.New[K, V](n)
	if err != nil {
		return nil, diag.Wrap(diag.Fatal, diag.Code{Namespace: "memo", Number: 1}, err, "construct LRU cache of size %d", n)
	}
	return &Cache[K, V]{lru: l, calls: make(map[K]*call[V])}, nil
}

// Get returns the cached value for k, invoking load at most once across any
// number of concurrent callers racing on the same absent key, same
// no-cache-on-error policy as Store.Get.
func (c *Cache[K, V]) Get(k K, load Loader[V]) (V, error) {
	c.mu.Lock()
	if v, ok := c.lru.Get(k); ok {
		c.mu.Unlock()
		return v, nil
	}
	if cl, ok := c.calls[k]; ok {
		c.mu.Unlock()
		cl.wg.Wait()
		return cl.val, cl.err
	}
	cl := &call[V]{}
	cl.wg.Add(1)
	c.calls[k] = cl
	c.mu.Unlock()

	v, err := load()

	c.mu.Lock()
	delete(c.calls, k)
	if err == nil {
		c.lru.Add(k, v)
	}
	c.mu.Unlock()

	cl.val, cl.err = v, err
	cl.wg.Done()
	return v, err
}

// Warm seeds k with a precomputed value without invoking the loader.
func (c *Cache[K, V]) Warm(k K, v V) {
	c.mu.Lock()
	c.lru.Add(k, v)
	c.mu.Unlock()
}

// Peek returns the cached value for k without affecting its recency.
func (c *Cache[K, V]) Peek(k K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Peek(k)
}

// Len reports the current entry count.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
