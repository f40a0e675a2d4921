package memo_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/joeycumines/dauphin/memo"
	"github.com/stretchr/testify/require"
)

func TestStoreDedupesConcurrentLoaders(t *testing.T) {
	s := memo.NewStore[string, int]()
	var calls atomic.Int32
	load := func() (int, error) {
		calls.Add(1)
		return 7, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := s.Get("k", load)
			require.NoError(t, err)
			require.Equal(t, 7, v)
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), calls.Load())
}

func TestStoreDoesNotCacheErrors(t *testing.T) {
	s := memo.NewStore[string, int]()
	var calls int
	load := func() (int, error) {
		calls++
		if calls == 1 {
			return 0, errors.New("boom")
		}
		return 9, nil
	}

	_, err := s.Get("k", load)
	require.Error(t, err)

	v, err := s.Get("k", load)
	require.NoError(t, err)
	require.Equal(t, 9, v)
	require.Equal(t, 2, calls)
}

func TestStoreWarm(t *testing.T) {
	s := memo.NewStore[string, int]()
	s.Warm("k", 3)
	v, ok := s.Peek("k")
	require.True(t, ok)
	require.Equal(t, 3, v)
}

func TestCacheEvictsBeyondCapacity(t *testing.T) {
	c, err := memo.NewCache[int, string](2)
	require.NoError(t, err)

	_, err = c.Get(1, func() (string, error) { return "a", nil })
	require.NoError(t, err)
	_, err = c.Get(2, func() (string, error) { return "b", nil })
	require.NoError(t, err)
	_, err = c.Get(3, func() (string, error) { return "c", nil })
	require.NoError(t, err)

	require.Equal(t, 2, c.Len())
	_, ok := c.Peek(1)
	require.False(t, ok, "oldest entry should have been evicted")
}

func TestCacheDedupesConcurrentLoaders(t *testing.T) {
	c, err := memo.NewCache[string, int](10)
	require.NoError(t, err)
	var calls atomic.Int32

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.Get("k", func() (int, error) {
				calls.Add(1)
				return 11, nil
			})
			require.NoError(t, err)
			require.Equal(t, 11, v)
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), calls.Load())
}
