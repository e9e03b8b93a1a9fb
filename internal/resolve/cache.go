package resolve

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// Cache memoizes fetch for a typed key, bounded by capacity (LRU) and ttl,
// coalescing concurrent fetches for the same key via singleflight (spec
// §4.4). Grounded on two dependencies the teacher already carries:
// golang-lru (the teacher's internal/blobcache hand-rolls a mutex +
// hashicorp/golang-lru/simplelru; this generalizes to the v2 expirable
// variant, which folds TTL eviction into the same structure instead of a
// second sweep) and golang.org/x/sync/singleflight (same module as the
// errgroup/semaphore usage elsewhere in the teacher's dependency graph).
//
// A failed fetch is never inserted (spec §3's Cache entry lifecycle).
type Cache[K comparable, V any] struct {
	lru    *expirable.LRU[K, V]
	sf     singleflight.Group
	keyStr func(K) string
}

// NewCache builds a Cache holding at most capacity entries, each valid for
// ttl, keyed by keyStr for single-flight coalescing.
func NewCache[K comparable, V any](capacity int, ttl time.Duration, keyStr func(K) string) *Cache[K, V] {
	return &Cache[K, V]{
		lru:    expirable.NewLRU[K, V](capacity, nil, ttl),
		keyStr: keyStr,
	}
}

// Get returns the cached value for key, calling fetch at most once across
// all concurrently-waiting callers. The shared fetch runs with a context
// detached from any single waiter's cancellation (context.WithoutCancel),
// so cancelling one waiter's request never cancels the in-flight upstream
// call for the others — spec §4.4 and §5's cancellation rule.
func (c *Cache[K, V]) Get(ctx context.Context, key K, fetch func(context.Context) (V, error)) (V, error) {
	if v, ok := c.lru.Get(key); ok {
		return v, nil
	}

	detached := context.WithoutCancel(ctx)
	result, err, _ := c.sf.Do(c.keyStr(key), func() (interface{}, error) {
		v, err := fetch(detached)
		if err != nil {
			return nil, err
		}
		c.lru.Add(key, v)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return result.(V), nil
}

// Len reports the number of entries currently cached, for tests.
func (c *Cache[K, V]) Len() int {
	return c.lru.Len()
}
