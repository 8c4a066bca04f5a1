// file: internal/cache/cache.go
// version: 3.0.0
// guid: a1b2c3d4-e5f6-7a8b-9c0d-1e2f3a4b5c6d

// Package cache provides a small generic TTL cache.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrLoadPanicked wraps a panic raised by a LoadFunc.
var ErrLoadPanicked = errors.New("cache load panicked")

type entry[T any] struct {
	value     T
	expiresAt time.Time
}

func (e entry[T]) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// LoadFunc produces a value for a missing key. The context it receives is
// never cancelled by the caller that triggered the load, since other callers
// may be waiting on the same result.
type LoadFunc[T any] func(ctx context.Context) (T, error)

// Cache is a generic TTL cache safe for concurrent use.
type Cache[T any] struct {
	mu         sync.RWMutex
	items      map[string]entry[T]
	defaultTTL time.Duration

	loads singleflight.Group
}

// New creates a cache with the given default TTL.
func New[T any](defaultTTL time.Duration) *Cache[T] {
	return &Cache[T]{
		items:      make(map[string]entry[T]),
		defaultTTL: defaultTTL,
	}
}

// Get retrieves a value if it exists and hasn't expired.
func (c *Cache[T]) Get(key string) (T, bool) {
	c.mu.RLock()
	e, ok := c.items[key]
	c.mu.RUnlock()
	if !ok || e.expired(time.Now()) {
		var zero T
		return zero, false
	}
	return e.value, true
}

// GetOrLoad returns the cached value for key, calling load on a miss.
// Concurrent misses for the same key share one load. Errors and panics are
// not cached. A caller whose ctx ends stops waiting without aborting the
// shared load.
func (c *Cache[T]) GetOrLoad(ctx context.Context, key string, load LoadFunc[T]) (T, error) {
	var zero T
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	detached := context.WithoutCancel(ctx)
	ch := c.loads.DoChan(key, func() (v any, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%w: %s: %v", ErrLoadPanicked, key, r)
			}
		}()
		value, err := load(detached)
		if err != nil {
			return nil, err
		}
		c.Set(key, value)
		return value, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Set stores a value with the default TTL.
func (c *Cache[T]) Set(key string, value T) {
	c.mu.Lock()
	c.items[key] = entry[T]{value: value, expiresAt: time.Now().Add(c.defaultTTL)}
	c.mu.Unlock()
}

// PurgeExpired drops expired entries and returns how many were removed.
func (c *Cache[T]) PurgeExpired() int {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, e := range c.items {
		if e.expired(now) {
			delete(c.items, k)
			n++
		}
	}
	return n
}
