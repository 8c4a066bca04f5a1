// file: internal/cache/cache_test.go
// version: 2.0.0
// guid: b2c3d4e5-f6a7-8b9c-0d1e-2f3a4b5c6d7e

package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSet(t *testing.T) {
	c := New[string](time.Minute)
	c.Set("k", "v")
	v, ok := c.Get("k")
	if !ok || v != "v" {
		t.Fatalf("expected v, got %q ok=%v", v, ok)
	}
}

func TestExpiry(t *testing.T) {
	c := New[int](time.Millisecond)
	c.Set("k", 42)
	time.Sleep(5 * time.Millisecond)
	_, ok := c.Get("k")
	if ok {
		t.Fatal("expected expired entry")
	}
}

func TestGetOrLoad(t *testing.T) {
	c := New[string](time.Minute)
	var loads atomic.Int32
	load := func(context.Context) (string, error) {
		loads.Add(1)
		return "link", nil
	}

	v, err := c.GetOrLoad(context.Background(), "k", load)
	require.NoError(t, err)
	assert.Equal(t, "link", v)

	v, err = c.GetOrLoad(context.Background(), "k", load)
	require.NoError(t, err)
	assert.Equal(t, "link", v)
	assert.Equal(t, int32(1), loads.Load())
}

func TestGetOrLoadDoesNotCacheErrors(t *testing.T) {
	c := New[string](time.Minute)
	boom := errors.New("boom")

	_, err := c.GetOrLoad(context.Background(), "k", func(context.Context) (string, error) { return "", boom })
	assert.ErrorIs(t, err, boom)
	_, ok := c.Get("k")
	assert.False(t, ok)

	v, err := c.GetOrLoad(context.Background(), "k", func(context.Context) (string, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestGetOrLoadSharesInflight(t *testing.T) {
	c := New[int](time.Minute)
	release := make(chan struct{})
	var loads atomic.Int32

	var wg sync.WaitGroup
	results := make([]int, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, _ := c.GetOrLoad(context.Background(), "k", func(context.Context) (int, error) {
				loads.Add(1)
				<-release
				return 7, nil
			})
			results[i] = v
		}(i)
	}

	require.Eventually(t, func() bool { return loads.Load() == 1 }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), loads.Load())
	for _, v := range results {
		assert.Equal(t, 7, v)
	}
}

func TestGetOrLoadRecoversFromPanic(t *testing.T) {
	c := New[string](time.Minute)

	_, err := c.GetOrLoad(context.Background(), "k", func(context.Context) (string, error) {
		panic("upstream exploded")
	})
	require.ErrorIs(t, err, ErrLoadPanicked)
	assert.Contains(t, err.Error(), "upstream exploded")

	done := make(chan struct{})
	var v string
	go func() {
		defer close(done)
		v, err = c.GetOrLoad(context.Background(), "k", func(context.Context) (string, error) { return "ok", nil })
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("load after a panicking load did not return")
	}
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestGetOrLoadCancelledCallerDoesNotAbortSharedLoad(t *testing.T) {
	c := New[string](time.Minute)
	release := make(chan struct{})
	started := make(chan struct{})
	var loadErr atomic.Value

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := c.GetOrLoad(ctx, "k", func(lctx context.Context) (string, error) {
			close(started)
			<-release
			if err := lctx.Err(); err != nil {
				loadErr.Store(err)
			}
			return "link", nil
		})
		first <- err
	}()
	<-started

	second := make(chan string, 1)
	go func() {
		v, err := c.GetOrLoad(context.Background(), "k", func(context.Context) (string, error) {
			return "unexpected", nil
		})
		assert.NoError(t, err)
		second <- v
	}()

	cancel()
	assert.ErrorIs(t, <-first, context.Canceled)

	close(release)
	assert.Equal(t, "link", <-second)
	assert.Nil(t, loadErr.Load())

	v, ok := c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "link", v)
}

func TestPurgeExpired(t *testing.T) {
	c := New[int](20 * time.Millisecond)
	c.Set("old", 1)
	time.Sleep(30 * time.Millisecond)
	c.Set("fresh", 2)

	assert.Equal(t, 1, c.PurgeExpired())
	_, ok := c.Get("fresh")
	assert.True(t, ok)
	assert.Equal(t, 0, c.PurgeExpired())
}
