package volatile

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/IvanBrykalov/cellcache/cache"
)

// tile is a volatile, dirty-tracking test value.
type tile struct {
	key   int
	valid bool
	dirty atomic.Bool
}

func (t *tile) IsValid() bool { return t.valid }
func (t *tile) IsDirty() bool { return t.dirty.Load() }
func (t *tile) SetDirty()     { t.dirty.Store(true) }
func (t *tile) ClearDirty()   { t.dirty.Store(false) }

// tileLoader records loads in order and can hold them until released.
type tileLoader struct {
	mu    sync.Mutex
	order []int
	loads atomic.Int64
	gate  chan struct{} // nil: no blocking
	fail  error
}

func (l *tileLoader) Load(ctx context.Context, k int) (*tile, error) {
	l.loads.Add(1)
	l.mu.Lock()
	l.order = append(l.order, k)
	l.mu.Unlock()
	if l.gate != nil {
		select {
		case <-l.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if l.fail != nil {
		return nil, l.fail
	}
	return &tile{key: k, valid: true}, nil
}

func (l *tileLoader) CreateInvalid(_ context.Context, k int) (*tile, error) {
	return &tile{key: k}, nil
}

func (l *tileLoader) loadOrder() []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]int(nil), l.order...)
}

func newVolatile(t *testing.T, opt Options) *Cache[int, *tile] {
	t.Helper()
	store := cache.New[int, *tile](cache.Options[int, *tile]{Capacity: 256})
	c := New[int, *tile](cache.WithRemovalListener[int, *tile](store, nil), opt)
	t.Cleanup(func() {
		_ = c.Close()
		_ = store.Close()
	})
	return c
}

func TestVolatile_DontLoadNeverLoads(t *testing.T) {
	t.Parallel()

	c := newVolatile(t, Options{Workers: 2})
	l := &tileLoader{}

	v, err := c.Get(context.Background(), 7, l, cache.PeekHints)
	require.NoError(t, err)
	require.False(t, v.IsValid())
	require.Zero(t, l.loads.Load())
	require.Zero(t, c.Pending())

	_, ok := c.GetIfPresent(7)
	require.False(t, ok, "a peek must not store its placeholder")
}

func TestVolatile_BackgroundLoadOnce(t *testing.T) {
	t.Parallel()

	c := newVolatile(t, Options{Workers: 4})
	l := &tileLoader{gate: make(chan struct{})}
	ctx := context.Background()

	first, err := c.Get(ctx, 1, l, cache.VolatileHints)
	require.NoError(t, err)
	require.False(t, first.IsValid())

	for i := 0; i < 50; i++ {
		v, err := c.Get(ctx, 1, l, cache.VolatileHints)
		require.NoError(t, err)
		require.Same(t, first, v, "pending gets share one placeholder")
	}
	peek, err := c.Get(ctx, 1, l, cache.PeekHints)
	require.NoError(t, err)
	require.Same(t, first, peek)
	got, ok := c.GetIfPresent(1)
	require.True(t, ok)
	require.Same(t, first, got)

	close(l.gate)
	require.Eventually(t, func() bool {
		v, _ := c.Get(ctx, 1, l, cache.VolatileHints)
		return v.IsValid()
	}, time.Second, time.Millisecond)
	require.EqualValues(t, 1, l.loads.Load())
	require.Zero(t, c.Pending())
}

// Once a valid value was observed, later gets never see an invalid one.
func TestVolatile_Monotonic(t *testing.T) {
	t.Parallel()

	c := newVolatile(t, Options{Workers: 2})
	l := &tileLoader{}
	ctx := context.Background()

	seenValid := false
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		v, err := c.Get(ctx, 3, l, cache.VolatileHints)
		require.NoError(t, err)
		if seenValid {
			require.True(t, v.IsValid(), "regressed from valid to invalid")
		}
		if v.IsValid() {
			if seenValid {
				break
			}
			seenValid = true
		}
	}
	require.True(t, seenValid)
	require.EqualValues(t, 1, l.loads.Load())
}

func TestVolatile_BlockingJoinsBackgroundLoad(t *testing.T) {
	t.Parallel()

	c := newVolatile(t, Options{Workers: 1})
	l := &tileLoader{gate: make(chan struct{})}
	ctx := context.Background()

	ph, err := c.Get(ctx, 5, l, cache.VolatileHints)
	require.NoError(t, err)
	require.False(t, ph.IsValid())

	res := make(chan *tile, 1)
	go func() {
		v, err := c.Get(ctx, 5, l, cache.BlockingHints)
		if err != nil {
			res <- nil
			return
		}
		res <- v
	}()

	time.Sleep(10 * time.Millisecond)
	close(l.gate)
	v := <-res
	require.NotNil(t, v)
	require.True(t, v.IsValid())
	require.EqualValues(t, 1, l.loads.Load())
	require.Eventually(t, func() bool { return c.Pending() == 0 }, time.Second, time.Millisecond)
}

func TestVolatile_PropagateDirty(t *testing.T) {
	t.Parallel()

	for _, propagate := range []bool{true, false} {
		c := newVolatile(t, Options{Workers: 1})
		l := &tileLoader{gate: make(chan struct{})}
		ctx := context.Background()
		hints := cache.CacheHints{Strategy: cache.Volatile, PropagateDirty: propagate}

		ph, err := c.Get(ctx, 9, l, hints)
		require.NoError(t, err)
		ph.SetDirty() // consumer wrote into the placeholder
		close(l.gate)

		var v *tile
		require.Eventually(t, func() bool {
			v, _ = c.Get(ctx, 9, l, hints)
			return v.IsValid()
		}, time.Second, time.Millisecond)
		require.Eventually(t, func() bool { return c.Pending() == 0 }, time.Second, time.Millisecond)
		require.Equal(t, propagate, v.IsDirty())
	}
}

// blockWorker occupies the single worker with key -1 until the returned
// release func is called.
func blockWorker(t *testing.T, c *Cache[int, *tile], l *tileLoader) {
	t.Helper()
	_, err := c.Get(context.Background(), -1, l, cache.VolatileHints)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(l.loadOrder()) == 1 }, time.Second, time.Millisecond)
}

func TestVolatile_PriorityOrder(t *testing.T) {
	t.Parallel()

	c := newVolatile(t, Options{Workers: 1, Priorities: 3})
	l := &tileLoader{gate: make(chan struct{})}
	ctx := context.Background()
	blockWorker(t, c, l)

	for _, r := range []struct {
		k     int
		hints cache.CacheHints
	}{
		{10, cache.CacheHints{Priority: 2}},
		{11, cache.CacheHints{Priority: 0}},
		{12, cache.CacheHints{Priority: 1}},
		{13, cache.CacheHints{Priority: 1, EnqueueToFront: true}},
		{14, cache.CacheHints{Priority: 2}},
		{14, cache.CacheHints{Priority: 0}}, // escalates the pending load
	} {
		_, err := c.Get(ctx, r.k, l, r.hints)
		require.NoError(t, err)
	}

	close(l.gate)
	require.Eventually(t, func() bool { return c.Pending() == 0 }, time.Second, time.Millisecond)
	require.Equal(t, []int{-1, 11, 14, 13, 12, 10}, l.loadOrder())
}

func TestVolatile_InvalidateCancelsQueuedLoad(t *testing.T) {
	t.Parallel()

	c := newVolatile(t, Options{Workers: 1})
	l := &tileLoader{gate: make(chan struct{})}
	ctx := context.Background()
	blockWorker(t, c, l)

	_, err := c.Get(ctx, 20, l, cache.VolatileHints)
	require.NoError(t, err)
	require.NoError(t, c.Invalidate(ctx, 20))
	_, ok := c.GetIfPresent(20)
	require.False(t, ok)

	close(l.gate)
	require.Eventually(t, func() bool { return c.Pending() == 0 }, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	require.Equal(t, []int{-1}, l.loadOrder())
	_, ok = c.GetIfPresent(20)
	require.False(t, ok)
}

// Invalidating a key whose load already started waits for that load and
// leaves nothing resident.
func TestVolatile_InvalidateRunningLoad(t *testing.T) {
	t.Parallel()

	c := newVolatile(t, Options{Workers: 1})
	l := &tileLoader{gate: make(chan struct{})}
	ctx := context.Background()
	blockWorker(t, c, l)

	done := make(chan error, 1)
	go func() { done <- c.Invalidate(ctx, -1) }()
	time.Sleep(10 * time.Millisecond)
	close(l.gate)
	require.NoError(t, <-done)

	_, ok := c.GetIfPresent(-1)
	require.False(t, ok)
}

func TestVolatile_InvalidateAll(t *testing.T) {
	t.Parallel()

	c := newVolatile(t, Options{Workers: 2})
	l := &tileLoader{}
	ctx := context.Background()
	for k := 0; k < 5; k++ {
		v, err := c.Get(ctx, k, l, cache.BlockingHints)
		require.NoError(t, err)
		require.True(t, v.IsValid())
	}
	require.NoError(t, c.InvalidateAll(ctx))
	for k := 0; k < 5; k++ {
		_, ok := c.GetIfPresent(k)
		require.False(t, ok)
	}
}

func TestVolatile_ClearQueue(t *testing.T) {
	t.Parallel()

	c := newVolatile(t, Options{Workers: 1})
	l := &tileLoader{gate: make(chan struct{})}
	ctx := context.Background()
	blockWorker(t, c, l)

	for k := 30; k < 33; k++ {
		_, err := c.Get(ctx, k, l, cache.VolatileHints)
		require.NoError(t, err)
	}
	require.Equal(t, 4, c.Pending())
	require.Equal(t, 3, c.ClearQueue())
	require.Equal(t, 1, c.Pending(), "the running load is not cleared")
	close(l.gate)
}

func TestVolatile_BackgroundFailureDropsPlaceholder(t *testing.T) {
	t.Parallel()

	c := newVolatile(t, Options{Workers: 1})
	l := &tileLoader{fail: errors.New("unreadable")}
	ctx := context.Background()

	_, err := c.Get(ctx, 40, l, cache.VolatileHints)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return c.Pending() == 0 }, time.Second, time.Millisecond)

	_, err = c.Get(ctx, 40, l, cache.BlockingHints)
	require.Error(t, err)
	require.True(t, cache.IsLoadError(err))
}

func TestVolatile_FetchRate(t *testing.T) {
	t.Parallel()

	c := newVolatile(t, Options{Workers: 1, FetchRate: 1e-6, FetchBurst: 1})
	l := &tileLoader{}
	ctx := context.Background()

	for k := 50; k < 52; k++ {
		_, err := c.Get(ctx, k, l, cache.VolatileHints)
		require.NoError(t, err)
	}
	require.Eventually(t, func() bool { return l.loads.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	require.EqualValues(t, 1, l.loads.Load(), "second load must wait for a token")

	c2 := newVolatile(t, Options{Workers: 1, FetchRate: 1e-6})
	c2.SetFetchRate(0, 0)
	for k := 50; k < 53; k++ {
		_, err := c2.Get(ctx, k, l, cache.VolatileHints)
		require.NoError(t, err)
	}
	require.Eventually(t, func() bool { return c2.Pending() == 0 }, time.Second, time.Millisecond)
}

func TestVolatile_Closed(t *testing.T) {
	t.Parallel()

	c := newVolatile(t, Options{Workers: 1})
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	_, err := c.Get(context.Background(), 1, &tileLoader{}, cache.VolatileHints)
	require.ErrorIs(t, err, cache.ErrClosed)
}

func TestVolatile_Adapters(t *testing.T) {
	t.Parallel()

	c := newVolatile(t, Options{Workers: 1})
	l := &tileLoader{}

	bound := cache.WithVolatileLoader[int, *tile](c, l)
	u := cache.UncheckedVolatile(bound)
	require.False(t, u.Get(60, cache.PeekHints).IsValid())
	require.True(t, u.Get(60, cache.BlockingHints).IsValid())

	bimap := cache.NewKeyBimap(
		func(k string) int { return len(k) + 100 },
		func(l int) string { return string(make([]byte, l-100)) },
	)
	mapped := cache.MapVolatileLoaderCacheKeys[string, int, *tile](c, bimap)
	v, err := mapped.Get(context.Background(), "\x00\x00", volatileLoaderFunc(func(k string) *tile {
		return &tile{key: len(k), valid: true}
	}), cache.BlockingHints)
	require.NoError(t, err)
	require.Equal(t, 2, v.key, "the loader sees the external key")

	ul := cache.UncheckedVolatileLoader[int, *tile](c)
	require.Panics(t, func() { ul.Get(61, &tileLoader{fail: errors.New("x")}, cache.BlockingHints) })
}

type volatileLoaderFunc func(k string) *tile

func (f volatileLoaderFunc) Load(_ context.Context, k string) (*tile, error) { return f(k), nil }
func (f volatileLoaderFunc) CreateInvalid(_ context.Context, k string) (*tile, error) {
	return &tile{key: len(k)}, nil
}
