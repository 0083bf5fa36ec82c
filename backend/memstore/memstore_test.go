package memstore

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agilira/go-errors"
	"github.com/stretchr/testify/require"

	"github.com/IvanBrykalov/cellcache/cache"
)

type blob struct {
	n     int
	dirty bool
}

func (b *blob) IsDirty() bool { return b.dirty }
func (b *blob) SetDirty()     { b.dirty = true }

// Values evicted from the first tier come back from memory without touching
// the next tier.
func TestStore_SecondTier(t *testing.T) {
	t.Parallel()

	var slow atomic.Int64
	s := New(Options[int, *blob]{
		Next: cache.LoaderFunc[int, *blob](func(_ context.Context, k int) (*blob, error) {
			slow.Add(1)
			return &blob{n: k}, nil
		}),
	})
	t.Cleanup(s.Close)

	c := cache.New[int, *blob](cache.Options[int, *blob]{Capacity: 1, Shards: 1})
	t.Cleanup(func() { _ = c.Close() })
	blobs := cache.WithLoader(cache.WithRemovalListener[int, *blob](c, s), cache.Loader[int, *blob](s))

	ctx := context.Background()
	first, err := blobs.Get(ctx, 1)
	require.NoError(t, err)
	_, err = blobs.Get(ctx, 2) // parks 1
	require.NoError(t, err)
	require.Equal(t, 1, s.Len())

	again, err := blobs.Get(ctx, 1) // parks 2, unparks 1
	require.NoError(t, err)
	require.Same(t, first, again)
	require.EqualValues(t, 2, slow.Load())
	require.Equal(t, 1, s.Len())
}

func TestStore_MissWithoutNext(t *testing.T) {
	t.Parallel()

	s := New(Options[string, int]{})
	t.Cleanup(s.Close)

	_, err := s.Load(context.Background(), "x")
	require.True(t, errors.HasCode(err, ErrCodeMiss))
}

// Dirty values that expire out of this tier are spilled; clean ones are not.
func TestStore_SpillOnExpiry(t *testing.T) {
	t.Parallel()

	var (
		mu      sync.Mutex
		spilled []int
	)
	s := New(Options[int, *blob]{
		Retention: 10 * time.Millisecond,
		Spill: cache.RemoverFunc[int, *blob](func(_ context.Context, k int, _ *blob) error {
			mu.Lock()
			defer mu.Unlock()
			spilled = append(spilled, k)
			return nil
		}),
	})
	t.Cleanup(s.Close)

	ctx := context.Background()
	require.NoError(t, s.OnRemoval(ctx, 1, &blob{n: 1, dirty: true}))
	require.NoError(t, s.OnRemoval(ctx, 2, &blob{n: 2}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(spilled) == 1 && s.Len() == 0
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []int{1}, spilled)
}

func TestStore_CloseSpillsDirty(t *testing.T) {
	t.Parallel()

	var spilled atomic.Int64
	s := New(Options[int, *blob]{
		Spill: cache.RemoverFunc[int, *blob](func(context.Context, int, *blob) error {
			spilled.Add(1)
			return nil
		}),
	})
	ctx := context.Background()
	require.NoError(t, s.OnRemoval(ctx, 1, &blob{dirty: true}))
	require.NoError(t, s.OnRemoval(ctx, 2, &blob{}))
	s.Close()
	require.Eventually(t, func() bool { return spilled.Load() == 1 }, time.Second, time.Millisecond)
}
