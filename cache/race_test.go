package cache

import (
	"context"
	"math/rand"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// A mixed workload of concurrent Get/Invalidate/InvalidateIf on random keys
// with a small capacity so evictions and removals overlap with loads.
// Should pass under `-race` without detector reports.
func TestRace_Mixed(t *testing.T) {
	c := New[int, *cell](Options[int, *cell]{
		Capacity: 256,
		Shards:   8,
	})
	t.Cleanup(func() { _ = c.Close() })

	var live sync.Map // key -> loads minus removals, must stay in {0,1}
	var violations atomic.Int64

	loader := LoaderFunc[int, *cell](func(_ context.Context, k int) (*cell, error) {
		n, _ := live.LoadOrStore(k, new(atomic.Int64))
		if n.(*atomic.Int64).Add(1) > 1 {
			violations.Add(1)
		}
		return &cell{v: k}, nil
	})
	remover := RemoverFunc[int, *cell](func(_ context.Context, k int, _ *cell) error {
		n, _ := live.Load(k)
		n.(*atomic.Int64).Add(-1)
		return nil
	})

	workers := 4 * runtime.GOMAXPROCS(0)
	keyspace := 2_000
	deadline := time.Now().Add(time.Second)
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(id int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(id)*9973))
			for time.Now().Before(deadline) {
				k := r.Intn(keyspace)
				switch r.Intn(100) {
				case 0, 1, 2, 3, 4: // ~5%: Invalidate
					_ = c.Invalidate(ctx, k)
				case 5: // ~1%: InvalidateIf
					_ = c.InvalidateIf(ctx, func(x int) bool { return x == k })
				case 6, 7, 8, 9: // ~4%: GetIfPresent
					c.GetIfPresent(k)
				default:
					_, _ = c.Get(ctx, k, loader, remover)
				}
			}
		}(w)
	}
	wg.Wait()

	if n := violations.Load(); n != 0 {
		t.Fatalf("a key was loaded while an earlier entry for it was still alive (%d times)", n)
	}
}

// One hundred goroutines Get the same key concurrently; the loader runs once.
func TestRace_SameKey(t *testing.T) {
	var calls int64

	c := New[string, string](Options[string, string]{Capacity: 1024})
	t.Cleanup(func() { _ = c.Close() })

	loader := LoaderFunc[string, string](func(_ context.Context, k string) (string, error) {
		atomic.AddInt64(&calls, 1)
		time.Sleep(2 * time.Millisecond) // simulate I/O
		return "v:" + k, nil
	})

	const goroutines = 100
	key := "same-key"

	start := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(goroutines)

	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			<-start
			v, err := c.Get(context.Background(), key, loader, nil)
			if err != nil {
				t.Errorf("Get error: %v", err)
				return
			}
			if v != "v:"+key {
				t.Errorf("unexpected value: %q", v)
			}
		}()
	}

	close(start)
	wg.Wait()

	if got := atomic.LoadInt64(&calls); got != 1 {
		t.Fatalf("loader should run exactly once, got %d", got)
	}
}
