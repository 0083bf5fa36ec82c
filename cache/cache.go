package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/cellcache/internal/util"
	"github.com/IvanBrykalov/cellcache/policy/lru"
)

// Sharded is the concrete LoaderRemoverCache: a sharded key table where each
// key is absent, loading, resident or being removed. There is no global lock;
// all mutual exclusion is per shard and the loader/remover always run
// outside of it.
type Sharded[K comparable, V any] struct {
	shards []*shard[K, V]
	hash   func(K) uint64
	closed atomic.Bool

	opt Options[K, V]
	log *slog.Logger
}

var _ LoaderRemoverCache[string, int] = (*Sharded[string, int])(nil)

// New constructs a sharded cache with the provided Options.
// Defaults:
//   - nil Metrics  -> NoopMetrics
//   - nil Policy   -> LRU
//   - nil Logger   -> discard
//   - Shards <= 0  -> auto (see util.ShardCount); others round up to a power of two
func New[K comparable, V any](opt Options[K, V]) *Sharded[K, V] {
	if opt.Capacity <= 0 {
		panic("Capacity must be > 0")
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	if opt.Policy == nil {
		opt.Policy = lru.New[K, V]()
	}
	if opt.Logger == nil {
		opt.Logger = slog.New(slog.DiscardHandler)
	}
	if opt.Hash == nil {
		opt.Hash = util.Hash[K]
	}
	if opt.RemovalConcurrency <= 0 {
		opt.RemovalConcurrency = runtime.GOMAXPROCS(0)
	}

	sh := util.ShardCount(opt.Shards, opt.Capacity)

	perShardCap := (opt.Capacity + sh - 1) / sh // split capacity evenly (ceil)
	var perShardCost int64
	if opt.MaxCost > 0 {
		perShardCost = (opt.MaxCost + int64(sh) - 1) / int64(sh)
	}

	tot := &totals{}
	cs := make([]*shard[K, V], sh)
	for i := range cs {
		cs[i] = newShard(perShardCap, perShardCost, opt.Policy, opt.Metrics, tot)
	}

	return &Sharded[K, V]{
		shards: cs,
		hash:   opt.Hash,
		opt:    opt,
		log:    opt.Logger,
	}
}

// Get returns the resident value for k, loading it with loader on a miss.
//
// At most one loader runs per key at a time: concurrent callers for the same
// key wait for that load and all observe its value or its error. A failed
// load leaves the key absent. If the key is being removed, Get waits for the
// remover to finish and then loads a fresh value. The loader runs with the
// ctx of the caller that started it; a waiter whose ctx ends returns
// ctx.Err() without affecting the load.
func (c *Sharded[K, V]) Get(ctx context.Context, k K, loader Loader[K, V], remover Remover[K, V]) (V, error) {
	var zero V
	if c.closed.Load() {
		return zero, ErrClosed
	}
	s := c.getShard(k)
	for {
		s.mu.Lock()
		n, ok := s.m[k]
		if !ok {
			if c.closed.Load() {
				s.mu.Unlock()
				return zero, ErrClosed
			}
			if loader == nil {
				s.mu.Unlock()
				return zero, NewErrNoLoader(k)
			}
			n = newLoadingNode(k, remover)
			s.m[k] = n
			s.mu.Unlock()
			s.misses.Inc()
			c.opt.Metrics.Miss()
			return c.load(ctx, s, n, loader)
		}

		switch n.state {
		case stateResident:
			s.pol.OnGet(n)
			v := n.val
			s.mu.Unlock()
			s.hits.Inc()
			c.opt.Metrics.Hit()
			return v, nil

		case stateLoading:
			loaded := n.loaded
			s.mu.Unlock()
			if err := wait(ctx, loaded); err != nil {
				return zero, err
			}
			if n.err != nil {
				return zero, n.err
			}
			return n.val, nil

		default: // stateRemoving
			gone := n.gone
			s.mu.Unlock()
			if err := wait(ctx, gone); err != nil {
				return zero, err
			}
		}
	}
}

// GetIfPresent returns the value for k if it is resident or still being
// removed. It never loads.
func (c *Sharded[K, V]) GetIfPresent(k K) (V, bool) {
	var zero V
	if c.closed.Load() {
		return zero, false
	}
	s := c.getShard(k)
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.m[k]
	if !ok || n.state == stateLoading {
		return zero, false
	}
	if n.state == stateResident {
		s.pol.OnGet(n)
	}
	return n.val, true
}

// Invalidate removes k. If a load for k is in flight it waits for the load
// first; if a removal is already running it waits for that one. The remover
// error, if any, is returned after the entry has been discarded.
func (c *Sharded[K, V]) Invalidate(ctx context.Context, k K) error {
	s := c.getShard(k)
	for {
		s.mu.Lock()
		n, ok := s.m[k]
		if !ok {
			s.mu.Unlock()
			return nil
		}
		switch n.state {
		case stateLoading:
			loaded := n.loaded
			s.mu.Unlock()
			if err := wait(ctx, loaded); err != nil {
				return err
			}
		case stateRemoving:
			gone := n.gone
			s.mu.Unlock()
			return wait(ctx, gone)
		default:
			v := s.detachLocked(n, EvictInvalidate)
			s.reportSize()
			s.mu.Unlock()
			return c.finishRemoval(ctx, s, v)
		}
	}
}

// InvalidateIf removes all entries whose key satisfies pred. pred is called
// under a shard lock and must not call back into the cache.
func (c *Sharded[K, V]) InvalidateIf(ctx context.Context, pred func(K) bool) error {
	var keys []K
	for _, s := range c.shards {
		s.mu.Lock()
		for k := range s.m {
			if pred(k) {
				keys = append(keys, k)
			}
		}
		s.mu.Unlock()
	}
	return c.fanOut(keys, func(k K) error { return c.Invalidate(ctx, k) })
}

// InvalidateAll removes every entry.
func (c *Sharded[K, V]) InvalidateAll(ctx context.Context) error {
	return c.InvalidateIf(ctx, func(K) bool { return true })
}

// PersistAll runs every resident dirty entry through its remover and keeps it
// resident. Values that do not implement Dirty are always persisted; values
// implementing DirtyClearer are marked clean after a successful write.
func (c *Sharded[K, V]) PersistAll(ctx context.Context) error {
	var nodes []*node[K, V]
	for _, s := range c.shards {
		s.mu.Lock()
		for _, n := range s.m {
			if n.state == stateResident && n.remover != nil && isDirty(n.val) {
				nodes = append(nodes, n)
			}
		}
		s.mu.Unlock()
	}
	return runBounded(c.opt.RemovalConcurrency, nodes, func(n *node[K, V]) error { return c.persist(ctx, n) })
}

// Len returns the total number of resident entries across all shards.
func (c *Sharded[K, V]) Len() int {
	total := 0
	for _, s := range c.shards {
		total += s.residentLen()
	}
	return total
}

// Stats is a point-in-time snapshot of the cache counters.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64 // capacity and cost driven, not invalidations
	Entries   int
	Cost      int64
}

// Stats sums the per-shard counters. Concurrent operations may or may not
// be included.
func (c *Sharded[K, V]) Stats() Stats {
	var st Stats
	for _, s := range c.shards {
		st.Hits += s.hits.Load()
		st.Misses += s.misses.Load()
		st.Evictions += s.evicts.Load()
		s.mu.Lock()
		st.Entries += s.len
		st.Cost += s.cost
		s.mu.Unlock()
	}
	return st
}

// Close rejects further Gets and flushes every entry through its remover.
func (c *Sharded[K, V]) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.InvalidateAll(context.Background())
}

// ---- helpers ----

// load runs loader for a node this goroutine just inserted in the loading state.
func (c *Sharded[K, V]) load(ctx context.Context, s *shard[K, V], n *node[K, V], loader Loader[K, V]) (V, error) {
	start := time.Now()
	v, err := callLoader(ctx, loader, n.key)
	c.opt.Metrics.Load(time.Since(start), err)

	if err != nil {
		s.mu.Lock()
		n.err = NewErrLoadFailed(n.key, err)
		s.dropLocked(n)
		close(n.loaded)
		s.mu.Unlock()
		var zero V
		return zero, n.err
	}

	s.mu.Lock()
	victims := s.publishLocked(n, v, c.costOf(v))
	close(n.loaded)
	s.mu.Unlock()

	// Victims belong to other keys; their write-back must not fail because
	// this caller gave up.
	wctx := context.WithoutCancel(ctx)
	for _, vi := range victims {
		if err := c.finishRemoval(wctx, s, vi); err != nil && c.opt.OnRemovalError != nil {
			c.opt.OnRemovalError(vi.n.key, vi.reason, err)
		}
	}
	return v, nil
}

// finishRemoval runs the remover of a detached node and then discards it.
// The node stays observable through GetIfPresent until the remover returned.
func (c *Sharded[K, V]) finishRemoval(ctx context.Context, s *shard[K, V], vi victim[K, V]) error {
	n := vi.n
	var err error
	if n.remover != nil {
		n.wmu.Lock()
		err = callRemover(ctx, n.remover, n.key, n.val)
		n.wmu.Unlock()
	}

	s.mu.Lock()
	s.dropLocked(n)
	close(n.gone)
	s.mu.Unlock()

	if err != nil {
		return c.removalFailed(n.key, vi.reason, err)
	}
	return nil
}

// persist checkpoints a single node unless it already left the resident state.
func (c *Sharded[K, V]) persist(ctx context.Context, n *node[K, V]) error {
	n.wmu.Lock()
	defer n.wmu.Unlock()

	s := c.getShard(n.key)
	s.mu.Lock()
	resident := n.state == stateResident
	s.mu.Unlock()
	if !resident || !isDirty(n.val) {
		return nil
	}

	if err := callRemover(ctx, n.remover, n.key, n.val); err != nil {
		return c.removalFailed(n.key, EvictPersist, err)
	}
	if dc, ok := any(n.val).(DirtyClearer); ok {
		dc.ClearDirty()
	}
	return nil
}

func (c *Sharded[K, V]) removalFailed(k K, reason EvictReason, cause error) error {
	err := NewErrRemovalFailed(k, reason, cause)
	c.opt.Metrics.RemovalFailed(reason)
	c.log.Warn("cache removal failed",
		slog.Any("key", k),
		slog.String("reason", reason.String()),
		slog.String("error", cause.Error()),
	)
	return err
}

// runBounded applies fn to every item with bounded concurrency and joins all errors.
func runBounded[T any](limit int, items []T, fn func(T) error) error {
	if len(items) == 0 {
		return nil
	}
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	g.SetLimit(limit)
	for _, it := range items {
		g.Go(func() error {
			if err := fn(it); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

func (c *Sharded[K, V]) fanOut(keys []K, fn func(K) error) error {
	return runBounded(c.opt.RemovalConcurrency, keys, fn)
}

// getShard picks a shard by hashing the key and masking with len-1.
// len(c.shards) is guaranteed to be a power of two.
func (c *Sharded[K, V]) getShard(k K) *shard[K, V] {
	return c.shards[util.ShardIndex(c.hash(k), len(c.shards))]
}

// costOf computes the per-entry cost (clamped to int32 range).
func (c *Sharded[K, V]) costOf(v V) int32 {
	if c.opt.Cost == nil {
		return 0
	}
	iv := c.opt.Cost(v)
	if iv < 0 {
		iv = 0
	}
	if iv > math.MaxInt32 {
		iv = math.MaxInt32
	}
	return int32(iv)
}

func wait(ctx context.Context, ch <-chan struct{}) error {
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func isDirty[V any](v V) bool {
	if d, ok := any(v).(Dirty); ok {
		return d.IsDirty()
	}
	return true
}

// callLoader converts a loader panic into an error so waiters are released.
func callLoader[K comparable, V any](ctx context.Context, l Loader[K, V], k K) (v V, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("loader panic: %v", r)
		}
	}()
	return l.Load(ctx, k)
}

func callRemover[K comparable, V any](ctx context.Context, r Remover[K, V], k K, v V) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("remover panic: %v", p)
		}
	}()
	return r.OnRemoval(ctx, k, v)
}
