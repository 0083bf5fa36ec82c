// Package volatile implements cache.VolatileLoaderCache on top of a
// cache.LoaderCache.
//
// Valid values live in the backing cache. While a background load for a key
// is pending, the placeholder produced by VolatileLoader.CreateInvalid is
// kept in a side table and handed to every non-blocking Get for that key.
// Once the load completes the placeholder is dropped and the backing cache
// serves the loaded value.
package volatile

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agilira/go-timecache"
	"golang.org/x/time/rate"

	"github.com/IvanBrykalov/cellcache/cache"
	"github.com/IvanBrykalov/cellcache/internal/fetchqueue"
	"github.com/IvanBrykalov/cellcache/internal/singleflight"
)

// pending is the placeholder of one key together with its scheduled load.
// cancelled and propagate are guarded by Cache.mu.
type pending[K comparable, V cache.VolatileValue] struct {
	key         K
	placeholder V
	loader      cache.VolatileLoader[K, V]

	priority  int
	front     bool
	propagate bool
	cancelled bool

	queued int64 // cached nanotime of the enqueue, for queue-wait logging

	taken atomic.Bool   // a worker owns the load
	done  chan struct{} // closed by the owning worker
}

// Cache is a VolatileLoaderCache. Create it with New and stop it with Close.
type Cache[K comparable, V cache.VolatileValue] struct {
	backing cache.LoaderCache[K, V]

	mu      sync.Mutex
	pending map[K]*pending[K, V]

	create  singleflight.Group[K, V]
	queue   *fetchqueue.Queue[*pending[K, V]]
	limiter *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool

	log *slog.Logger
}

var _ cache.VolatileLoaderCache[string, cache.VolatileValue] = (*Cache[string, cache.VolatileValue])(nil)

// New starts opt.Workers background loaders over backing.
func New[K comparable, V cache.VolatileValue](backing cache.LoaderCache[K, V], opt Options) *Cache[K, V] {
	opt = opt.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	c := &Cache[K, V]{
		backing: backing,
		pending: make(map[K]*pending[K, V]),
		queue:   fetchqueue.New[*pending[K, V]](opt.Priorities),
		limiter: rate.NewLimiter(opt.FetchRate, opt.FetchBurst),
		ctx:     ctx,
		cancel:  cancel,
		log:     opt.Logger,
	}
	c.wg.Add(opt.Workers)
	for i := 0; i < opt.Workers; i++ {
		go c.worker()
	}
	return c
}

// GetIfPresent returns the resident value for k or, failing that, the
// placeholder of a pending background load. It never loads.
func (c *Cache[K, V]) GetIfPresent(k K) (V, bool) {
	if v, ok := c.backing.GetIfPresent(k); ok {
		return v, true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if p := c.pending[k]; p != nil {
		return p.placeholder, true
	}
	var zero V
	return zero, false
}

// Get returns the value for k as allowed by hints:
//   - Blocking loads synchronously through the backing cache.
//   - Volatile returns the resident value, or the pending placeholder, or a
//     new placeholder after scheduling exactly one background load.
//   - DontLoad returns the resident value or the pending placeholder; for an
//     absent key it returns a fresh placeholder that is not stored.
func (c *Cache[K, V]) Get(ctx context.Context, k K, loader cache.VolatileLoader[K, V], hints cache.CacheHints) (V, error) {
	var zero V
	if c.closed.Load() {
		return zero, cache.ErrClosed
	}
	if v, ok := c.backing.GetIfPresent(k); ok {
		return v, nil
	}

	switch hints.Strategy {
	case cache.Blocking:
		return c.getBlocking(ctx, k, loader, hints)
	case cache.DontLoad:
		if v, ok := c.peek(k, hints); ok {
			return v, nil
		}
		if loader == nil {
			return zero, cache.NewErrNoLoader(k)
		}
		return loader.CreateInvalid(ctx, k)
	default:
		if v, ok := c.peek(k, hints); ok {
			return v, nil
		}
		if loader == nil {
			return zero, cache.NewErrNoLoader(k)
		}
		v, err := c.create.Do(ctx, k, func() (V, error) { return c.schedule(ctx, k, loader, hints) })
		return v, err
	}
}

// peek returns the pending placeholder or, if the background load published
// in the meantime, the resident value. Under c.mu the two cannot both miss
// a completed load. A more urgent request re-queues the pending load.
func (c *Cache[K, V]) peek(k K, hints cache.CacheHints) (V, bool) {
	c.mu.Lock()
	p := c.pending[k]
	if p == nil {
		v, ok := c.backing.GetIfPresent(k)
		c.mu.Unlock()
		return v, ok
	}
	p.propagate = p.propagate || hints.PropagateDirty
	requeue := hints.Strategy == cache.Volatile && !p.taken.Load() &&
		(hints.Priority < p.priority || (hints.EnqueueToFront && !p.front))
	if requeue {
		p.priority = min(p.priority, hints.Priority)
		p.front = p.front || hints.EnqueueToFront
	}
	c.mu.Unlock()

	if requeue {
		// The older queue slot is skipped once either copy is taken.
		c.queue.Push(p, hints.Priority, hints.EnqueueToFront)
	}
	return p.placeholder, true
}

// schedule creates the placeholder for k and queues its background load.
// Callers coalesce on c.create so CreateInvalid runs once per miss.
func (c *Cache[K, V]) schedule(ctx context.Context, k K, loader cache.VolatileLoader[K, V], hints cache.CacheHints) (V, error) {
	if v, ok := c.peek(k, hints); ok {
		return v, nil
	}
	ph, err := loader.CreateInvalid(ctx, k)
	if err != nil {
		return ph, err
	}

	c.mu.Lock()
	if p := c.pending[k]; p != nil {
		c.mu.Unlock()
		return p.placeholder, nil
	}
	if v, ok := c.backing.GetIfPresent(k); ok {
		c.mu.Unlock()
		return v, nil
	}
	p := &pending[K, V]{
		key:         k,
		placeholder: ph,
		loader:      loader,
		priority:    hints.Priority,
		front:       hints.EnqueueToFront,
		propagate:   hints.PropagateDirty,
		queued:      timecache.CachedTimeNano(),
		done:        make(chan struct{}),
	}
	c.pending[k] = p
	c.mu.Unlock()

	if !c.queue.Push(p, hints.Priority, hints.EnqueueToFront) {
		c.mu.Lock()
		if c.pending[k] == p {
			delete(c.pending, k)
		}
		c.mu.Unlock()
		var zero V
		return zero, cache.ErrClosed
	}
	return ph, nil
}

func (c *Cache[K, V]) getBlocking(ctx context.Context, k K, loader cache.VolatileLoader[K, V], hints cache.CacheHints) (V, error) {
	var zero V
	if loader == nil {
		return zero, cache.NewErrNoLoader(k)
	}
	if hints.PropagateDirty {
		c.mu.Lock()
		if p := c.pending[k]; p != nil {
			p.propagate = true
		}
		c.mu.Unlock()
	}
	v, err := c.backing.Get(ctx, k, loader)
	if err != nil {
		return zero, err
	}
	c.resolve(k, nil, v)
	return v, nil
}

// resolve drops the placeholder of k after a successful load. If want is
// non-nil only that pending record is resolved.
func (c *Cache[K, V]) resolve(k K, want *pending[K, V], v V) {
	c.mu.Lock()
	p := c.pending[k]
	if p == nil || (want != nil && p != want) {
		c.mu.Unlock()
		return
	}
	if p.propagate {
		propagateDirty(p.placeholder, v)
	}
	delete(c.pending, k)
	c.mu.Unlock()
}

func propagateDirty[V any](from, to V) {
	src, ok := any(from).(cache.Dirty)
	if !ok || !src.IsDirty() {
		return
	}
	if dst, ok := any(to).(cache.Dirty); ok {
		dst.SetDirty()
	}
}

// Invalidate cancels a pending background load of k and removes the
// resident value. If a worker already started that load, Invalidate waits
// for it so the result cannot stay resident afterwards.
func (c *Cache[K, V]) Invalidate(ctx context.Context, k K) error {
	c.mu.Lock()
	p := c.pending[k]
	if p != nil {
		p.cancelled = true
		delete(c.pending, k)
	}
	c.mu.Unlock()

	if p != nil && p.taken.Load() {
		select {
		case <-p.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return c.backing.Invalidate(ctx, k)
}

// InvalidateAll cancels every pending load and empties the backing cache.
func (c *Cache[K, V]) InvalidateAll(ctx context.Context) error {
	c.mu.Lock()
	var running []*pending[K, V]
	for k, p := range c.pending {
		p.cancelled = true
		if p.taken.Load() {
			running = append(running, p)
		}
		delete(c.pending, k)
	}
	c.mu.Unlock()

	for _, p := range running {
		select {
		case <-p.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return c.backing.InvalidateAll(ctx)
}

// PersistAll checkpoints the backing cache. Placeholders are never persisted.
func (c *Cache[K, V]) PersistAll(ctx context.Context) error { return c.backing.PersistAll(ctx) }

// ClearQueue drops all background loads that no worker has started yet.
// Their placeholders are forgotten; the next non-blocking Get schedules anew.
func (c *Cache[K, V]) ClearQueue() int {
	dropped := 0
	for _, p := range c.queue.Clear() {
		if p.taken.Load() {
			continue
		}
		c.mu.Lock()
		if c.pending[p.key] == p {
			delete(c.pending, p.key)
			dropped++
		}
		c.mu.Unlock()
	}
	return dropped
}

// Pending returns the number of keys with a placeholder awaiting its load.
func (c *Cache[K, V]) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// SetFetchRate changes the background load budget at runtime.
// r <= 0 removes the limit.
func (c *Cache[K, V]) SetFetchRate(r rate.Limit, burst int) {
	if r <= 0 {
		r = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	c.limiter.SetBurst(burst)
	c.limiter.SetLimit(r)
}

// Close stops the workers. Loads in progress see a cancelled context. The
// backing cache is left open.
func (c *Cache[K, V]) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.cancel()
	c.queue.Close()
	c.wg.Wait()
	return nil
}

func (c *Cache[K, V]) worker() {
	defer c.wg.Done()
	for {
		p, err := c.queue.Take(c.ctx)
		if err != nil {
			return
		}
		if !p.taken.CompareAndSwap(false, true) {
			continue // duplicate slot of a re-queued load
		}
		c.fetch(p)
	}
}

// fetch runs one background load. p.done is closed on every path.
func (c *Cache[K, V]) fetch(p *pending[K, V]) {
	defer close(p.done)

	if c.isCancelled(p) {
		return
	}
	if err := c.limiter.Wait(c.ctx); err != nil {
		return
	}
	if c.isCancelled(p) {
		return
	}

	c.log.Debug("background load started",
		slog.Any("key", p.key),
		slog.Int("priority", p.priority),
		slog.Duration("queued", time.Duration(timecache.CachedTimeNano()-p.queued)),
	)
	v, err := c.backing.Get(c.ctx, p.key, p.loader)
	if err != nil {
		c.log.Warn("background load failed",
			slog.Any("key", p.key),
			slog.String("error", err.Error()),
		)
		c.mu.Lock()
		if c.pending[p.key] == p {
			delete(c.pending, p.key)
		}
		c.mu.Unlock()
		return
	}
	c.resolve(p.key, p, v)
}

func (c *Cache[K, V]) isCancelled(p *pending[K, V]) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return p.cancelled
}
