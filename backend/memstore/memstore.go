// Package memstore is an in-memory second tier for values evicted from a
// cache. Removed values are parked in a bounded TTL cache and handed back on
// the next miss, so short eviction/reload cycles skip the slow backend.
package memstore

import (
	"context"
	"time"

	"github.com/agilira/go-errors"
	"github.com/jellydator/ttlcache/v3"

	"github.com/IvanBrykalov/cellcache/backend"
	"github.com/IvanBrykalov/cellcache/cache"
)

// ErrCodeMiss is reported by Load for a key that is neither parked nor
// served by Options.Next.
const ErrCodeMiss errors.ErrorCode = "MEMSTORE_MISS"

// Options configures a Store. Zero values are safe.
type Options[K comparable, V any] struct {
	// Retention is how long a parked value is kept. <= 0 => 1 minute.
	Retention time.Duration
	// Capacity bounds the number of parked values; 0 => unbounded.
	Capacity uint64
	// Next is consulted on a miss. nil => Load fails with ErrCodeMiss.
	Next cache.Loader[K, V]
	// Spill receives values that leave this tier through TTL or capacity
	// while they still need writing. nil => they are dropped.
	Spill cache.Remover[K, V]
	// OnSpillError observes Spill failures.
	OnSpillError func(k K, err error)
}

// Store is safe for concurrent use. Call Close to stop its janitor.
type Store[K comparable, V any] struct {
	c   *ttlcache.Cache[K, V]
	opt Options[K, V]
}

var (
	_ cache.Loader[string, int]  = (*Store[string, int])(nil)
	_ cache.Remover[string, int] = (*Store[string, int])(nil)
)

// New starts the store.
func New[K comparable, V any](opt Options[K, V]) *Store[K, V] {
	if opt.Retention <= 0 {
		opt.Retention = time.Minute
	}
	opts := []ttlcache.Option[K, V]{
		ttlcache.WithTTL[K, V](opt.Retention),
		ttlcache.WithDisableTouchOnHit[K, V](),
	}
	if opt.Capacity > 0 {
		opts = append(opts, ttlcache.WithCapacity[K, V](opt.Capacity))
	}
	s := &Store[K, V]{c: ttlcache.New[K, V](opts...), opt: opt}

	if opt.Spill != nil {
		s.c.OnEviction(func(ctx context.Context, r ttlcache.EvictionReason, it *ttlcache.Item[K, V]) {
			if r == ttlcache.EvictionReasonDeleted || !backend.NeedsWrite(it.Value()) {
				return
			}
			if err := opt.Spill.OnRemoval(ctx, it.Key(), it.Value()); err != nil && opt.OnSpillError != nil {
				opt.OnSpillError(it.Key(), err)
			}
		})
	}
	go s.c.Start()
	return s
}

// Load returns the parked value of k, removing it from this tier, or asks
// Options.Next.
func (s *Store[K, V]) Load(ctx context.Context, k K) (V, error) {
	if it := s.c.Get(k); it != nil {
		v := it.Value()
		s.c.Delete(k)
		return v, nil
	}
	if s.opt.Next == nil {
		var zero V
		return zero, errors.NewWithContext(ErrCodeMiss, "value is not parked", map[string]interface{}{"key": k})
	}
	return s.opt.Next.Load(ctx, k)
}

// OnRemoval parks v.
func (s *Store[K, V]) OnRemoval(_ context.Context, k K, v V) error {
	s.c.Set(k, v, ttlcache.DefaultTTL)
	return nil
}

// Len returns the number of parked values.
func (s *Store[K, V]) Len() int { return s.c.Len() }

// Close stops the janitor and spills every parked value that needs writing.
func (s *Store[K, V]) Close() {
	s.c.Stop()
	if s.opt.Spill == nil {
		s.c.DeleteAll()
		return
	}
	ctx := context.Background()
	for k, it := range s.c.Items() {
		if backend.NeedsWrite(it.Value()) {
			if err := s.opt.Spill.OnRemoval(ctx, k, it.Value()); err != nil && s.opt.OnSpillError != nil {
				s.opt.OnSpillError(k, err)
			}
		}
	}
	s.c.DeleteAll()
}
