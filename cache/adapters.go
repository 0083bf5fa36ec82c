package cache

import "context"

// Adapters in this file bind a loader or remover to a cache that takes it per
// call. They hold no state besides the bound value and add no locking.

type boundLoader[K comparable, V any] struct {
	Base[K, V]
	c LoaderCache[K, V]
	l Loader[K, V]
}

// WithLoader turns c into a self-populating Cache whose misses go to loader.
func WithLoader[K comparable, V any](c LoaderCache[K, V], loader Loader[K, V]) Cache[K, V] {
	return boundLoader[K, V]{Base: c, c: c, l: loader}
}

func (b boundLoader[K, V]) Get(ctx context.Context, k K) (V, error) { return b.c.Get(ctx, k, b.l) }

type boundRemoverLoader[K comparable, V any] struct {
	Base[K, V]
	c LoaderRemoverCache[K, V]
	l Loader[K, V]
}

// WithRemoverLoader binds loader to c, leaving the remover per call.
func WithRemoverLoader[K comparable, V any](c LoaderRemoverCache[K, V], loader Loader[K, V]) RemoverCache[K, V] {
	return boundRemoverLoader[K, V]{Base: c, c: c, l: loader}
}

func (b boundRemoverLoader[K, V]) Get(ctx context.Context, k K, remover Remover[K, V]) (V, error) {
	return b.c.Get(ctx, k, b.l, remover)
}

type boundRemover[K comparable, V any] struct {
	Base[K, V]
	c LoaderRemoverCache[K, V]
	r Remover[K, V]
}

// WithRemovalListener attaches remover to every entry loaded through the
// returned cache. The remover runs before the entry is discarded and on
// PersistAll.
func WithRemovalListener[K comparable, V any](c LoaderRemoverCache[K, V], remover Remover[K, V]) LoaderCache[K, V] {
	return boundRemover[K, V]{Base: c, c: c, r: remover}
}

func (b boundRemover[K, V]) Get(ctx context.Context, k K, loader Loader[K, V]) (V, error) {
	return b.c.Get(ctx, k, loader, b.r)
}

type boundCacheRemover[K comparable, V any] struct {
	Base[K, V]
	c RemoverCache[K, V]
	r Remover[K, V]
}

// WithCacheRemovalListener binds remover to a RemoverCache whose loader is
// already bound, yielding a Cache.
func WithCacheRemovalListener[K comparable, V any](c RemoverCache[K, V], remover Remover[K, V]) Cache[K, V] {
	return boundCacheRemover[K, V]{Base: c, c: c, r: remover}
}

func (b boundCacheRemover[K, V]) Get(ctx context.Context, k K) (V, error) {
	return b.c.Get(ctx, k, b.r)
}

type boundVolatileLoader[K comparable, V any] struct {
	c VolatileLoaderCache[K, V]
	l VolatileLoader[K, V]
}

// WithVolatileLoader binds loader to a VolatileLoaderCache.
func WithVolatileLoader[K comparable, V any](c VolatileLoaderCache[K, V], loader VolatileLoader[K, V]) VolatileCache[K, V] {
	return boundVolatileLoader[K, V]{c: c, l: loader}
}

func (b boundVolatileLoader[K, V]) Get(ctx context.Context, k K, hints CacheHints) (V, error) {
	return b.c.Get(ctx, k, b.l, hints)
}

func (b boundVolatileLoader[K, V]) GetIfPresent(k K) (V, bool) { return b.c.GetIfPresent(k) }

func (b boundVolatileLoader[K, V]) Invalidate(ctx context.Context, k K) error {
	return b.c.Invalidate(ctx, k)
}

func (b boundVolatileLoader[K, V]) InvalidateAll(ctx context.Context) error {
	return b.c.InvalidateAll(ctx)
}
