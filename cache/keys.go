package cache

import "context"

// mappedBase rewrites keys of the Base operations through a KeyBimap.
type mappedBase[K comparable, L comparable, V any] struct {
	c Base[L, V]
	m KeyBimap[K, L]
}

func (b mappedBase[K, L, V]) GetIfPresent(k K) (V, bool) { return b.c.GetIfPresent(b.m.Target(k)) }

func (b mappedBase[K, L, V]) Invalidate(ctx context.Context, k K) error {
	return b.c.Invalidate(ctx, b.m.Target(k))
}

func (b mappedBase[K, L, V]) InvalidateIf(ctx context.Context, pred func(K) bool) error {
	return b.c.InvalidateIf(ctx, func(l L) bool { return pred(b.m.Source(l)) })
}

func (b mappedBase[K, L, V]) InvalidateAll(ctx context.Context) error { return b.c.InvalidateAll(ctx) }
func (b mappedBase[K, L, V]) PersistAll(ctx context.Context) error    { return b.c.PersistAll(ctx) }
func (b mappedBase[K, L, V]) Len() int                                { return b.c.Len() }

// sourceLoader presents a Loader written against external keys to a cache
// keyed by L.
type sourceLoader[K comparable, L comparable, V any] struct {
	l Loader[K, V]
	m KeyBimap[K, L]
}

func (s sourceLoader[K, L, V]) Load(ctx context.Context, l L) (V, error) {
	return s.l.Load(ctx, s.m.Source(l))
}

type sourceVolatileLoader[K comparable, L comparable, V any] struct {
	l VolatileLoader[K, V]
	m KeyBimap[K, L]
}

func (s sourceVolatileLoader[K, L, V]) Load(ctx context.Context, l L) (V, error) {
	return s.l.Load(ctx, s.m.Source(l))
}

func (s sourceVolatileLoader[K, L, V]) CreateInvalid(ctx context.Context, l L) (V, error) {
	return s.l.CreateInvalid(ctx, s.m.Source(l))
}

type sourceRemover[K comparable, L comparable, V any] struct {
	r Remover[K, V]
	m KeyBimap[K, L]
}

func (s sourceRemover[K, L, V]) OnRemoval(ctx context.Context, l L, v V) error {
	return s.r.OnRemoval(ctx, s.m.Source(l), v)
}

func mapLoader[K comparable, L comparable, V any](l Loader[K, V], m KeyBimap[K, L]) Loader[L, V] {
	if l == nil {
		return nil
	}
	return sourceLoader[K, L, V]{l: l, m: m}
}

func mapRemover[K comparable, L comparable, V any](r Remover[K, V], m KeyBimap[K, L]) Remover[L, V] {
	if r == nil {
		return nil
	}
	return sourceRemover[K, L, V]{r: r, m: m}
}

// ---- Cache ----

type mappedCache[K comparable, L comparable, V any] struct {
	mappedBase[K, L, V]
	c Cache[L, V]
}

// MapKeys presents c under the external key type K. Every operation
// translates the key through m before delegating; values pass through
// untouched. m must be bijective over the keys in use.
func MapKeys[K comparable, L comparable, V any](c Cache[L, V], m KeyBimap[K, L]) Cache[K, V] {
	return mappedCache[K, L, V]{mappedBase: mappedBase[K, L, V]{c: c, m: m}, c: c}
}

func (mc mappedCache[K, L, V]) Get(ctx context.Context, k K) (V, error) {
	return mc.c.Get(ctx, mc.m.Target(k))
}

// ---- LoaderCache ----

type mappedLoaderCache[K comparable, L comparable, V any] struct {
	mappedBase[K, L, V]
	c LoaderCache[L, V]
}

// MapLoaderCacheKeys is MapKeys for a LoaderCache. Loaders passed to Get see
// the external key.
func MapLoaderCacheKeys[K comparable, L comparable, V any](c LoaderCache[L, V], m KeyBimap[K, L]) LoaderCache[K, V] {
	return mappedLoaderCache[K, L, V]{mappedBase: mappedBase[K, L, V]{c: c, m: m}, c: c}
}

func (mc mappedLoaderCache[K, L, V]) Get(ctx context.Context, k K, loader Loader[K, V]) (V, error) {
	return mc.c.Get(ctx, mc.m.Target(k), mapLoader(loader, mc.m))
}

// ---- RemoverCache ----

type mappedRemoverCache[K comparable, L comparable, V any] struct {
	mappedBase[K, L, V]
	c RemoverCache[L, V]
}

// MapRemoverCacheKeys is MapKeys for a RemoverCache. Removers passed to Get
// see the external key.
func MapRemoverCacheKeys[K comparable, L comparable, V any](c RemoverCache[L, V], m KeyBimap[K, L]) RemoverCache[K, V] {
	return mappedRemoverCache[K, L, V]{mappedBase: mappedBase[K, L, V]{c: c, m: m}, c: c}
}

func (mc mappedRemoverCache[K, L, V]) Get(ctx context.Context, k K, remover Remover[K, V]) (V, error) {
	return mc.c.Get(ctx, mc.m.Target(k), mapRemover(remover, mc.m))
}

// ---- LoaderRemoverCache ----

type mappedLoaderRemoverCache[K comparable, L comparable, V any] struct {
	mappedBase[K, L, V]
	c LoaderRemoverCache[L, V]
}

// MapLoaderRemoverCacheKeys is MapKeys for a LoaderRemoverCache.
func MapLoaderRemoverCacheKeys[K comparable, L comparable, V any](c LoaderRemoverCache[L, V], m KeyBimap[K, L]) LoaderRemoverCache[K, V] {
	return mappedLoaderRemoverCache[K, L, V]{mappedBase: mappedBase[K, L, V]{c: c, m: m}, c: c}
}

func (mc mappedLoaderRemoverCache[K, L, V]) Get(ctx context.Context, k K, loader Loader[K, V], remover Remover[K, V]) (V, error) {
	return mc.c.Get(ctx, mc.m.Target(k), mapLoader(loader, mc.m), mapRemover(remover, mc.m))
}

// ---- volatile ----

type mappedVolatileBase[K comparable, L comparable, V any] struct {
	c interface {
		GetIfPresent(L) (V, bool)
		Invalidate(context.Context, L) error
		InvalidateAll(context.Context) error
	}
	m KeyBimap[K, L]
}

func (b mappedVolatileBase[K, L, V]) GetIfPresent(k K) (V, bool) {
	return b.c.GetIfPresent(b.m.Target(k))
}

func (b mappedVolatileBase[K, L, V]) Invalidate(ctx context.Context, k K) error {
	return b.c.Invalidate(ctx, b.m.Target(k))
}

func (b mappedVolatileBase[K, L, V]) InvalidateAll(ctx context.Context) error {
	return b.c.InvalidateAll(ctx)
}

type mappedVolatileCache[K comparable, L comparable, V any] struct {
	mappedVolatileBase[K, L, V]
	vc VolatileCache[L, V]
}

// MapVolatileCacheKeys is MapKeys for a VolatileCache.
func MapVolatileCacheKeys[K comparable, L comparable, V any](c VolatileCache[L, V], m KeyBimap[K, L]) VolatileCache[K, V] {
	return mappedVolatileCache[K, L, V]{mappedVolatileBase: mappedVolatileBase[K, L, V]{c: c, m: m}, vc: c}
}

func (mc mappedVolatileCache[K, L, V]) Get(ctx context.Context, k K, hints CacheHints) (V, error) {
	return mc.vc.Get(ctx, mc.m.Target(k), hints)
}

type mappedVolatileLoaderCache[K comparable, L comparable, V any] struct {
	mappedVolatileBase[K, L, V]
	vc VolatileLoaderCache[L, V]
}

// MapVolatileLoaderCacheKeys is MapKeys for a VolatileLoaderCache. Both the
// loader and its placeholder factory see the external key.
func MapVolatileLoaderCacheKeys[K comparable, L comparable, V any](c VolatileLoaderCache[L, V], m KeyBimap[K, L]) VolatileLoaderCache[K, V] {
	return mappedVolatileLoaderCache[K, L, V]{mappedVolatileBase: mappedVolatileBase[K, L, V]{c: c, m: m}, vc: c}
}

func (mc mappedVolatileLoaderCache[K, L, V]) Get(ctx context.Context, k K, loader VolatileLoader[K, V], hints CacheHints) (V, error) {
	var l VolatileLoader[L, V]
	if loader != nil {
		l = sourceVolatileLoader[K, L, V]{l: loader, m: mc.m}
	}
	return mc.vc.Get(ctx, mc.m.Target(k), l, hints)
}
