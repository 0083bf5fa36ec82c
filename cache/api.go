package cache

import "context"

// Loader produces the value for an absent key.
// A failed load is not cached; the next Get for the key retries.
type Loader[K comparable, V any] interface {
	Load(ctx context.Context, k K) (V, error)
}

// LoaderFunc adapts a plain function to Loader.
type LoaderFunc[K comparable, V any] func(ctx context.Context, k K) (V, error)

// Load calls f(ctx, k).
func (f LoaderFunc[K, V]) Load(ctx context.Context, k K) (V, error) { return f(ctx, k) }

// Remover is invoked exactly once per entry before the cache discards it,
// whether the entry is evicted or explicitly invalidated. It is also used by
// PersistAll to checkpoint dirty entries without discarding them.
//
// A returned error is reported to whoever triggered the removal; the
// in-memory entry is discarded regardless.
type Remover[K comparable, V any] interface {
	OnRemoval(ctx context.Context, k K, v V) error
}

// RemoverFunc adapts a plain function to Remover.
type RemoverFunc[K comparable, V any] func(ctx context.Context, k K, v V) error

// OnRemoval calls f(ctx, k, v).
func (f RemoverFunc[K, V]) OnRemoval(ctx context.Context, k K, v V) error { return f(ctx, k, v) }

// Dirty is implemented by values that track mutation since load.
// The cache never inspects it on the loading path; removers consult it to
// decide between persisting and dropping.
type Dirty interface {
	IsDirty() bool
	SetDirty()
}

// DirtyClearer is implemented by Dirty values that can be marked clean
// again after a successful checkpoint.
type DirtyClearer interface {
	ClearDirty()
}

// Base is the part of the cache surface that does not depend on how
// loaders and removers are supplied. All methods are safe for concurrent use.
type Base[K comparable, V any] interface {
	// GetIfPresent returns the resident value for k without triggering a load.
	// An entry whose removal is in progress is still reported as present.
	GetIfPresent(k K) (V, bool)

	// Invalidate removes k, running its remover before the entry is discarded.
	// Invalidating an absent key is a no-op.
	Invalidate(ctx context.Context, k K) error

	// InvalidateIf removes every resident entry whose key matches pred.
	// Removals of distinct keys may run concurrently; all errors are joined.
	InvalidateIf(ctx context.Context, pred func(K) bool) error

	// InvalidateAll removes every resident entry.
	InvalidateAll(ctx context.Context) error

	// PersistAll runs every resident dirty entry through its remover without
	// evicting it. Safe to call concurrently with Get.
	PersistAll(ctx context.Context) error

	// Len returns the number of resident entries.
	Len() int
}

// LoaderRemoverCache takes both the loader and the remover per call.
// The remover supplied by the call that loaded an entry is the one invoked
// when that entry goes away.
type LoaderRemoverCache[K comparable, V any] interface {
	Base[K, V]
	Get(ctx context.Context, k K, loader Loader[K, V], remover Remover[K, V]) (V, error)
}

// LoaderCache has its remover bound and takes the loader per call.
type LoaderCache[K comparable, V any] interface {
	Base[K, V]
	Get(ctx context.Context, k K, loader Loader[K, V]) (V, error)
}

// RemoverCache has its loader bound and takes the remover per call.
type RemoverCache[K comparable, V any] interface {
	Base[K, V]
	Get(ctx context.Context, k K, remover Remover[K, V]) (V, error)
}

// Cache is self-populating and self-evicting: loader and remover are bound.
type Cache[K comparable, V any] interface {
	Base[K, V]
	Get(ctx context.Context, k K) (V, error)
}

// UncheckedCache has no error surface: a failure that Cache would return
// panics with a *FatalError instead. Meant for per-element access loops.
type UncheckedCache[K comparable, V any] interface {
	Get(k K) V
	GetIfPresent(k K) (V, bool)
	Invalidate(k K)
	InvalidateAll()
	PersistAll()
	Len() int
}

// UncheckedLoadingCache is an UncheckedCache that can itself serve as the
// Loader of another cache; Load reports failures as errors.
type UncheckedLoadingCache[K comparable, V any] interface {
	UncheckedCache[K, V]
	Loader[K, V]
}
