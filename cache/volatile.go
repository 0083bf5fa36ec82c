package cache

import "context"

// LoadingStrategy tells a volatile Get what to do when the value is not
// resident (or resident but not yet valid).
type LoadingStrategy int

const (
	// Volatile returns whatever is available right away (an invalid
	// placeholder if nothing is) and schedules one background load.
	Volatile LoadingStrategy = iota
	// Blocking waits for the value to be loaded.
	Blocking
	// DontLoad returns whatever is available and never triggers a load.
	DontLoad
)

func (s LoadingStrategy) String() string {
	switch s {
	case Volatile:
		return "volatile"
	case Blocking:
		return "blocking"
	case DontLoad:
		return "dontload"
	default:
		return "unknown"
	}
}

// CacheHints steers a single volatile Get. It never changes cache state on
// its own.
type CacheHints struct {
	Strategy LoadingStrategy

	// Priority of the background load; 0 is the most urgent. Values outside
	// the fetch queue's range are clamped.
	Priority int

	// EnqueueToFront puts the background load at the head of its priority
	// bucket instead of the tail.
	EnqueueToFront bool

	// PropagateDirty marks the loaded value dirty when it replaces a
	// placeholder the caller has marked dirty.
	PropagateDirty bool
}

// Common hint presets.
var (
	BlockingHints = CacheHints{Strategy: Blocking}
	VolatileHints = CacheHints{Strategy: Volatile}
	PeekHints     = CacheHints{Strategy: DontLoad}
)

// Volatile values describe their own completeness.
type VolatileValue interface {
	IsValid() bool
}

// VolatileLoader loads values for a volatile cache and can produce an
// invalid placeholder to hand out while the real load is pending.
// CreateInvalid must be cheap and must not block on the backing store.
type VolatileLoader[K comparable, V any] interface {
	Loader[K, V]
	CreateInvalid(ctx context.Context, k K) (V, error)
}

// VolatileLoaderCache takes the volatile loader per call.
type VolatileLoaderCache[K comparable, V any] interface {
	GetIfPresent(k K) (V, bool)
	Get(ctx context.Context, k K, loader VolatileLoader[K, V], hints CacheHints) (V, error)
	Invalidate(ctx context.Context, k K) error
	InvalidateAll(ctx context.Context) error
}

// VolatileCache has its volatile loader bound.
type VolatileCache[K comparable, V any] interface {
	GetIfPresent(k K) (V, bool)
	Get(ctx context.Context, k K, hints CacheHints) (V, error)
	Invalidate(ctx context.Context, k K) error
	InvalidateAll(ctx context.Context) error
}

// UncheckedVolatileLoaderCache panics with a *FatalError where
// VolatileLoaderCache would return an error.
type UncheckedVolatileLoaderCache[K comparable, V any] interface {
	GetIfPresent(k K) (V, bool)
	Get(k K, loader VolatileLoader[K, V], hints CacheHints) V
	Invalidate(k K)
	InvalidateAll()
}

// UncheckedVolatileCache panics with a *FatalError where VolatileCache would
// return an error.
type UncheckedVolatileCache[K comparable, V any] interface {
	GetIfPresent(k K) (V, bool)
	Get(k K, hints CacheHints) V
	Invalidate(k K)
	InvalidateAll()
}
