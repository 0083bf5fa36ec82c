package cache

import (
	"log/slog"
	"time"

	"github.com/IvanBrykalov/cellcache/policy"
)

// EvictReason explains why an entry was removed.
type EvictReason int

const (
	// EvictPolicy: removed by the active eviction policy to respect Capacity.
	EvictPolicy EvictReason = iota
	// EvictCapacity: removed to satisfy the MaxCost budget.
	EvictCapacity
	// EvictInvalidate: removed by Invalidate/InvalidateIf/InvalidateAll/Close.
	EvictInvalidate
	// EvictPersist: not removed; checkpointed by PersistAll.
	EvictPersist
)

func (r EvictReason) String() string {
	switch r {
	case EvictPolicy:
		return "policy"
	case EvictCapacity:
		return "capacity"
	case EvictInvalidate:
		return "invalidate"
	case EvictPersist:
		return "persist"
	default:
		return "unknown"
	}
}

// Metrics exposes cache-level observability hooks.
// A NoopMetrics implementation is provided and used by default.
type Metrics interface {
	Hit()
	Miss()
	Evict(reason EvictReason)
	Size(entries int, cost int64)
	// Load observes one loader invocation; err is the loader's result.
	Load(d time.Duration, err error)
	// RemovalFailed counts remover errors (possible data loss).
	RemovalFailed(reason EvictReason)
}

// Options configures the cache behavior. Zero values are safe except
// Capacity; defaults are applied in New():
//   - nil Policy   => LRU
//   - Shards <= 0  => auto (at least 8 entries per shard, power of two)
//   - nil Metrics  => NoopMetrics
//   - nil Logger   => discard
//   - nil Hash     => util.Hash (any comparable key)
type Options[K comparable, V any] struct {
	// Capacity is the resident entry limit (used together with MaxCost if set).
	Capacity int

	// Shards defines the number of shards. If 0, an automatic value is chosen
	// (≈ 2*GOMAXPROCS, fewer for small capacities); others are rounded up to
	// the next power of two.
	Shards int

	// Policy picks eviction victims; nil => LRU.
	Policy policy.Policy[K, V]

	// Cost-based limiting (e.g., bytes of a cell). If Cost is non-nil and
	// MaxCost > 0 the cache evicts until both limits are satisfied.
	Cost    func(v V) int
	MaxCost int64

	// Hash maps keys to shards. Set it when keys need a custom spread.
	Hash func(K) uint64

	// RemovalConcurrency bounds parallel removals in InvalidateIf, PersistAll
	// and Close. <= 0 => GOMAXPROCS.
	RemovalConcurrency int

	// OnRemovalError is called for every remover failure that has no caller
	// to report to (capacity-driven eviction), after it has been logged.
	OnRemovalError func(k K, reason EvictReason, err error)

	Metrics Metrics
	Logger  *slog.Logger
}
