// Package cache provides a generic load-once cache for lazily materialized
// data (typically the cells of a huge tiled array) with write-back on
// eviction, plus a small algebra of adapters over it.
//
// Design
//
//   - Entries: each key is absent, loading, resident or removing. The first
//     Get for an absent key inserts a loading entry and runs the loader
//     outside of any lock; concurrent Gets for that key wait for the same
//     result. A failed load leaves the key absent.
//
//   - Write-before-discard: evicted or invalidated entries move to the
//     removing state and stay visible through GetIfPresent until their
//     Remover returned. A Get on a removing key waits and then reloads.
//     PersistAll checkpoints dirty entries through the same Remover; a
//     per-entry lock keeps a checkpoint and a removal of one entry apart.
//
//   - Concurrency: the key table is split into power-of-two shards, each with
//     its own mutex and intrusive MRU/LRU list. There is no global lock.
//
//   - Policies: Capacity and an optional Cost/MaxCost budget are enforced per
//     shard; which entry goes is decided by a pluggable policy (LRU default).
//
//   - Lattice: LoaderRemoverCache takes loader and remover per call. WithLoader,
//     WithRemovalListener and friends bind either one, ending at Cache, which
//     binds both. MapKeys* present any of them under another key type through
//     a KeyBimap. Unchecked* drop the error return and panic with *FatalError.
//
//   - Volatile: see package cache/volatile for the non-blocking variant
//     driven by CacheHints.
//
// Basic usage
//
//	store := cache.New[int64, *Cell](cache.Options[int64, *Cell]{Capacity: 4096})
//	cells := cache.WithLoader(cache.WithRemovalListener(store, writer), reader)
//	c, err := cells.Get(ctx, 42)
//
// Per-element access
//
//	u := cache.Unchecked(cells, cache.WithFatalLogger(logger))
//	v := u.Get(42) // panics with *cache.FatalError if loading fails
//
// Exporting metrics
//
//	m := prom.New(nil, "cellcache", "demo") // implements Metrics
//	store := cache.New[int64, *Cell](cache.Options[int64, *Cell]{
//	    Capacity: 4096,
//	    Metrics:  m,
//	})
package cache
