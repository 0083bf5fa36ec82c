// Package lru implements the LRU eviction policy.
package lru

import "github.com/IvanBrykalov/cellcache/policy"

// Option configures the policy.
type Option func(*config)

type config struct {
	cleanWindow int
}

// WithCleanFirst makes eviction prefer the least recently used clean entry
// among the window least recently used ones, so an over-full shard can drop
// a cell without writing it back. With no clean entry in the window the
// plain LRU entry is evicted. window <= 0 disables the preference.
func WithCleanFirst(window int) Option {
	return func(c *config) { c.cleanWindow = window }
}

// lru is a classic "move-to-front" Least-Recently-Used policy.
// It delegates list manipulation to policy.Hooks provided by the shard.
type lru[K comparable, V any] struct {
	h   policy.Hooks[K, V]
	cfg config
}

type lruPolicy[K comparable, V any] struct{ cfg config }

// New returns a Policy factory that constructs per-shard LRU instances.
func New[K comparable, V any](opts ...Option) policy.Policy[K, V] {
	var cfg config
	for _, o := range opts {
		o(&cfg)
	}
	return lruPolicy[K, V]{cfg: cfg}
}

func (p lruPolicy[K, V]) New(h policy.Hooks[K, V]) policy.ShardPolicy[K, V] {
	return &lru[K, V]{h: h, cfg: p.cfg}
}

// OnAdd places the new entry at MRU. Limits are enforced by the shard
// through Victim, so OnAdd never evicts.
func (p *lru[K, V]) OnAdd(n policy.Node[K, V]) (evict policy.Node[K, V]) {
	p.h.PushFront(n)
	return nil
}

func (p *lru[K, V]) OnGet(n policy.Node[K, V]) { p.h.MoveToFront(n) }

// OnRemove is a no-op: the shard unlinks the node itself.
func (p *lru[K, V]) OnRemove(_ policy.Node[K, V]) {}

func (p *lru[K, V]) Victim() policy.Node[K, V] {
	back := p.h.Back()
	n := back
	for i := 0; i < p.cfg.cleanWindow && n != nil; i++ {
		if !policy.IsDirty(n) {
			return n
		}
		n = p.h.Prev(n)
	}
	return back
}
