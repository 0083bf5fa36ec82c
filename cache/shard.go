package cache

import (
	"sync"
	"sync/atomic"

	"github.com/IvanBrykalov/cellcache/internal/util"
	"github.com/IvanBrykalov/cellcache/policy"
)

// shard is an independent partition of the cache with its own lock, key
// table, and an intrusive doubly linked list of resident nodes (head=MRU,
// tail=LRU). Loading and removing nodes live in the table but not the list.
type shard[K comparable, V any] struct {
	// ---- guarded by mu ----
	mu      sync.Mutex
	m       map[K]*node[K, V]
	head    *node[K, V] // MRU
	tail    *node[K, V] // LRU
	len     int         // number of resident entries
	cost    int64       // total cost of resident entries
	cap     int         // per-shard entry capacity
	maxCost int64       // per-shard cost limit (0 = disabled)

	pol policy.ShardPolicy[K, V]
	met Metrics
	tot *totals

	// ---- hot counters (separate cache lines to avoid false sharing) ----
	_      util.CacheLinePad
	hits   util.Counter
	misses util.Counter
	evicts util.Counter
}

// totals aggregates resident entries and cost over all shards so Metrics.Size
// reports cache-wide values.
type totals struct {
	entries atomic.Int64
	cost    atomic.Int64
}

// victim is a node detached under the shard lock whose remover still has to
// run outside of it.
type victim[K comparable, V any] struct {
	n      *node[K, V]
	reason EvictReason
}

func newShard[K comparable, V any](capacity int, maxCost int64, pol policy.Policy[K, V], met Metrics, tot *totals) *shard[K, V] {
	s := &shard[K, V]{
		m:       make(map[K]*node[K, V], capacity),
		cap:     capacity,
		maxCost: maxCost,
		met:     met,
		tot:     tot,
	}
	s.pol = pol.New(shardHooks[K, V]{s: s})
	return s
}

// publishLocked turns a loading node into a resident one, links it via the
// policy and returns whatever had to be evicted to stay within limits.
func (s *shard[K, V]) publishLocked(n *node[K, V], v V, cost int32) []victim[K, V] {
	n.val = v
	n.cost = cost
	n.state = stateResident

	var out []victim[K, V]
	if ev := s.pol.OnAdd(n); ev != nil {
		out = append(out, s.detachLocked(ev.(*node[K, V]), EvictPolicy))
	}
	return s.enforceLimitsLocked(out)
}

// detachLocked moves a resident node into the removing state. The node
// stays in the table (observable) until finishRemoval deletes it.
func (s *shard[K, V]) detachLocked(n *node[K, V], reason EvictReason) victim[K, V] {
	s.pol.OnRemove(n)
	s.removeNode(n)
	n.state = stateRemoving
	n.gone = make(chan struct{})
	if reason != EvictInvalidate {
		s.evicts.Inc()
	}
	s.met.Evict(reason)
	return victim[K, V]{n: n, reason: reason}
}

// dropLocked deletes n from the table if it is still the node for its key.
func (s *shard[K, V]) dropLocked(n *node[K, V]) {
	if cur, ok := s.m[n.key]; ok && cur == n {
		delete(s.m, n.key)
	}
}

// enforceLimitsLocked detaches policy victims until both count and cost
// limits are satisfied.
func (s *shard[K, V]) enforceLimitsLocked(out []victim[K, V]) []victim[K, V] {
	for s.len > s.cap {
		v := s.pol.Victim()
		if v == nil {
			break
		}
		out = append(out, s.detachLocked(v.(*node[K, V]), EvictPolicy))
	}
	if s.maxCost > 0 {
		for s.cost > s.maxCost {
			v := s.pol.Victim()
			if v == nil {
				break
			}
			out = append(out, s.detachLocked(v.(*node[K, V]), EvictCapacity))
		}
	}
	s.reportSize()
	return out
}

func (s *shard[K, V]) reportSize() {
	s.met.Size(int(s.tot.entries.Load()), s.tot.cost.Load())
}

// residentLen returns the number of resident entries in this shard.
func (s *shard[K, V]) residentLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.len
}

// -------------------- list internals (mu held) --------------------

// insertFront inserts n at MRU in O(1).
func (s *shard[K, V]) insertFront(n *node[K, V]) {
	n.prev = nil
	n.next = s.head
	if s.head != nil {
		s.head.prev = n
	}
	s.head = n
	if s.tail == nil {
		s.tail = n
	}
	s.len++
	s.cost += int64(n.cost)
	s.tot.entries.Add(1)
	s.tot.cost.Add(int64(n.cost))
}

// moveToFront promotes n to MRU in O(1).
func (s *shard[K, V]) moveToFront(n *node[K, V]) {
	if n == s.head {
		return
	}
	if n.prev != nil {
		n.prev.next = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	}
	if s.tail == n {
		s.tail = n.prev
	}
	n.prev = nil
	n.next = s.head
	if s.head != nil {
		s.head.prev = n
	}
	s.head = n
	if s.tail == nil {
		s.tail = n
	}
}

// removeNode unlinks n and updates counters in O(1).
func (s *shard[K, V]) removeNode(n *node[K, V]) {
	if n.prev != nil {
		n.prev.next = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	}
	if s.head == n {
		s.head = n.next
	}
	if s.tail == n {
		s.tail = n.prev
	}
	n.prev, n.next = nil, nil
	s.len--
	s.cost -= int64(n.cost)
	s.tot.entries.Add(-1)
	s.tot.cost.Add(-int64(n.cost))
}

// -------------------- policy hooks --------------------

// shardHooks adapts the shard's list operations to policy.Hooks.
type shardHooks[K comparable, V any] struct{ s *shard[K, V] }

func (h shardHooks[K, V]) MoveToFront(x policy.Node[K, V]) { h.s.moveToFront(x.(*node[K, V])) }
func (h shardHooks[K, V]) PushFront(x policy.Node[K, V])   { h.s.insertFront(x.(*node[K, V])) }
func (h shardHooks[K, V]) Remove(x policy.Node[K, V])      { h.s.removeNode(x.(*node[K, V])) }
func (h shardHooks[K, V]) Back() policy.Node[K, V] {
	if h.s.tail == nil {
		return nil
	}
	return h.s.tail
}
func (h shardHooks[K, V]) Prev(x policy.Node[K, V]) policy.Node[K, V] {
	if p := x.(*node[K, V]).prev; p != nil {
		return p
	}
	return nil
}
func (h shardHooks[K, V]) Len() int { return h.s.len }
