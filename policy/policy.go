// Package policy defines how a shard orders its resident entries and picks
// the next one to evict.
package policy

// Node is a resident cache entry as a policy sees it. Entries that are still
// loading, or whose remover is running, are never handed to a policy.
type Node[K comparable, V any] interface {
	Key() K
	Value() *V
}

// Dirty is the write-back state a policy may consult; values that do not
// implement it are treated as dirty.
type Dirty interface {
	IsDirty() bool
}

// Hooks expose the shard's intrusive recency list (front = most recently
// used). All hook calls happen under the shard lock. Hooks only touch the
// list; the shard owns the key table and the entry states.
type Hooks[K comparable, V any] interface {
	// MoveToFront promotes the node to MRU.
	MoveToFront(Node[K, V])
	// PushFront links a newly resident node at MRU.
	PushFront(Node[K, V])
	// Remove unlinks the node.
	Remove(Node[K, V])
	// Back returns the LRU node, or nil if the list is empty.
	Back() Node[K, V]
	// Prev returns the node just more recent than n, or nil at the front.
	Prev(n Node[K, V]) Node[K, V]
	// Len returns the number of resident nodes in the shard.
	Len() int
}

// ShardPolicy is a per-shard policy instance bound to shard hooks. All
// methods are invoked under the shard lock.
//
//   - OnAdd links a node that just became resident. It may return a node to
//     evict right away; the shard detaches it and calls OnRemove for it.
//   - OnGet records a use of a resident node.
//   - OnRemove is called once a node is detached for eviction or invalidation.
//   - Victim picks the node to detach while the shard is over its entry or
//     cost limit; nil means nothing can be evicted.
type ShardPolicy[K comparable, V any] interface {
	OnAdd(Node[K, V]) (evict Node[K, V])
	OnGet(Node[K, V])
	OnRemove(Node[K, V])
	Victim() Node[K, V]
}

// Policy creates shard-local policy instances.
type Policy[K comparable, V any] interface {
	New(Hooks[K, V]) ShardPolicy[K, V]
}

// IsDirty reports whether n's value still has to be written back.
func IsDirty[K comparable, V any](n Node[K, V]) bool {
	d, ok := any(*n.Value()).(Dirty)
	return !ok || d.IsDirty()
}
