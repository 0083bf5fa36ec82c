package cache

import "sync"

// entryState is the residency state of a node in the shard table.
// Absent keys have no node.
type entryState uint8

const (
	// stateLoading: a loader is running; waiters block on loaded.
	stateLoading entryState = iota
	// stateResident: val is valid and the node is linked in the policy list.
	stateResident
	// stateRemoving: detached from the policy list, still in the table and
	// visible to GetIfPresent until its remover returned; waiters block on gone.
	stateRemoving
)

// node is an intrusive doubly linked list element owned by a shard.
// Fields other than the list links and state are written once before the
// corresponding channel is closed and are read-only afterwards.
type node[K comparable, V any] struct {
	key K
	val V

	// Intrusive list links: head is MRU, tail is LRU.
	prev *node[K, V]
	next *node[K, V]

	// Logical "cost" used when MaxCost is enabled.
	cost int32

	state   entryState
	remover Remover[K, V]

	loaded chan struct{} // closed when the load finished; err is set before
	err    error
	gone   chan struct{} // closed when the removal finished; set on detach

	// wmu serializes remover invocations for this entry (PersistAll vs removal).
	wmu sync.Mutex
}

func newLoadingNode[K comparable, V any](k K, remover Remover[K, V]) *node[K, V] {
	return &node[K, V]{
		key:     k,
		state:   stateLoading,
		remover: remover,
		loaded:  make(chan struct{}),
	}
}

// Key returns the node key (part of policy.Node interface).
func (n *node[K, V]) Key() K { return n.key }

// Value returns a pointer to the stored value (part of policy.Node interface).
// Only valid for resident nodes; callers hold the shard lock.
func (n *node[K, V]) Value() *V { return &n.val }
