package lru

import (
	"testing"

	"github.com/IvanBrykalov/cellcache/policy"
)

// --- test doubles ---

type cell struct {
	id    int
	dirty bool
}

func (c cell) IsDirty() bool { return c.dirty }

type testNode[V any] struct {
	k int
	v V
}

func (n *testNode[V]) Key() int { return n.k }
func (n *testNode[V]) Value() *V { return &n.v }

// mockHooks keeps the recency list as a slice ordered LRU first.
type mockHooks[V any] struct {
	list []policy.Node[int, V]

	pushFrontCnt   int
	moveToFrontCnt int
	removeCnt      int
}

func (h *mockHooks[V]) index(n policy.Node[int, V]) int {
	for i, x := range h.list {
		if x == n {
			return i
		}
	}
	return -1
}

func (h *mockHooks[V]) MoveToFront(n policy.Node[int, V]) {
	h.moveToFrontCnt++
	if i := h.index(n); i >= 0 {
		h.list = append(h.list[:i], h.list[i+1:]...)
	}
	h.list = append(h.list, n)
}

func (h *mockHooks[V]) PushFront(n policy.Node[int, V]) {
	h.pushFrontCnt++
	h.list = append(h.list, n)
}

func (h *mockHooks[V]) Remove(n policy.Node[int, V]) {
	h.removeCnt++
	if i := h.index(n); i >= 0 {
		h.list = append(h.list[:i], h.list[i+1:]...)
	}
}

func (h *mockHooks[V]) Back() policy.Node[int, V] {
	if len(h.list) == 0 {
		return nil
	}
	return h.list[0]
}

func (h *mockHooks[V]) Prev(n policy.Node[int, V]) policy.Node[int, V] {
	i := h.index(n)
	if i < 0 || i+1 >= len(h.list) {
		return nil
	}
	return h.list[i+1]
}

func (h *mockHooks[V]) Len() int { return len(h.list) }

// fill adds cells 0..n-1 (0 is LRU); dirty holds the ids of dirty cells.
func fill(p policy.ShardPolicy[int, cell], n int, dirty ...int) []*testNode[cell] {
	isDirty := map[int]bool{}
	for _, id := range dirty {
		isDirty[id] = true
	}
	nodes := make([]*testNode[cell], n)
	for i := range nodes {
		nodes[i] = &testNode[cell]{k: i, v: cell{id: i, dirty: isDirty[i]}}
		p.OnAdd(nodes[i])
	}
	return nodes
}

// --- tests ---

// OnAdd should push the node to MRU and never propose an eviction.
func TestLRU_OnAdd_PushFrontAndNoEvict(t *testing.T) {
	t.Parallel()

	h := &mockHooks[int]{}
	p := New[int, int]().New(h) // shard-local policy

	n := &testNode[int]{k: 1, v: 1}
	if ev := p.OnAdd(n); ev != nil {
		t.Fatalf("OnAdd must not return evict candidate for LRU, got %v", ev)
	}
	if h.pushFrontCnt != 1 || h.Back() != n {
		t.Fatalf("OnAdd must call PushFront exactly once with the node")
	}
	if h.moveToFrontCnt != 0 || h.removeCnt != 0 {
		t.Fatalf("OnAdd must not call MoveToFront/Remove")
	}
}

// OnGet promotes the node, so it stops being the victim.
func TestLRU_OnGet_Promotes(t *testing.T) {
	t.Parallel()

	h := &mockHooks[cell]{}
	p := New[int, cell]().New(h)
	nodes := fill(p, 3)

	p.OnGet(nodes[0])
	if h.moveToFrontCnt != 1 {
		t.Fatalf("OnGet must call MoveToFront exactly once")
	}
	if v := p.Victim(); v != nodes[1] {
		t.Fatalf("victim = %v, want node 1", v.Key())
	}
}

// OnRemove is a no-op for LRU.
func TestLRU_OnRemove_NoOp(t *testing.T) {
	t.Parallel()

	h := &mockHooks[int]{}
	p := New[int, int]().New(h)

	p.OnRemove(&testNode[int]{k: 4, v: 4})
	if h.pushFrontCnt != 0 || h.moveToFrontCnt != 0 || h.removeCnt != 0 {
		t.Fatalf("OnRemove for LRU must be no-op (no hooks should be called)")
	}
}

func TestLRU_Victim(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		opts   []Option
		dirty  []int
		want   int
		wantOK bool
	}{
		{name: "plain LRU ignores dirtiness", dirty: []int{0}, want: 0, wantOK: true},
		{name: "clean first skips dirty tail", opts: []Option{WithCleanFirst(3)}, dirty: []int{0, 1}, want: 2, wantOK: true},
		{name: "window exhausted falls back to LRU", opts: []Option{WithCleanFirst(2)}, dirty: []int{0, 1}, want: 0, wantOK: true},
		{name: "all dirty falls back to LRU", opts: []Option{WithCleanFirst(10)}, dirty: []int{0, 1, 2, 3}, want: 0, wantOK: true},
		{name: "clean tail is the LRU", opts: []Option{WithCleanFirst(4)}, want: 0, wantOK: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := &mockHooks[cell]{}
			p := New[int, cell](tt.opts...).New(h)
			fill(p, 4, tt.dirty...)

			v := p.Victim()
			if (v != nil) != tt.wantOK {
				t.Fatalf("victim presence = %v, want %v", v != nil, tt.wantOK)
			}
			if v.Key() != tt.want {
				t.Fatalf("victim = %d, want %d", v.Key(), tt.want)
			}
		})
	}
}

func TestLRU_VictimEmpty(t *testing.T) {
	t.Parallel()

	p := New[int, cell](WithCleanFirst(4)).New(&mockHooks[cell]{})
	if v := p.Victim(); v != nil {
		t.Fatalf("empty shard has no victim, got %v", v.Key())
	}
}

// Values without write-back state count as dirty, so clean-first degrades
// to plain LRU for them.
func TestLRU_VictimUntrackedValues(t *testing.T) {
	t.Parallel()

	h := &mockHooks[int]{}
	p := New[int, int](WithCleanFirst(4)).New(h)
	first := &testNode[int]{k: 0}
	p.OnAdd(first)
	p.OnAdd(&testNode[int]{k: 1})
	if v := p.Victim(); v != first {
		t.Fatalf("victim = %d, want 0", v.Key())
	}
}
