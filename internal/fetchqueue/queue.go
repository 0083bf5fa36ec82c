// Package fetchqueue is the priority queue feeding background loads.
//
// Items are kept in one FIFO bucket per priority level; Take always serves
// the lowest-numbered non-empty bucket. Ordering across buckets is strict,
// ordering inside a bucket is FIFO unless an item was pushed to the front.
package fetchqueue

import (
	"context"
	"sync"

	"github.com/agilira/go-errors"
)

// ErrCodeClosed identifies ErrClosed.
const ErrCodeClosed errors.ErrorCode = "FETCHQUEUE_CLOSED"

// ErrClosed is returned by Take once the queue is closed.
var ErrClosed error = errors.NewWithContext(ErrCodeClosed, "fetch queue is closed", nil)

// Queue is safe for concurrent use. The zero value is not usable; see New.
type Queue[T any] struct {
	mu      sync.Mutex
	buckets []bucket[T]
	n       int
	wake    chan struct{} // closed and replaced on every push
	closed  bool
}

// bucket is a deque: front holds items pushed to the head in reverse order,
// back holds items appended to the tail starting at head.
type bucket[T any] struct {
	front []T
	back  []T
	head  int
}

func (b *bucket[T]) len() int { return len(b.front) + len(b.back) - b.head }

func (b *bucket[T]) pop() T {
	var zero T
	if n := len(b.front); n > 0 {
		v := b.front[n-1]
		b.front[n-1] = zero
		b.front = b.front[:n-1]
		return v
	}
	v := b.back[b.head]
	b.back[b.head] = zero
	b.head++
	if b.head == len(b.back) {
		b.back = b.back[:0]
		b.head = 0
	}
	return v
}

// New returns a queue with the given number of priority levels (at least 1).
func New[T any](priorities int) *Queue[T] {
	if priorities < 1 {
		priorities = 1
	}
	return &Queue[T]{
		buckets: make([]bucket[T], priorities),
		wake:    make(chan struct{}),
	}
}

// Priorities returns the number of levels.
func (q *Queue[T]) Priorities() int { return len(q.buckets) }

// Push enqueues v at the given priority, clamped to [0, Priorities()-1].
// With toFront set, v is served before everything already in its bucket.
// Push on a closed queue reports false.
func (q *Queue[T]) Push(v T, priority int, toFront bool) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	b := &q.buckets[q.clamp(priority)]
	if toFront {
		b.front = append(b.front, v)
	} else {
		b.back = append(b.back, v)
	}
	q.n++
	close(q.wake)
	q.wake = make(chan struct{})
	return true
}

// Take blocks until an item is available, ctx ends or the queue is closed.
func (q *Queue[T]) Take(ctx context.Context) (T, error) {
	var zero T
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return zero, ErrClosed
		}
		if q.n > 0 {
			v := q.popLocked()
			q.mu.Unlock()
			return v, nil
		}
		wake := q.wake
		q.mu.Unlock()

		select {
		case <-wake:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.n
}

// Clear drops every queued item and returns them in service order.
func (q *Queue[T]) Clear() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]T, 0, q.n)
	for q.n > 0 {
		out = append(out, q.popLocked())
	}
	return out
}

// Close wakes all blocked Takes; later Pushes are rejected.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.wake)
}

func (q *Queue[T]) popLocked() T {
	for i := range q.buckets {
		if q.buckets[i].len() > 0 {
			q.n--
			return q.buckets[i].pop()
		}
	}
	panic("fetchqueue: count out of sync")
}

func (q *Queue[T]) clamp(p int) int {
	if p < 0 {
		return 0
	}
	if p >= len(q.buckets) {
		return len(q.buckets) - 1
	}
	return p
}
