// Package singleflight coalesces concurrent calls that produce the same
// per-key value. The volatile cache uses it so that racing callers for a
// missing key share one placeholder and schedule one background load.
package singleflight

import (
	"context"
	"fmt"
	"sync"
)

// Group runs fn at most once per key at a time; concurrent callers for the
// same key wait for and share the leader's result.
//
// Concurrency notes:
//   - Publishing (val, err) happens-before close(c.done), so followers read
//     the final values after <-done.
//   - Cancelling ctx in a follower unblocks only that follower; the leader's
//     fn keeps running.
//   - A panic in fn is turned into an error for every caller.
type Group[K comparable, V any] struct {
	mu sync.Mutex
	m  map[K]*call[V]
}

type call[V any] struct {
	done chan struct{} // closed when val/err are published
	val  V
	err  error
}

// Do runs fn once for key and hands its result to every caller that joined
// while it ran.
func (g *Group[K, V]) Do(ctx context.Context, key K, fn func() (V, error)) (V, error) {
	g.mu.Lock()
	if g.m == nil {
		g.m = make(map[K]*call[V])
	}
	if c, ok := g.m[key]; ok {
		g.mu.Unlock()

		select {
		case <-c.done:
			return c.val, c.err
		case <-ctx.Done():
			var zero V
			return zero, ctx.Err()
		}
	}

	c := &call[V]{done: make(chan struct{})}
	g.m[key] = c
	g.mu.Unlock()

	c.val, c.err = run(fn)

	g.mu.Lock()
	delete(g.m, key)
	g.mu.Unlock()
	close(c.done)

	return c.val, c.err
}

func run[V any](fn func() (V, error)) (v V, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("singleflight: panic: %v", r)
		}
	}()
	return fn()
}
