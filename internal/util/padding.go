//revive:disable:var-naming  // allow 'util' as an internal helpers package name
package util

import (
	"sync/atomic"
	"unsafe"
)

// CacheLineSize is a reasonable default for most modern CPUs.
const CacheLineSize = 64

// CacheLinePad keeps the shard lock and table away from the counters below it.
type CacheLinePad struct{ _ [CacheLineSize]byte }

// Counter is an atomic int64 on its own cache line. Shards bump one per
// lookup (hits, misses) and per detach (evictions) without taking the lock.
type Counter struct {
	n atomic.Int64
	_ [CacheLineSize - 8]byte
}

func (c *Counter) Inc()        { c.n.Add(1) }
func (c *Counter) Load() int64 { return c.n.Load() }

var _ [CacheLineSize - int(unsafe.Sizeof(Counter{}))]byte
