package util

import (
	"math/bits"
	"runtime"
)

const (
	maxShards = 256
	// minEntriesPerShard keeps eviction order meaningful in small caches:
	// a cache of 16 cells split 16 ways would evict almost at random.
	minEntriesPerShard = 8
)

// ShardCount returns the number of shards for a cache holding capacity
// entries. A positive request is rounded up to a power of two; otherwise
// nextPow2(2*GOMAXPROCS) is used, lowered until every shard gets at least
// minEntriesPerShard entries. The result is in [1, 256].
func ShardCount(requested, capacity int) int {
	if requested > 0 {
		return int(min(NextPow2(uint64(requested)), maxShards))
	}
	n := NextPow2(uint64(max(runtime.GOMAXPROCS(0), 1) * 2))
	limit := PrevPow2(uint64(max(capacity/minEntriesPerShard, 1)))
	return int(min(n, limit, maxShards))
}

// ShardIndex maps a hash to one of shards (a power of two) shards. The high
// half is folded in so hashes that differ only above bit 32 still spread.
func ShardIndex(hash uint64, shards int) int {
	return int((hash ^ hash>>32) & uint64(shards-1))
}

// NextPow2 returns the smallest power of two >= x (1 for x == 0, clamped to 1<<63).
func NextPow2(x uint64) uint64 {
	if x <= 1 {
		return 1
	}
	x--
	x |= x >> 1
	x |= x >> 2
	x |= x >> 4
	x |= x >> 8
	x |= x >> 16
	x |= x >> 32
	x++
	if x == 0 {
		return 1 << 63
	}
	return x
}

// PrevPow2 returns the largest power of two <= x (1 for x == 0).
func PrevPow2(x uint64) uint64 {
	if x <= 1 {
		return 1
	}
	return 1 << (bits.Len64(x) - 1)
}
