package util

import (
	"runtime"
	"testing"
)

func TestNextPow2(t *testing.T) {
	t.Parallel()

	cases := map[uint64]uint64{0: 1, 1: 1, 2: 2, 3: 4, 5: 8, 64: 64, 65: 128}
	for in, want := range cases {
		if got := NextPow2(in); got != want {
			t.Fatalf("NextPow2(%d) = %d, want %d", in, got, want)
		}
	}
	if got := NextPow2(1<<63 + 1); got != 1<<63 {
		t.Fatalf("overflow must clamp, got %d", got)
	}
}

func TestPrevPow2(t *testing.T) {
	t.Parallel()

	cases := map[uint64]uint64{0: 1, 1: 1, 2: 2, 3: 2, 5: 4, 64: 64, 65: 64, 1<<63 + 1: 1 << 63, 1<<64 - 1: 1 << 63, 1 << 62: 1 << 62}
	for in, want := range cases {
		if got := PrevPow2(in); got != want {
			t.Fatalf("PrevPow2(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestShardCount(t *testing.T) {
	t.Parallel()

	if got := ShardCount(3, 10); got != 4 {
		t.Fatalf("explicit request must round up, got %d", got)
	}
	if got := ShardCount(1000, 10); got != 256 {
		t.Fatalf("explicit request must clamp, got %d", got)
	}
	if got := ShardCount(0, 10); got != 1 {
		t.Fatalf("tiny cache must not be split, got %d", got)
	}
	if got := ShardCount(0, 64); got > 8 {
		t.Fatalf("64 entries allow at most 8 shards, got %d", got)
	}

	auto := ShardCount(0, 1<<30)
	want := int(min(NextPow2(uint64(2*runtime.GOMAXPROCS(0))), 256))
	if auto != want {
		t.Fatalf("large cache: got %d shards, want %d", auto, want)
	}
}

func TestShardIndex_InRange(t *testing.T) {
	t.Parallel()

	for _, shards := range []int{1, 2, 16, 256} {
		for k := int64(-50); k < 50; k++ {
			idx := ShardIndex(Hash(k), shards)
			if idx < 0 || idx >= shards {
				t.Fatalf("ShardIndex out of range: %d for %d shards", idx, shards)
			}
		}
	}
}

func TestHash_StableAndDistinct(t *testing.T) {
	t.Parallel()

	if Hash("cell:1") != Hash("cell:1") {
		t.Fatal("hash must be deterministic")
	}
	if Hash(int64(1)) == Hash(int64(2)) {
		t.Fatal("adjacent cell indices should not collide")
	}
}

func TestHash_ComparableKeys(t *testing.T) {
	t.Parallel()

	type pos struct{ x, y int }
	if Hash(pos{1, 2}) != Hash(pos{1, 2}) {
		t.Fatal("equal struct keys must hash equally")
	}
	if Hash(pos{1, 2}) == Hash(pos{2, 1}) {
		t.Fatal("distinct struct keys should not collide")
	}
	if Hash([3]int64{1, 2, 3}) != Hash([3]int64{1, 2, 3}) {
		t.Fatal("equal array keys must hash equally")
	}
}

func TestCounter(t *testing.T) {
	t.Parallel()

	var c Counter
	c.Inc()
	c.Inc()
	if c.Load() != 2 {
		t.Fatalf("counter = %d, want 2", c.Load())
	}
}
