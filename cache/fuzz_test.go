package cache

import (
	"context"
	"strings"
	"testing"
)

// reverseBimap maps a string to its reversal. It is its own inverse.
var reverseBimap = NewKeyBimap(reverse, reverse)

func reverse(s string) string {
	r := []rune(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}

// Fuzz the key-mapping adapter: a mapped Get must equal the inner Get on the
// target key, and invalidating through either view removes the one entry.
// Inputs are capped to keep memory bounded.
func FuzzMapKeys_Transparency(f *testing.F) {
	f.Add("", "")
	f.Add("a", "1")
	f.Add("αβγ", "δ")
	f.Add("emoji🙂", "🙂🙂")
	f.Add("long", strings.Repeat("x", 1024))

	f.Fuzz(func(t *testing.T, k, v string) {
		const limit = 1 << 12
		if len(k) > limit {
			k = k[:limit]
		}
		if len(v) > limit {
			v = v[:limit]
		}
		// Invalid UTF-8 does not survive a rune round trip.
		if err := CheckBijective(reverseBimap, k); err != nil {
			t.Skip()
		}

		store := New[string, string](Options[string, string]{Capacity: 16})
		t.Cleanup(func() { _ = store.Close() })

		loader := LoaderFunc[string, string](func(_ context.Context, l string) (string, error) {
			return l + "|" + v, nil
		})
		inner := WithLoader(WithRemovalListener[string, string](store, nil), loader)
		outer := MapKeys(inner, reverseBimap)
		ctx := context.Background()

		got, err := outer.Get(ctx, k)
		if err != nil {
			t.Fatalf("outer Get: %v", err)
		}
		want, err := inner.Get(ctx, reverse(k))
		if err != nil {
			t.Fatalf("inner Get: %v", err)
		}
		if got != want {
			t.Fatalf("mapped Get %q != inner Get %q", got, want)
		}
		if store.Len() != 1 {
			t.Fatalf("expected exactly one entry, got %d", store.Len())
		}

		if err := outer.Invalidate(ctx, k); err != nil {
			t.Fatalf("Invalidate: %v", err)
		}
		if _, ok := inner.GetIfPresent(reverse(k)); ok {
			t.Fatalf("entry must be gone after invalidation through the mapped view")
		}
	})
}
