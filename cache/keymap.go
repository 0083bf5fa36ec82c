package cache

import "fmt"

// KeyBimap is a total bijection between an external key type K and the key
// type L of a wrapped cache. Source(Target(k)) == k and Target(Source(l)) == l
// must hold for every key in use; a mapping that is not injective makes two
// external keys share one entry.
type KeyBimap[K comparable, L comparable] interface {
	Target(k K) L
	Source(l L) K
}

type funcBimap[K comparable, L comparable] struct {
	toTarget func(K) L
	toSource func(L) K
}

// NewKeyBimap builds a KeyBimap from a pair of inverse functions.
func NewKeyBimap[K comparable, L comparable](toTarget func(K) L, toSource func(L) K) KeyBimap[K, L] {
	if toTarget == nil || toSource == nil {
		panic("cache: NewKeyBimap requires both directions")
	}
	return funcBimap[K, L]{toTarget: toTarget, toSource: toSource}
}

func (b funcBimap[K, L]) Target(k K) L { return b.toTarget(k) }
func (b funcBimap[K, L]) Source(l L) K { return b.toSource(l) }

// CheckBijective verifies the round trip and injectivity of m over keys.
// A violation is a programming error; the returned error names the first
// offending key.
func CheckBijective[K comparable, L comparable](m KeyBimap[K, L], keys ...K) error {
	seen := make(map[L]K, len(keys))
	for _, k := range keys {
		l := m.Target(k)
		if back := m.Source(l); back != k {
			return fmt.Errorf("cache: key bimap round trip %v -> %v -> %v", k, l, back)
		}
		if prev, dup := seen[l]; dup && prev != k {
			return fmt.Errorf("cache: key bimap maps %v and %v to %v", prev, k, l)
		}
		seen[l] = k
	}
	return nil
}
