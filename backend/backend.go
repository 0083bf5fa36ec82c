// Package backend holds what the storage backends share: the value codec
// and the write-back rule.
package backend

import (
	"fmt"

	"github.com/IvanBrykalov/cellcache/cache"
)

// Codec converts values to and from their stored form.
type Codec[V any] interface {
	Marshal(v V) ([]byte, error)
	Unmarshal(b []byte) (V, error)
}

// BytesCodec stores []byte values as is.
type BytesCodec struct{}

func (BytesCodec) Marshal(v []byte) ([]byte, error)   { return v, nil }
func (BytesCodec) Unmarshal(b []byte) ([]byte, error) { return b, nil }

// NeedsWrite reports whether a removed value has to be written back. Values
// that track mutation are written only when dirty; all others always.
func NeedsWrite[V any](v V) bool {
	if d, ok := any(v).(cache.Dirty); ok {
		return d.IsDirty()
	}
	return true
}

// KeyString is the default key-to-name mapping of the stores.
func KeyString[K comparable](k K) string { return fmt.Sprint(k) }
