package cache

import (
	"context"
	"log/slog"
)

// UncheckedOption configures the unchecked adapters.
type UncheckedOption func(*fatalSink)

// WithFatalHook registers fn to run with the failure right before the
// adapter panics, e.g. to flush an error report.
func WithFatalHook(fn func(*FatalError)) UncheckedOption {
	return func(s *fatalSink) { s.hook = fn }
}

// WithFatalLogger logs every fatal failure at Error level before panicking.
func WithFatalLogger(l *slog.Logger) UncheckedOption {
	return func(s *fatalSink) { s.log = l }
}

type fatalSink struct {
	log  *slog.Logger
	hook func(*FatalError)
}

func newFatalSink(opts []UncheckedOption) fatalSink {
	s := fatalSink{log: slog.New(slog.DiscardHandler)}
	for _, o := range opts {
		o(&s)
	}
	return s
}

// fail reports and panics. It never returns.
func (s fatalSink) fail(op string, k any, err error) {
	fe := newFatal(k, err)
	s.log.Error("unrecoverable cache failure",
		slog.String("op", op),
		slog.Any("key", k),
		slog.String("error", err.Error()),
	)
	if s.hook != nil {
		s.hook(fe)
	}
	panic(fe)
}

// ---- UncheckedLoadingCache ----

type uncheckedCache[K comparable, V any] struct {
	c    Cache[K, V]
	sink fatalSink
}

// Unchecked erases the error surface of c. Get panics with a *FatalError
// when c.Get fails; removal failures from Invalidate, InvalidateAll and
// PersistAll do the same. The returned value is also a Loader that reports
// failures as ordinary errors, so it can back another cache.
func Unchecked[K comparable, V any](c Cache[K, V], opts ...UncheckedOption) UncheckedLoadingCache[K, V] {
	return uncheckedCache[K, V]{c: c, sink: newFatalSink(opts)}
}

func (u uncheckedCache[K, V]) Get(k K) V {
	v, err := u.c.Get(context.Background(), k)
	if err != nil {
		u.sink.fail("get", k, err)
	}
	return v
}

func (u uncheckedCache[K, V]) Load(ctx context.Context, k K) (V, error) { return u.c.Get(ctx, k) }

func (u uncheckedCache[K, V]) GetIfPresent(k K) (V, bool) { return u.c.GetIfPresent(k) }

func (u uncheckedCache[K, V]) Invalidate(k K) {
	if err := u.c.Invalidate(context.Background(), k); err != nil {
		u.sink.fail("invalidate", k, err)
	}
}

func (u uncheckedCache[K, V]) InvalidateAll() {
	if err := u.c.InvalidateAll(context.Background()); err != nil {
		u.sink.fail("invalidate_all", nil, err)
	}
}

func (u uncheckedCache[K, V]) PersistAll() {
	if err := u.c.PersistAll(context.Background()); err != nil {
		u.sink.fail("persist_all", nil, err)
	}
}

func (u uncheckedCache[K, V]) Len() int { return u.c.Len() }

// ---- volatile ----

type uncheckedVolatile[K comparable, V any] struct {
	c    VolatileCache[K, V]
	sink fatalSink
}

// UncheckedVolatile erases the error surface of a VolatileCache.
func UncheckedVolatile[K comparable, V any](c VolatileCache[K, V], opts ...UncheckedOption) UncheckedVolatileCache[K, V] {
	return uncheckedVolatile[K, V]{c: c, sink: newFatalSink(opts)}
}

func (u uncheckedVolatile[K, V]) Get(k K, hints CacheHints) V {
	v, err := u.c.Get(context.Background(), k, hints)
	if err != nil {
		u.sink.fail("get", k, err)
	}
	return v
}

func (u uncheckedVolatile[K, V]) GetIfPresent(k K) (V, bool) { return u.c.GetIfPresent(k) }

func (u uncheckedVolatile[K, V]) Invalidate(k K) {
	if err := u.c.Invalidate(context.Background(), k); err != nil {
		u.sink.fail("invalidate", k, err)
	}
}

func (u uncheckedVolatile[K, V]) InvalidateAll() {
	if err := u.c.InvalidateAll(context.Background()); err != nil {
		u.sink.fail("invalidate_all", nil, err)
	}
}

type uncheckedVolatileLoader[K comparable, V any] struct {
	c    VolatileLoaderCache[K, V]
	sink fatalSink
}

// UncheckedVolatileLoader erases the error surface of a VolatileLoaderCache.
func UncheckedVolatileLoader[K comparable, V any](c VolatileLoaderCache[K, V], opts ...UncheckedOption) UncheckedVolatileLoaderCache[K, V] {
	return uncheckedVolatileLoader[K, V]{c: c, sink: newFatalSink(opts)}
}

func (u uncheckedVolatileLoader[K, V]) Get(k K, loader VolatileLoader[K, V], hints CacheHints) V {
	v, err := u.c.Get(context.Background(), k, loader, hints)
	if err != nil {
		u.sink.fail("get", k, err)
	}
	return v
}

func (u uncheckedVolatileLoader[K, V]) GetIfPresent(k K) (V, bool) { return u.c.GetIfPresent(k) }

func (u uncheckedVolatileLoader[K, V]) Invalidate(k K) {
	if err := u.c.Invalidate(context.Background(), k); err != nil {
		u.sink.fail("invalidate", k, err)
	}
}

func (u uncheckedVolatileLoader[K, V]) InvalidateAll() {
	if err := u.c.InvalidateAll(context.Background()); err != nil {
		u.sink.fail("invalidate_all", nil, err)
	}
}
