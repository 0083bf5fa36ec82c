// Package otelmetric exports cache.Metrics through OpenTelemetry.
//
// Instruments:
//   - cellcache_hits_total, cellcache_misses_total: counters
//   - cellcache_evictions_total, cellcache_removal_failures_total: counters with a "reason" attribute
//   - cellcache_load_duration_ns: histogram with an "outcome" attribute
//   - cellcache_size_entries, cellcache_size_cost: gauges
//
// Any OpenTelemetry MeterProvider works; commands pair it with the
// Prometheus exporter or a manual reader in tests.
package otelmetric

import (
	"context"
	"time"

	"github.com/agilira/go-errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/IvanBrykalov/cellcache/cache"
)

// ErrCodeNilProvider is reported by New for a nil MeterProvider.
const ErrCodeNilProvider errors.ErrorCode = "CELLCACHE_OTEL_NIL_PROVIDER"

// Collector implements cache.Metrics. It is safe for concurrent use.
type Collector struct {
	hits        metric.Int64Counter
	misses      metric.Int64Counter
	evictions   metric.Int64Counter
	removalErrs metric.Int64Counter
	loads       metric.Int64Histogram
	sizeEntries metric.Int64Gauge
	sizeCost    metric.Int64Gauge

	base     metric.MeasurementOption
	reasons  map[cache.EvictReason]metric.MeasurementOption
	okOpt    metric.MeasurementOption
	errorOpt metric.MeasurementOption
}

type options struct {
	meterName string
	attrs     []attribute.KeyValue
}

// Option configures a Collector.
type Option func(*options)

// WithMeterName sets the meter name (default "github.com/IvanBrykalov/cellcache").
func WithMeterName(name string) Option {
	return func(o *options) { o.meterName = name }
}

// WithAttributes adds static attributes to every measurement, e.g. the
// name of the image a cache backs.
func WithAttributes(kv ...attribute.KeyValue) Option {
	return func(o *options) { o.attrs = append(o.attrs, kv...) }
}

// New creates the instruments on provider.
func New(provider metric.MeterProvider, opts ...Option) (*Collector, error) {
	if provider == nil {
		return nil, errors.NewWithContext(ErrCodeNilProvider, "meter provider cannot be nil", nil)
	}
	o := options{meterName: "github.com/IvanBrykalov/cellcache"}
	for _, opt := range opts {
		opt(&o)
	}
	meter := provider.Meter(o.meterName)

	c := &Collector{reasons: make(map[cache.EvictReason]metric.MeasurementOption)}
	var err error
	if c.hits, err = meter.Int64Counter("cellcache_hits_total",
		metric.WithDescription("Total number of cache hits")); err != nil {
		return nil, err
	}
	if c.misses, err = meter.Int64Counter("cellcache_misses_total",
		metric.WithDescription("Total number of cache misses")); err != nil {
		return nil, err
	}
	if c.evictions, err = meter.Int64Counter("cellcache_evictions_total",
		metric.WithDescription("Entries removed, by reason")); err != nil {
		return nil, err
	}
	if c.removalErrs, err = meter.Int64Counter("cellcache_removal_failures_total",
		metric.WithDescription("Remover failures, by reason")); err != nil {
		return nil, err
	}
	if c.loads, err = meter.Int64Histogram("cellcache_load_duration_ns",
		metric.WithDescription("Loader latency in nanoseconds"),
		metric.WithUnit("ns")); err != nil {
		return nil, err
	}
	if c.sizeEntries, err = meter.Int64Gauge("cellcache_size_entries",
		metric.WithDescription("Number of resident entries")); err != nil {
		return nil, err
	}
	if c.sizeCost, err = meter.Int64Gauge("cellcache_size_cost",
		metric.WithDescription("Total resident cost")); err != nil {
		return nil, err
	}

	// Attribute sets are built once; recording does not allocate them again.
	with := func(extra ...attribute.KeyValue) metric.MeasurementOption {
		return metric.WithAttributes(append(append([]attribute.KeyValue(nil), o.attrs...), extra...)...)
	}
	for _, r := range []cache.EvictReason{cache.EvictPolicy, cache.EvictCapacity, cache.EvictInvalidate, cache.EvictPersist} {
		c.reasons[r] = with(attribute.String("reason", r.String()))
	}
	c.okOpt = with(attribute.String("outcome", "ok"))
	c.errorOpt = with(attribute.String("outcome", "error"))
	c.base = with()
	return c, nil
}

var _ cache.Metrics = (*Collector)(nil)

func (c *Collector) Hit()  { c.hits.Add(context.Background(), 1, c.base) }
func (c *Collector) Miss() { c.misses.Add(context.Background(), 1, c.base) }

func (c *Collector) Evict(r cache.EvictReason) {
	c.evictions.Add(context.Background(), 1, c.reason(r))
}

func (c *Collector) Size(entries int, cost int64) {
	ctx := context.Background()
	c.sizeEntries.Record(ctx, int64(entries), c.base)
	c.sizeCost.Record(ctx, cost, c.base)
}

func (c *Collector) Load(d time.Duration, err error) {
	opt := c.okOpt
	if err != nil {
		opt = c.errorOpt
	}
	c.loads.Record(context.Background(), d.Nanoseconds(), opt)
}

func (c *Collector) RemovalFailed(r cache.EvictReason) {
	c.removalErrs.Add(context.Background(), 1, c.reason(r))
}

func (c *Collector) reason(r cache.EvictReason) metric.MeasurementOption {
	if opt, ok := c.reasons[r]; ok {
		return opt
	}
	return c.base
}
