package otelmetric

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/IvanBrykalov/cellcache/cache"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sum(t *testing.T, m metricdata.Metrics) int64 {
	t.Helper()
	s, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "%s is not an int64 sum", m.Name)
	var total int64
	for _, dp := range s.DataPoints {
		total += dp.Value
	}
	return total
}

func TestNew_NilProvider(t *testing.T) {
	t.Parallel()

	c, err := New(nil)
	require.Error(t, err)
	require.Nil(t, c)
}

func TestCollector_WithCache(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	m, err := New(provider, WithAttributes(attribute.String("img", "test")))
	require.NoError(t, err)

	c := cache.New[int, int](cache.Options[int, int]{Capacity: 1, Shards: 1, Metrics: m})
	t.Cleanup(func() { _ = c.Close() })

	ctx := context.Background()
	ok := cache.LoaderFunc[int, int](func(_ context.Context, k int) (int, error) { return k, nil })
	bad := cache.LoaderFunc[int, int](func(context.Context, int) (int, error) { return 0, errors.New("no") })
	failing := cache.RemoverFunc[int, int](func(context.Context, int, int) error { return errors.New("disk") })

	_, err = c.Get(ctx, 1, ok, failing)
	require.NoError(t, err)
	_, err = c.Get(ctx, 1, ok, failing)
	require.NoError(t, err)
	_, err = c.Get(ctx, 2, ok, nil)
	require.NoError(t, err)
	_, err = c.Get(ctx, 3, bad, nil)
	require.Error(t, err)

	got := collect(t, reader)
	require.EqualValues(t, 1, sum(t, got["cellcache_hits_total"]))
	require.EqualValues(t, 3, sum(t, got["cellcache_misses_total"]))
	require.EqualValues(t, 1, sum(t, got["cellcache_evictions_total"]))
	require.EqualValues(t, 1, sum(t, got["cellcache_removal_failures_total"]))

	h, isHist := got["cellcache_load_duration_ns"].Data.(metricdata.Histogram[int64])
	require.True(t, isHist)
	var loads uint64
	for _, dp := range h.DataPoints {
		loads += dp.Count
	}
	require.EqualValues(t, 3, loads)

	g, isGauge := got["cellcache_size_entries"].Data.(metricdata.Gauge[int64])
	require.True(t, isGauge)
	require.Len(t, g.DataPoints, 1)
	require.EqualValues(t, 1, g.DataPoints[0].Value)
}
