// Command cellbench runs a synthetic read/write workload against a cached
// cell image with write-back to disk or PostgreSQL, and exposes optional
// pprof/Prometheus endpoints.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/IvanBrykalov/cellcache/backend/diskstore"
	"github.com/IvanBrykalov/cellcache/backend/memstore"
	"github.com/IvanBrykalov/cellcache/backend/pgstore"
	"github.com/IvanBrykalov/cellcache/cache"
	"github.com/IvanBrykalov/cellcache/cache/volatile"
	"github.com/IvanBrykalov/cellcache/img"
	"github.com/IvanBrykalov/cellcache/internal/config"
	"github.com/IvanBrykalov/cellcache/internal/reporting"
	"github.com/IvanBrykalov/cellcache/policy/lru"
	pmet "github.com/IvanBrykalov/cellcache/metrics/prom"
)

type cell = img.Cell[float32]

func main() {
	// ---- Flags ----
	var (
		dimsFlag = flag.String("dims", "4096,4096", "image dimensions, comma separated")
		cellFlag = flag.String("cell", "64,64", "cell dimensions, comma separated")
		capacity = flag.Int("cap", 1024, "cache capacity (cells)")
		shards   = flag.Int("shards", 0, "number of shards (0=auto)")
		maxCost  = flag.Int64("max_cost", 0, "cache budget in element bytes (0=disabled)")
		parked   = flag.Uint64("parked", 256, "cells kept in the in-memory second tier (0=unbounded)")
		cleanWin = flag.Int("clean_first", 0, "prefer clean victims within this many LRU entries (0=plain LRU)")

		store   = flag.String("store", "disk", "write-back store: disk | pg")
		dir     = flag.String("dir", "", "disk store parent directory (default: temp dir)")
		pgConn  = flag.String("pg", pgstore.LocalConnectionString, "PostgreSQL connection string")
		pgSpace = flag.String("namespace", "cellbench", "PostgreSQL namespace")

		workers  = flag.Int("workers", 2*runtime.GOMAXPROCS(0), "number of worker goroutines")
		duration = flag.Duration("duration", 10*time.Second, "benchmark duration")
		writePct = flag.Int("writes", 10, "write percentage [0..100]")
		zipfS    = flag.Float64("zipf_s", 1.1, "Zipf s > 1 (skew over cells)")
		zipfV    = flag.Float64("zipf_v", 1.0, "Zipf v")
		seed     = flag.Int64("seed", time.Now().UnixNano(), "random seed")

		useVolatile  = flag.Bool("volatile", false, "read through the volatile image")
		fetchWorkers = flag.Int("fetch_workers", 4, "background loaders of the volatile image")
		fetchRate    = flag.Float64("fetch_rate", 0, "background loads per second (0=unlimited)")

		configPath  = flag.String("config", "", "hot-reloaded config file (fetch_rate, fetch_burst, log_level)")
		sentryDSN   = flag.String("sentry", "", "Sentry DSN for fatal cache failures")
		pprofAddr   = flag.String("pprof", "", "serve pprof at addr (e.g. :6060); empty = disabled")
		metricsAddr = flag.String("http", ":8080", "serve Prometheus metrics at addr")
	)
	flag.Parse()

	var level slog.LevelVar
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: &level}))
	fatal := func(msg string, err error) {
		logger.Error(msg, slog.String("error", err.Error()))
		os.Exit(1)
	}

	dims, err := parseInts[int64](*dimsFlag)
	if err != nil {
		fatal("invalid -dims", err)
	}
	cellDims, err := parseInts[int](*cellFlag)
	if err != nil {
		fatal("invalid -cell", err)
	}
	grid, err := img.NewGrid(dims, cellDims)
	if err != nil {
		fatal("invalid geometry", err)
	}

	reporter, flush, err := reporting.Init(*sentryDSN, logger, map[string]string{"component": "cellbench"})
	if err != nil {
		fatal("failed to initialize sentry", err)
	}
	defer flush()

	// ---- pprof server (on DefaultServeMux) ----
	if *pprofAddr != "" {
		go func() {
			logger.Info("pprof: serving", slog.String("addr", *pprofAddr))
			logger.Warn("pprof: stopped", slog.Any("error", http.ListenAndServe(*pprofAddr, nil)))
		}()
	}

	// ---- Prometheus metrics (on DefaultServeMux) ----
	metrics := pmet.New(nil, "cellcache", "bench", nil)
	http.Handle("/metrics", promhttp.Handler())
	go func() {
		logger.Info("metrics: serving", slog.String("addr", *metricsAddr))
		logger.Warn("metrics: stopped", slog.Any("error", http.ListenAndServe(*metricsAddr, nil)))
	}()

	// ---- Cell source and write-back chain ----
	// Cells start as a gradient; edited cells go to the store, recently
	// evicted ones wait in the second tier first.
	source := img.NewLoadedCellCacheLoader(grid, img.CellLoaderFunc[float32](func(_ context.Context, c img.SingleCell[float32]) error {
		c.Each(func(i int, pos []int64) {
			var s int64
			for _, p := range pos {
				s += p
			}
			c.Elems()[i] = float32(s)
		})
		return nil
	}), img.Dirty|img.Volatile)
	codec := img.CellCodec[float32]{Flags: img.Dirty | img.Volatile}

	var backing interface {
		cache.Loader[int64, *cell]
		cache.Remover[int64, *cell]
	}
	switch *store {
	case "disk":
		ds, err := diskstore.New(diskstore.Options[int64, *cell]{Dir: *dir, Codec: codec, Fallback: source, Logger: logger})
		if err != nil {
			fatal("failed to create disk store", err)
		}
		defer func() { _ = ds.Close() }()
		backing = ds
	case "pg":
		db, err := pgstore.Open(*pgConn)
		if err != nil {
			fatal("failed to connect to postgres", err)
		}
		defer func() { _ = db.Close() }()
		if err := pgstore.NewMigrator(db, logger).Migrate(context.Background(), pgstore.MainSchema); err != nil {
			fatal("failed to migrate", err)
		}
		ps, err := pgstore.New(db, pgstore.Options[int64, *cell]{Namespace: *pgSpace, Codec: codec, Fallback: source, Logger: logger})
		if err != nil {
			fatal("failed to create postgres store", err)
		}
		backing = ps
	default:
		fatal("unknown store", fmt.Errorf("%q (use disk or pg)", *store))
	}

	tier := memstore.New(memstore.Options[int64, *cell]{
		Capacity: *parked,
		Next:     backing,
		Spill:    backing,
		OnSpillError: func(k int64, err error) {
			logger.Warn("second tier spill failed", slog.Int64("key", k), slog.String("error", err.Error()))
		},
	})
	defer tier.Close()

	// ---- Build caches ----
	sharded := cache.New[int64, *cell](cache.Options[int64, *cell]{
		Capacity: *capacity,
		Shards:   *shards,
		Policy:   lru.New[int64, *cell](lru.WithCleanFirst(*cleanWin)),
		Metrics:  metrics,
		Logger:   logger,
		Cost:     func(c *cell) int { return c.NumElements() * 4 },
		MaxCost:  *maxCost,
	})
	defer func() {
		if err := sharded.Close(); err != nil {
			logger.Error("flush on close failed", slog.String("error", err.Error()))
		}
	}()
	cells := cache.WithRemovalListener[int64, *cell](sharded, tier)

	image := img.NewCachedCellImg(grid, cache.WithLoader(cells, cache.Loader[int64, *cell](tier)),
		cache.WithFatalHook(reporter.Fatal), cache.WithFatalLogger(logger))

	vc := volatile.New[int64, *cell](cells, volatile.Options{
		Workers:   *fetchWorkers,
		FetchRate: rate.Limit(*fetchRate),
		Logger:    logger,
	})
	defer func() { _ = vc.Close() }()
	preview := img.NewVolatileCachedCellImg(grid, cache.WithVolatileLoader[int64, *cell](vc, volatileSource{tier, source}),
		cache.VolatileHints, cache.WithFatalHook(reporter.Fatal), cache.WithFatalLogger(logger))

	// ---- Hot reload ----
	if *configPath != "" {
		w, err := config.Watch(config.Options{
			Path:     *configPath,
			Defaults: config.Runtime{FetchRate: *fetchRate, FetchBurst: 1, LogLevel: slog.LevelInfo},
			Level:    &level,
			Logger:   logger,
			OnReload: func(_, rt config.Runtime) {
				vc.SetFetchRate(rate.Limit(rt.FetchRate), rt.FetchBurst)
			},
		})
		if err != nil {
			fatal("failed to watch config", err)
		}
		if err := w.Start(); err != nil {
			fatal("failed to start config watcher", err)
		}
		defer func() { _ = w.Stop() }()
	}

	// ---- Snapshot flags for goroutines ----
	writePctVal := *writePct
	cellsMax := uint64(grid.NumCells() - 1)
	seedBase := *seed
	zipfSVal := *zipfS
	zipfVVal := *zipfV
	volatileReads := *useVolatile
	workersN := *workers
	if workersN <= 0 {
		workersN = 1
	}

	// ---- Load generation ----
	var reads, writes, invalid, total uint64
	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(workersN)
	for w := 0; w < workersN; w++ {
		go func(id int) {
			defer wg.Done()

			// Each worker gets its own RNG + Zipf (rand.Rand is NOT goroutine-safe).
			localR := rand.New(rand.NewSource(seedBase + int64(id)*9973))
			localZipf := rand.NewZipf(localR, zipfSVal, zipfVVal, cellsMax)
			pos := make([]int64, grid.NumDimensions())

			positionByZipf := func() []int64 {
				origin, size := grid.CellBounds(int64(localZipf.Uint64()))
				for d := range pos {
					pos[d] = origin[d] + localR.Int63n(int64(size[d]))
				}
				return pos
			}

			for {
				select {
				case <-ctx.Done():
					return
				default:
				}

				atomic.AddUint64(&total, 1)
				p := positionByZipf()
				switch {
				case int(localR.Int31n(100)) < writePctVal:
					atomic.AddUint64(&writes, 1)
					image.Set(localR.Float32(), p...)
				case volatileReads:
					atomic.AddUint64(&reads, 1)
					if _, ok := preview.Get(p...); !ok {
						atomic.AddUint64(&invalid, 1)
					}
				default:
					atomic.AddUint64(&reads, 1)
					_ = image.Get(p...)
				}
			}
		}(w)
	}
	wg.Wait()
	elapsed := time.Since(start)

	flushStart := time.Now()
	image.Flush()
	flushed := time.Since(flushStart)

	// ---- Report ----
	ops := atomic.LoadUint64(&total)
	fmt.Printf("dims=%s cell=%s cells=%d cap=%d shards=%d workers=%d store=%s volatile=%t dur=%v seed=%d\n",
		*dimsFlag, *cellFlag, grid.NumCells(), *capacity, *shards, workersN, *store, volatileReads, elapsed, seedBase)
	fmt.Printf("ops=%d (%.0f ops/s)  reads=%d  writes=%d  invalid-reads=%d\n",
		ops, float64(ops)/elapsed.Seconds(), atomic.LoadUint64(&reads), atomic.LoadUint64(&writes), atomic.LoadUint64(&invalid))
	st := sharded.Stats()
	fmt.Printf("hits=%d  misses=%d  evictions=%d  entries=%d  cost=%d\n", st.Hits, st.Misses, st.Evictions, st.Entries, st.Cost)
	fmt.Printf("parked=%d  pending=%d  flush=%v\n", tier.Len(), vc.Pending(), flushed)
}

// volatileSource loads through the write-back chain and borrows placeholders
// from the cell loader.
type volatileSource struct {
	cache.Loader[int64, *cell]
	placeholders cache.VolatileLoader[int64, *cell]
}

func (s volatileSource) CreateInvalid(ctx context.Context, k int64) (*cell, error) {
	return s.placeholders.CreateInvalid(ctx, k)
}

func parseInts[T int | int64](s string) ([]T, error) {
	parts := strings.Split(s, ",")
	out := make([]T, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, T(v))
	}
	return out, nil
}
