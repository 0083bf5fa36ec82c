package volatile

import (
	"log/slog"
	"runtime"

	"golang.org/x/time/rate"
)

// Options configures a volatile Cache. Zero values are safe; defaults are
// applied in New():
//   - Workers <= 0    => GOMAXPROCS
//   - Priorities <= 0 => 4
//   - FetchRate == 0  => unlimited
//   - nil Logger      => discard
type Options struct {
	// Workers is the number of goroutines running background loads.
	Workers int

	// Priorities is the number of CacheHints.Priority levels. Hints with a
	// larger priority are served in the last level.
	Priorities int

	// FetchRate bounds background loads per second; FetchBurst is the token
	// bucket size (default 1). Blocking loads are never throttled.
	FetchRate  rate.Limit
	FetchBurst int

	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
	if o.Priorities <= 0 {
		o.Priorities = 4
	}
	if o.FetchRate <= 0 {
		o.FetchRate = rate.Inf
	}
	if o.FetchBurst <= 0 {
		o.FetchBurst = 1
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	return o
}
