// Package config watches a configuration file for the settings a running
// cellbench process may change: the background fetch budget and the log
// level. JSON, YAML, TOML, HCL, INI and properties files are accepted.
//
//	cellcache:
//	  fetch_rate: 200
//	  fetch_burst: 8
//	  log_level: debug
package config

import (
	"log/slog"
	"sync"
	"time"

	"github.com/agilira/argus"
	"github.com/agilira/go-errors"
)

const ErrCodeConfig errors.ErrorCode = "CELLCACHE_CONFIG_INVALID"

// Runtime holds the reloadable settings.
type Runtime struct {
	// FetchRate is background loads per second; 0 means unlimited.
	FetchRate  float64
	FetchBurst int
	LogLevel   slog.Level
}

// Options configures a Watcher. Path is required.
type Options struct {
	Path string
	// PollInterval defaults to 1s; values below 100ms are raised.
	PollInterval time.Duration
	// Defaults apply to keys missing from the file.
	Defaults Runtime
	// Level, when set, follows LogLevel.
	Level *slog.LevelVar
	// OnReload runs after every successful parse, including the first one.
	// It must not block.
	OnReload func(old, new Runtime)
	Logger   *slog.Logger
}

type Watcher struct {
	watcher *argus.Watcher
	opt     Options
	log     *slog.Logger

	mu  sync.RWMutex
	cur Runtime
}

// Watch creates the watcher. Call Start to begin polling.
func Watch(opt Options) (*Watcher, error) {
	if opt.Path == "" {
		return nil, errors.NewWithField(ErrCodeConfig, "config path is required", "path", opt.Path)
	}
	switch {
	case opt.PollInterval == 0:
		opt.PollInterval = time.Second
	case opt.PollInterval < 100*time.Millisecond:
		opt.PollInterval = 100 * time.Millisecond
	}
	if opt.Logger == nil {
		opt.Logger = slog.New(slog.DiscardHandler)
	}
	w := &Watcher{opt: opt, log: opt.Logger, cur: opt.Defaults}

	aw, err := argus.UniversalConfigWatcherWithConfig(opt.Path, w.handleChange, argus.Config{
		PollInterval: opt.PollInterval,
	})
	if err != nil {
		return nil, errors.Wrap(err, ErrCodeConfig, "cannot watch config file").WithContext("path", opt.Path)
	}
	w.watcher = aw
	return w, nil
}

func (w *Watcher) Start() error {
	if w.watcher.IsRunning() {
		return nil
	}
	return w.watcher.Start()
}

func (w *Watcher) Stop() error { return w.watcher.Stop() }

// Current returns the settings in effect.
func (w *Watcher) Current() Runtime {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cur
}

func (w *Watcher) handleChange(data map[string]interface{}) {
	w.mu.Lock()
	old := w.cur
	next := Parse(data, w.opt.Defaults)
	w.cur = next
	w.mu.Unlock()

	if w.opt.Level != nil {
		w.opt.Level.Set(next.LogLevel)
	}
	w.log.Info("configuration reloaded",
		slog.Float64("fetch_rate", next.FetchRate),
		slog.Int("fetch_burst", next.FetchBurst),
		slog.String("log_level", next.LogLevel.String()),
	)
	if w.opt.OnReload != nil {
		w.opt.OnReload(old, next)
	}
}

// Parse reads settings from the "cellcache" section of data, or from the
// top level if there is no such section. Invalid values keep the default.
func Parse(data map[string]interface{}, defaults Runtime) Runtime {
	rt := defaults
	section, ok := data["cellcache"].(map[string]interface{})
	if !ok {
		section = data
	}
	if r, ok := parseNonNegative(section["fetch_rate"]); ok {
		rt.FetchRate = r
	}
	if b, ok := parseNonNegative(section["fetch_burst"]); ok && b >= 1 {
		rt.FetchBurst = int(b)
	}
	if s, ok := section["log_level"].(string); ok {
		var lvl slog.Level
		if err := lvl.UnmarshalText([]byte(s)); err == nil {
			rt.LogLevel = lvl
		}
	}
	return rt
}

// parseNonNegative accepts the numeric types the file formats decode to.
func parseNonNegative(value interface{}) (float64, bool) {
	var f float64
	switch v := value.(type) {
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case float64:
		f = v
	default:
		return 0, false
	}
	return f, f >= 0
}
