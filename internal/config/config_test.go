package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Parallel()

	defaults := Runtime{FetchRate: 50, FetchBurst: 1, LogLevel: slog.LevelInfo}

	tests := []struct {
		name string
		data map[string]interface{}
		want Runtime
	}{
		{
			name: "section",
			data: map[string]interface{}{"cellcache": map[string]interface{}{
				"fetch_rate": 200.0, "fetch_burst": 8, "log_level": "debug",
			}},
			want: Runtime{FetchRate: 200, FetchBurst: 8, LogLevel: slog.LevelDebug},
		},
		{
			name: "top level",
			data: map[string]interface{}{"fetch_rate": 0, "log_level": "WARN"},
			want: Runtime{FetchRate: 0, FetchBurst: 1, LogLevel: slog.LevelWarn},
		},
		{
			name: "invalid values keep defaults",
			data: map[string]interface{}{"fetch_rate": -3.0, "fetch_burst": 0, "log_level": "loud"},
			want: defaults,
		},
		{
			name: "empty",
			data: map[string]interface{}{},
			want: defaults,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, Parse(tt.data, defaults))
		})
	}
}

func TestWatch_EmptyPath(t *testing.T) {
	t.Parallel()

	_, err := Watch(Options{})
	require.Error(t, err)
}

func TestWatcher_InitialLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "cellbench.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cellcache:\n  fetch_rate: 25\n  log_level: error\n"), 0o644))

	var level slog.LevelVar
	reloads := make(chan Runtime, 4)
	w, err := Watch(Options{
		Path:         path,
		PollInterval: 50 * time.Millisecond,
		Defaults:     Runtime{FetchBurst: 2},
		Level:        &level,
		OnReload: func(_, next Runtime) {
			select {
			case reloads <- next:
			default:
			}
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Stop() })
	require.NoError(t, w.Start())

	select {
	case rt := <-reloads:
		require.InDelta(t, 25, rt.FetchRate, 0)
		require.Equal(t, 2, rt.FetchBurst)
		require.Equal(t, slog.LevelError, rt.LogLevel)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for initial config load")
	}
	require.Equal(t, slog.LevelError, level.Level())
	require.Equal(t, slog.LevelError, w.Current().LogLevel)
}
