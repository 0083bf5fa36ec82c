// Package reporting sends unrecoverable cache failures to Sentry.
package reporting

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/IvanBrykalov/cellcache/cache"
)

var uuidRx = regexp.MustCompile(`[0-9a-f]{8}-?([0-9a-f]{4}-?){3}[0-9a-f]{12}`)
var tmpRx = regexp.MustCompile(`\.tmp-\d+`)

// sanitizeError strips per-run noise so one failure groups into one issue.
func sanitizeError(err string) string {
	err = uuidRx.ReplaceAllString(err, "<uuid>")
	err = tmpRx.ReplaceAllString(err, ".tmp-<n>")
	return err
}

// Reporter captures errors on a Sentry hub. With a nil hub it only logs.
type Reporter struct {
	hub    *sentry.Hub
	logger *slog.Logger
	tags   map[string]string
}

func NewReporter(hub *sentry.Hub, logger *slog.Logger, tags map[string]string) *Reporter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Reporter{hub: hub, logger: logger, tags: tags}
}

// Init configures the global Sentry client for dsn. An empty dsn yields a
// log-only Reporter. flush blocks until buffered events are sent.
func Init(dsn string, logger *slog.Logger, tags map[string]string) (r *Reporter, flush func(), err error) {
	if dsn == "" {
		return NewReporter(nil, logger, tags), func() {}, nil
	}
	err = sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		EnableTracing:    false,
		AttachStacktrace: true,
	})
	if err != nil {
		return nil, nil, err
	}
	flush = func() {
		sentry.Flush(5 * time.Second)
	}
	return NewReporter(sentry.CurrentHub(), logger, tags), flush, nil
}

// Report captures err with the given extras.
func (r *Reporter) Report(ctx context.Context, err error, extras ...map[string]string) {
	if err == nil {
		err = fmt.Errorf("no error provided")
	}
	if r.hub == nil {
		r.logger.WarnContext(ctx, "sentry disabled, not reporting error",
			slog.String("error", err.Error()),
			slog.Any("extras", extras),
		)
		return
	}
	r.logger.ErrorContext(ctx, "reporting error to sentry",
		slog.String("error", err.Error()),
		slog.Any("extras", extras),
	)

	r.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(r.tags)
		if k, ok := cache.ErrorKey(err); ok {
			scope.SetExtra("key", fmt.Sprint(k))
		}
		for _, extra := range extras {
			for key, value := range extra {
				scope.SetExtra(key, value)
			}
		}
		scope.SetFingerprint([]string{"{{ default }}", sanitizeError(err.Error())})
		r.hub.CaptureException(err)
	})
}

// Fatal is a hook for cache.WithFatalHook.
func (r *Reporter) Fatal(e *cache.FatalError) {
	r.Report(context.Background(), e, map[string]string{"op": "unchecked"})
}

// Flush waits for buffered events of the reporter's hub.
func (r *Reporter) Flush(timeout time.Duration) bool {
	if r.hub == nil {
		return true
	}
	return r.hub.Flush(timeout)
}
