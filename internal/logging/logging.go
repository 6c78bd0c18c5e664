// Package logging wires charmbracelet/log in as the backing handler for
// log/slog, and provides a request-ID-correlated logger for handlers and
// background workers.
package logging

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	charm "github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mattn/go-isatty"
)

// Handler is the process-wide charm log handler. SetVerbose raises its level
// after flags are parsed.
var Handler = charm.NewWithOptions(os.Stderr, charm.Options{
	ReportTimestamp: true,
	TimeFormat:      time.Kitchen,
})

func init() {
	if !isatty.IsTerminal(os.Stderr.Fd()) {
		Handler.SetFormatter(charm.JSONFormatter)
	}
	slog.SetDefault(slog.New(Handler))
}

// SetVerbose raises the handler to debug level.
func SetVerbose() {
	Handler.SetLevel(charm.DebugLevel)
}

// Log returns a logger carrying the inbound request ID, if any, as a
// structured field. Handlers and pipelines should use this instead of
// slog.Default directly so that log lines for a given request can be
// correlated.
func Log(ctx context.Context) *slog.Logger {
	if id := middleware.GetReqID(ctx); id != "" {
		return slog.Default().With("request_id", id)
	}
	return slog.Default()
}

// requestLogger logs method, path, status, duration and request ID for
// every inbound HTTP request.
type requestLogger struct{}

// Wrap returns next wrapped with access logging.
func (requestLogger) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		Log(r.Context()).Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
		)
	})
}

// Middleware is the chi-compatible access-log middleware.
func Middleware(next http.Handler) http.Handler {
	return requestLogger{}.Wrap(next)
}
