// Package logging builds the zerolog logger used across the server and
// carries it through request contexts.
package logging

import (
	"context"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

type contextKey string

const loggerKey contextKey = "logger"

// New returns a logger at the given level. Format "text" writes the
// human-friendly console format, anything else writes JSON lines.
func New(level, format string) zerolog.Logger {
	return NewWithWriter(os.Stdout, level, format)
}

// NewWithWriter is New with a custom destination.
func NewWithWriter(w io.Writer, level, format string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	if format == "text" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

// WithContext stores the logger in ctx.
func WithContext(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext returns the logger stored in ctx, or a disabled logger.
func FromContext(ctx context.Context) zerolog.Logger {
	if logger, ok := ctx.Value(loggerKey).(zerolog.Logger); ok {
		return logger
	}
	return zerolog.Nop()
}

// =============================================================================
// HTTP MIDDLEWARE
// =============================================================================

// Requests logs one line per request and puts a request-scoped logger
// (tagged with chi's request id) in the request context. Mount it after
// middleware.RequestID.
func Requests(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqLog := log.With().Str("request_id", middleware.GetReqID(r.Context())).Logger()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r.WithContext(WithContext(r.Context(), reqLog)))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			evt := reqLog.Info()
			if status >= http.StatusInternalServerError {
				evt = reqLog.Error()
			}
			evt.Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Dur("duration", time.Since(start)).
				Msg("HTTP request")
		})
	}
}
