package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"pulse/pkg/logging"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// RequestLogger creates a middleware that logs requests and injects the logger.
func RequestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = uuid.NewString()
			}

			// child logger with request details
			attrs := []any{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", r.RemoteAddr),
				logging.RequestID(requestID),
			}
			if sc := trace.SpanContextFromContext(r.Context()); sc.HasTraceID() {
				attrs = append(attrs, logging.TraceID(sc.TraceID().String()))
			}
			reqLog := log.With(attrs...)

			ctx := logging.WithContext(r.Context(), reqLog)
			reqLog.Debug("request started")

			next.ServeHTTP(w, r.WithContext(ctx))

			reqLog.Debug("request completed", slog.Duration("duration", time.Since(start)))
		})
	}
}
