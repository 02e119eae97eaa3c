package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"fieldcollect-backend/internal/metrics"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

type contextKey string

const loggerContextKey contextKey = "logger"

// RequestLogger logs each request through logrus and records its latency.
// Handlers reach the request-scoped entry through LoggerFrom.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		entry := logrus.WithFields(logrus.Fields{
			"request_id": chimiddleware.GetReqID(r.Context()),
			"method":     r.Method,
			"path":       r.URL.Path,
		})

		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(context.WithValue(r.Context(), loggerContextKey, entry)))

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())

		fields := logrus.Fields{"status": status, "duration_ms": elapsed.Milliseconds()}
		switch {
		case status >= 500:
			entry.WithFields(fields).Error("❌ Request failed")
		case status >= 400:
			entry.WithFields(fields).Warn("⚠️  Request rejected")
		default:
			entry.WithFields(fields).Debug("✅ Request served")
		}
	})
}

// LoggerFrom returns the request-scoped log entry, or the standard logger
// when the request did not pass through RequestLogger
func LoggerFrom(ctx context.Context) *logrus.Entry {
	if entry, ok := ctx.Value(loggerContextKey).(*logrus.Entry); ok {
		return entry
	}
	return logrus.NewEntry(logrus.StandardLogger())
}
