package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/kbukum/bytepipe/logger"
	"github.com/kbukum/bytepipe/observability"
)

// RequestLogger logs every request with method, path, status and duration,
// wraps it in a server span and records request metrics. Health and version
// checks are passed through untouched. metrics may be nil.
func RequestLogger(log *logger.Logger, service string, metrics *observability.Metrics) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isHealthCheck(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			route := r.Method + " " + r.URL.Path
			oc := observability.NewOperationContext(service, route, logger.RequestIDFromContext(r.Context()), metrics)
			ctx, span := oc.StartSpanForOperation(r.Context(), "http "+route)
			ctx = observability.WithOperationContext(ctx, oc)

			sw := newStatusWriter(w)
			next.ServeHTTP(sw, r.WithContext(ctx))

			var err error
			if sw.status >= http.StatusBadRequest {
				err = fmt.Errorf("status %d", sw.status)
				metrics.RecordError(ctx, strconv.Itoa(sw.status), "http")
			}
			oc.EndOperation(ctx, span, strconv.Itoa(sw.status), err)

			fields := logger.Fields(
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"bytes", sw.written,
				"duration_ms", oc.Duration().Milliseconds(),
			)
			if oc.Duration() > 5*time.Second {
				fields["slow"] = true
			}
			logByStatus(log.WithContext(ctx), fields, sw.status)
		})
	}
}

func isHealthCheck(path string) bool {
	switch path {
	case "/health", "/version":
		return true
	}
	return false
}

func logByStatus(log *logger.Logger, fields map[string]interface{}, status int) {
	switch {
	case status >= 500:
		log.Error("Request completed", fields)
	case status >= 400:
		log.Warn("Request completed", fields)
	default:
		log.Debug("Request completed", fields)
	}
}
