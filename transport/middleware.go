package transport

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/goliatone/go-apiversions/core"
	glog "github.com/goliatone/go-logger/glog"
)

// RequestLogger logs one line per request with method, path, status and
// duration.
func RequestLogger(logger core.Logger) func(http.Handler) http.Handler {
	logger = glog.Ensure(logger)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			startedAt := time.Now()
			wrapped := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(wrapped, r)

			status := wrapped.Status()
			if status == 0 {
				status = http.StatusOK
			}
			logger.WithContext(r.Context()).Debug("http request",
				"duration_ms", time.Since(startedAt).Milliseconds(),
				"method", r.Method,
				"path", r.URL.Path,
				"request_id", wrapped.Header().Get(RequestIDHeader),
				"status", status,
			)
		})
	}
}
