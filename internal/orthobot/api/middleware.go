package api

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/bdobrica/OrthoBot/common/trace"
)

// traceMiddleware attaches a trace ID to the request context, honouring an
// inbound X-Trace-ID, and echoes it on the response.
func traceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, id := trace.Ensure(r.Context(), r.Header.Get(trace.Header))
		w.Header().Set(trace.Header, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// logMiddleware logs one line per request.
func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		slog.Debug("api: request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"trace_id", trace.FromContext(r.Context()),
		)
	})
}

// recoverMiddleware turns a handler panic into a 500.
func recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("api: panic recovered",
					"panic", rec,
					"method", r.Method,
					"path", r.URL.Path,
					"trace_id", trace.FromContext(r.Context()),
					"stack", string(debug.Stack()),
				)
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
