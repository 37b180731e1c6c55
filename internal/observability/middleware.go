package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"ai-speaking-practice/internal/observability/metrics"
)

// RequestTypeHeader is set by the API handler so the middleware can label
// metrics with the operation kind resolved from the request body.
const RequestTypeHeader = "X-Practice-Request-Type"

// HTTPMiddleware records request metrics and writes one access log line per request.
func HTTPMiddleware(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			duration := time.Since(start)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			requestType := ww.Header().Get(RequestTypeHeader)
			if requestType == "" {
				requestType = "unknown"
			}
			m.RecordRequest(requestType, strconv.Itoa(status), duration.Seconds())

			log.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("requestId", middleware.GetReqID(r.Context())).
				Str("requestType", requestType).
				Int("status", status).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", duration).
				Msg("HTTP request")
		})
	}
}
