package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"ai-speaking-practice/internal/observability/metrics"
)

func TestServer_HealthAndReadiness(t *testing.T) {
	ready := false
	srv := NewServer(":0", func() bool { return ready })

	tests := []struct {
		path     string
		ready    bool
		expected int
	}{
		{"/healthz", false, http.StatusOK},
		{"/readyz", false, http.StatusServiceUnavailable},
		{"/readyz", true, http.StatusOK},
		{"/metrics", true, http.StatusOK},
	}

	for _, tt := range tests {
		ready = tt.ready
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
		if w.Code != tt.expected {
			t.Errorf("%s (ready=%v): expected %d, got %d", tt.path, tt.ready, tt.expected, w.Code)
		}
	}
}

func TestHTTPMiddleware_PassesThroughStatus(t *testing.T) {
	h := HTTPMiddleware(metrics.DefaultMetrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(RequestTypeHeader, "speak")
		w.WriteHeader(http.StatusTeapot)
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/gemini", nil))

	if w.Code != http.StatusTeapot {
		t.Errorf("expected status %d, got %d", http.StatusTeapot, w.Code)
	}
}
