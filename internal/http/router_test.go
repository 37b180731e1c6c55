package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"ai-speaking-practice/internal/app"
	"ai-speaking-practice/internal/config"
)

func newTestApp() *app.Application {
	cfg := &config.Configuration{}
	cfg.Service.EndpointPath = "/api/gemini"
	cfg.Observability.LogLevel = "error"
	return app.New(cfg)
}

func TestRouter_Health(t *testing.T) {
	application := newTestApp()
	api := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	r := NewRouter(application, api)

	tests := []struct {
		name     string
		path     string
		start    bool
		wantCode int
	}{
		{"liveness", "/v1/liveness", false, http.StatusOK},
		{"readiness before start", "/v1/readiness", false, http.StatusServiceUnavailable},
		{"readiness after start", "/v1/readiness", true, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.start {
				_ = application.Start()
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != tt.wantCode {
				t.Errorf("expected %d, got %d", tt.wantCode, rec.Code)
			}
		})
	}
}

func TestRouter_MountsAPIForAllMethods(t *testing.T) {
	var methods []string
	api := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		methods = append(methods, r.Method)
		w.WriteHeader(http.StatusTeapot)
	})
	r := NewRouter(newTestApp(), api)

	for _, m := range []string{http.MethodPost, http.MethodGet} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(m, "/api/gemini", nil))
		if rec.Code != http.StatusTeapot {
			t.Errorf("%s: expected request to reach api handler, got %d", m, rec.Code)
		}
	}
	if len(methods) != 2 {
		t.Errorf("expected 2 calls, got %v", methods)
	}
}
