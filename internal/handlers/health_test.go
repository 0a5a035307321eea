package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"photo-indexer/internal/startup"
)

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		path   string
		status string
	}{
		{"/livez", "alive"},
		{"/readyz", "ready"},
		{"/health", statusHealthy},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp := s.do(t, http.MethodGet, tt.path, nil)
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("Expected 200, got %d", resp.StatusCode)
			}
			body := decode[map[string]any](t, resp)
			if body["status"] != tt.status {
				t.Errorf("Expected status %q, got %v", tt.status, body["status"])
			}
		})
	}
}

func TestHealthCheckDegraded(t *testing.T) {
	s := newTestServer(t)
	h := New(s.lib)
	if err := s.lib.DB().Close(); err != nil {
		t.Fatalf("Failed to close database: %v", err)
	}

	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("Expected 503, got %d", rec.Code)
	}
	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Ready || resp.Status != statusDegraded || resp.Error == "" {
		t.Errorf("Expected degraded response, got %+v", resp)
	}

	rec = httptest.NewRecorder()
	h.ReadinessCheck(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected readyz 503, got %d", rec.Code)
	}
}

func TestHeadRequestsHaveNoBody(t *testing.T) {
	s := newTestServer(t)
	h := New(s.lib)

	for _, fn := range []http.HandlerFunc{h.HealthCheck, h.LivenessCheck, h.ReadinessCheck} {
		rec := httptest.NewRecorder()
		fn(rec, httptest.NewRequest(http.MethodHead, "/", nil))
		if rec.Body.Len() != 0 {
			t.Errorf("Expected empty HEAD body, got %q", rec.Body.String())
		}
	}
}

func TestGetVersion(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodGet, "/version", nil)
	if got := resp.Header.Get("Cache-Control"); got != "no-cache" {
		t.Errorf("Expected Cache-Control no-cache, got %q", got)
	}
	info := decode[startup.BuildInfo](t, resp)
	if info.Version != startup.Version {
		t.Errorf("Expected version %q, got %q", startup.Version, info.Version)
	}
	if info.GoVersion == "" {
		t.Error("Expected Go version")
	}
}

func TestMetricsHandler(t *testing.T) {
	s := newTestServer(t)
	h := New(s.lib)

	rec := httptest.NewRecorder()
	h.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if rec.Body.Len() == 0 {
		t.Error("Expected metrics output")
	}
}

func TestGetVersionNotModified(t *testing.T) {
	h := New(nil)

	rec := httptest.NewRecorder()
	h.GetVersion(rec, httptest.NewRequest(http.MethodGet, "/version", nil))
	etag := rec.Header().Get("ETag")
	if etag == "" {
		t.Fatal("Expected an ETag")
	}

	req := httptest.NewRequest(http.MethodGet, "/version", nil)
	req.Header.Set("If-None-Match", etag)
	rec = httptest.NewRecorder()
	h.GetVersion(rec, req)
	if rec.Code != http.StatusNotModified {
		t.Errorf("Expected 304, got %d", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("Expected empty body, got %q", rec.Body.String())
	}
}
