package handlers

import (
	"net/http"
	"runtime"
	"time"

	"photo-indexer/internal/startup"
)

const (
	statusHealthy  = "healthy"
	statusDegraded = "degraded"
)

// HealthResponse contains the health check response
type HealthResponse struct {
	Status      string `json:"status"`
	Ready       bool   `json:"ready"`
	Version     string `json:"version"`
	Uptime      string `json:"uptime"`
	Scanning    bool   `json:"scanning"`
	ActiveScans int    `json:"activeScans"`
	LastScan    string `json:"lastScan,omitempty"`
	Error       string `json:"error,omitempty"`

	GoVersion    string `json:"goVersion"`
	NumCPU       int    `json:"numCpu"`
	NumGoroutine int    `json:"numGoroutine"`

	Images  int `json:"images"`
	Folders int `json:"folders"`
}

// HealthCheck reports readiness, scan activity and library size. It
// answers 503 when the index store is unreachable.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	active := h.lib.ActiveScans()

	resp := HealthResponse{
		Status:       statusHealthy,
		Ready:        true,
		Version:      startup.Version,
		Uptime:       time.Since(h.startTime).Round(time.Second).String(),
		Scanning:     len(active) > 0,
		ActiveScans:  len(active),
		GoVersion:    runtime.Version(),
		NumCPU:       runtime.NumCPU(),
		NumGoroutine: runtime.NumGoroutine(),
	}

	if err := h.lib.DB().Ping(ctx); err != nil {
		resp.Status = statusDegraded
		resp.Ready = false
		resp.Error = err.Error()
	} else {
		if stats, err := h.lib.Stats(ctx); err == nil {
			resp.Images = stats.Images
			resp.Folders = stats.Folders
		}
		if last, err := h.lib.DB().GetLastScan(ctx); err == nil && !last.IsZero() {
			resp.LastScan = last.Format(time.RFC3339)
		}
	}

	code := http.StatusOK
	if !resp.Ready {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if r.Method != http.MethodHead {
		writeJSON(w, resp)
	}
}

// LivenessCheck answers 200 while the process serves requests.
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		writeJSON(w, map[string]string{"status": "alive"})
	}
}

// ReadinessCheck answers 200 only when the index store is reachable.
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	status, code := "ready", http.StatusOK
	if err := h.lib.DB().Ping(r.Context()); err != nil {
		status, code = "not_ready", http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if r.Method != http.MethodHead {
		writeJSON(w, map[string]string{"status": status})
	}
}
