package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"photo-indexer/internal/library"
	"photo-indexer/internal/streaming"
)

// Handlers serves the HTTP API.
type Handlers struct {
	lib       *library.Service
	stream    streaming.Config
	startTime time.Time
}

// New creates Handlers over lib.
func New(lib *library.Service) *Handlers {
	return &Handlers{
		lib:       lib,
		stream:    streaming.DefaultConfig(),
		startTime: time.Now(),
	}
}

// Router registers every route on a new router. mw is installed with
// Router.Use so it sees matched route templates.
func (h *Handlers) Router(mw ...mux.MiddlewareFunc) *mux.Router {
	r := mux.NewRouter()
	r.Use(mw...)

	r.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/healthz", h.HealthCheck).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/livez", h.LivenessCheck).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/version", h.GetVersion).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/setup-state", h.SetupState).Methods(http.MethodGet)
	api.HandleFunc("/stats", h.GetStats).Methods(http.MethodGet)

	api.HandleFunc("/folders", h.ListFolders).Methods(http.MethodGet)
	api.HandleFunc("/folders", h.AddFolder).Methods(http.MethodPost)
	api.HandleFunc("/folders/{id:[0-9]+}", h.DeleteFolder).Methods(http.MethodDelete)
	api.HandleFunc("/ignore-folders", h.ListIgnoreFolders).Methods(http.MethodGet)
	api.HandleFunc("/ignore-folders", h.AddIgnoreFolder).Methods(http.MethodPost)
	api.HandleFunc("/ignore-folders/{id:[0-9]+}", h.DeleteIgnoreFolder).Methods(http.MethodDelete)

	api.HandleFunc("/scans", h.ListScans).Methods(http.MethodGet)
	api.HandleFunc("/scans", h.StartScan).Methods(http.MethodPost)
	api.HandleFunc("/scans/{token}", h.GetScan).Methods(http.MethodGet)
	api.HandleFunc("/scans/{token}/events", h.ScanEvents).Methods(http.MethodGet)
	api.HandleFunc("/scans/{token}/cancel", h.CancelScan).Methods(http.MethodPost)

	api.HandleFunc("/files", h.ListFiles).Methods(http.MethodGet)
	api.HandleFunc("/thumbnails", h.GetThumbnails).Methods(http.MethodPost)
	api.HandleFunc("/thumbnails", h.GetThumbnailChunk).Methods(http.MethodGet)
	api.HandleFunc("/images/{uuid}/metadata", h.GetMetadata).Methods(http.MethodGet)

	api.HandleFunc("/config", h.GetConfig).Methods(http.MethodGet)
	api.HandleFunc("/config", h.SetConfig).Methods(http.MethodPut)

	api.HandleFunc("/search", h.Search).Methods(http.MethodPost)

	return r
}
