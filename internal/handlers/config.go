package handlers

import (
	"net/http"

	"photo-indexer/internal/settings"
)

func (h *Handlers) GetConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSONStatus(w, http.StatusOK, h.lib.Config())
}

func (h *Handlers) SetConfig(w http.ResponseWriter, r *http.Request) {
	var cfg settings.Config
	if err := decodeJSON(w, r, &cfg); err != nil {
		writeError(w, r, err)
		return
	}
	saved, err := h.lib.SetConfig(cfg)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusOK, saved)
}
