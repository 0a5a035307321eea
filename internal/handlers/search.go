package handlers

import (
	"net/http"

	"photo-indexer/internal/database"
)

// Search evaluates a posted list of conditions.
func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	var conds []database.Condition
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &conds); err != nil {
			writeError(w, r, err)
			return
		}
	}
	images, err := h.lib.Search(r.Context(), conds)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusOK, images)
}
