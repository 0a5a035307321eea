package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"photo-indexer/internal/database"
	"photo-indexer/internal/errdefs"
)

type folderRequest struct {
	Path string `json:"path"`
}

func (h *Handlers) ListFolders(w http.ResponseWriter, r *http.Request) {
	h.listFolders(w, r, h.lib.Folders)
}

func (h *Handlers) ListIgnoreFolders(w http.ResponseWriter, r *http.Request) {
	h.listFolders(w, r, h.lib.IgnoreFolders)
}

func (h *Handlers) listFolders(w http.ResponseWriter, r *http.Request, list func(context.Context) ([]database.Folder, error)) {
	folders, err := list(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusOK, folders)
}

func (h *Handlers) AddFolder(w http.ResponseWriter, r *http.Request) {
	h.addFolder(w, r, h.lib.AddFolder)
}

func (h *Handlers) AddIgnoreFolder(w http.ResponseWriter, r *http.Request) {
	h.addFolder(w, r, h.lib.AddIgnoreFolder)
}

func (h *Handlers) addFolder(w http.ResponseWriter, r *http.Request, add func(context.Context, string) (*database.Folder, error)) {
	var req folderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	f, err := add(r.Context(), req.Path)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, f)
}

func (h *Handlers) DeleteFolder(w http.ResponseWriter, r *http.Request) {
	h.deleteFolder(w, r, h.lib.DeleteFolder)
}

func (h *Handlers) DeleteIgnoreFolder(w http.ResponseWriter, r *http.Request) {
	h.deleteFolder(w, r, h.lib.DeleteIgnoreFolder)
}

func (h *Handlers) deleteFolder(w http.ResponseWriter, r *http.Request, del func(context.Context, int64) error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, r, fmt.Errorf("folder id: %w", errdefs.ErrNotFound))
		return
	}
	if err := del(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetupState reports whether any folder is watched yet.
func (h *Handlers) SetupState(w http.ResponseWriter, r *http.Request) {
	has, err := h.lib.HasFolders(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusOK, map[string]bool{"configured": has})
}

// GetStats returns record and folder counts.
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.lib.Stats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusOK, stats)
}
