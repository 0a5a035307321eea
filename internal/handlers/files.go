package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"photo-indexer/internal/discovery"
	"photo-indexer/internal/errdefs"
)

const defaultChunkLimit = 50

type fileEntry struct {
	Path string `json:"path"`
	UUID string `json:"uuid"`
}

// ListFiles walks the watched folders and returns {path, uuid} pairs.
func (h *Handlers) ListFiles(w http.ResponseWriter, r *http.Request) {
	refs, err := h.lib.ListFiles(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]fileEntry, len(refs))
	for i, ref := range refs {
		out[i] = fileEntry{Path: ref.Path, UUID: ref.UUID}
	}
	writeJSONStatus(w, http.StatusOK, out)
}

// GetThumbnails renders the thumbnails of the posted file refs.
func (h *Handlers) GetThumbnails(w http.ResponseWriter, r *http.Request) {
	var req []fileEntry
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	refs := make([]discovery.FileRef, len(req))
	for i, e := range req {
		if e.Path == "" {
			writeError(w, r, fmt.Errorf("entry %d has no path: %w", i, errdefs.ErrInvalidPath))
			return
		}
		refs[i] = discovery.FileRef{Path: e.Path, UUID: e.UUID}
	}

	thumbs, err := h.lib.Thumbnails(r.Context(), refs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusOK, thumbs)
}

// GetThumbnailChunk returns ?offset=&limit= of the discovered file list.
func (h *Handlers) GetThumbnailChunk(w http.ResponseWriter, r *http.Request) {
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit", defaultChunkLimit)
	if err != nil {
		writeError(w, r, err)
		return
	}

	chunk, err := h.lib.ThumbnailChunk(r.Context(), offset, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusOK, chunk)
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s %q: %w", key, raw, errdefs.ErrInvalidQuery)
	}
	return n, nil
}

// GetMetadata returns an image's metadata and full-size data URL.
func (h *Handlers) GetMetadata(w http.ResponseWriter, r *http.Request) {
	view, err := h.lib.GetMetadata(r.Context(), mux.Vars(r)["uuid"], r.URL.Query().Get("path"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "private, max-age=60")
	writeJSONStatus(w, http.StatusOK, view)
}
