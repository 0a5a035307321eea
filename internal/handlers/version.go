package handlers

import (
	"net/http"

	"photo-indexer/internal/startup"
)

// GetVersion reports the build that is running. The body never changes for
// a process, so clients may revalidate against the commit ETag.
func (h *Handlers) GetVersion(w http.ResponseWriter, r *http.Request) {
	info := startup.GetBuildInfo()
	etag := `"` + info.Version + "-" + info.Commit + `"`
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("ETag", etag)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	writeJSONStatus(w, http.StatusOK, info)
}
