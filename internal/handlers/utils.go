package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"photo-indexer/internal/errdefs"
	"photo-indexer/internal/logging"
	"photo-indexer/internal/settings"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// writeJSON encodes v as the response body. Encoding errors are logged; the
// status line is already gone by then.
func writeJSON(w http.ResponseWriter, v any) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("failed to encode JSON response: %v", err)
	}
}

// writeJSONStatus writes v with the given status code.
func writeJSONStatus(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, v)
}

// writeJSONError writes {"error": message} with the given status code.
func writeJSONError(w http.ResponseWriter, message string, code int) {
	writeJSONStatus(w, code, map[string]string{"error": message})
}

// writeError maps err onto a status code and writes it.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := errdefs.HTTPStatus(err)
	if errors.Is(err, settings.ErrInvalidSetting) {
		code = http.StatusBadRequest
	}
	if code >= http.StatusInternalServerError {
		logging.Error("%s %s: %v", r.Method, r.URL.Path, err)
	}
	writeJSONError(w, err.Error(), code)
}

// decodeJSON reads a single JSON value from the request body into v.
// Malformed bodies are reported as invalid queries.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("empty request body: %w", errdefs.ErrInvalidQuery)
		}
		return fmt.Errorf("decode request: %v: %w", err, errdefs.ErrInvalidQuery)
	}
	return nil
}
