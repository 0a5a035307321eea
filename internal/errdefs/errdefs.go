// Package errdefs defines the error taxonomy shared by every component of
// the indexer. Producers wrap these sentinels with fmt.Errorf("...: %w");
// consumers classify with errors.Is.
package errdefs

import (
	"errors"
	"net/http"
)

var (
	// ErrInvalidPath means a folder path does not exist or is not a directory.
	ErrInvalidPath = errors.New("invalid path")
	// ErrDuplicatePath means the path is already registered in that set.
	ErrDuplicatePath = errors.New("duplicate path")
	// ErrNotFound means the requested folder, image or scan does not exist.
	ErrNotFound = errors.New("not found")
	// ErrScanAlreadyInProgress means a scan with the same token is running.
	ErrScanAlreadyInProgress = errors.New("scan already in progress")
	// ErrUnreadableFile means a file could not be opened. Recoverable.
	ErrUnreadableFile = errors.New("unreadable file")
	// ErrUndecodableImage means a file could not be decoded as an image. Recoverable.
	ErrUndecodableImage = errors.New("undecodable image")
	// ErrInvalidQuery means a search predicate is unsupported or malformed.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrStoreUnavailable means the index store cannot be read or written.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// IsRecoverable reports whether err belongs to the per-file skip-and-continue class.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrUnreadableFile) || errors.Is(err, ErrUndecodableImage)
}

// HTTPStatus maps an error onto the status code the transport reports.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidPath), errors.Is(err, ErrInvalidQuery):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicatePath), errors.Is(err, ErrScanAlreadyInProgress):
		return http.StatusConflict
	case errors.Is(err, ErrUnreadableFile), errors.Is(err, ErrUndecodableImage):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
