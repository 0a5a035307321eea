// Package handlers exposes the library over HTTP.
//
// It includes handlers for:
//   - Watched and ignored folder management
//   - Starting, following (Server-Sent Events) and cancelling scans
//   - Discovered files, thumbnails and per-image metadata
//   - Structured search and user settings
//   - Health checks and build information
//
// Errors are returned as {"error": "..."} with the status chosen by
// errdefs.HTTPStatus.
package handlers
