/*
Package filesystem wraps the filesystem calls made while walking and reading
photo libraries with retry logic for NFS stale file handle errors.

Only ESTALE triggers a retry; every other error is returned immediately.
Retries back off exponentially from InitialBackoff up to MaxBackoff.

	info, err := filesystem.StatWithRetry(path, filesystem.DefaultRetryConfig())
	entries, err := filesystem.ReadDirWithRetry(dir, filesystem.DefaultRetryConfig())

Metrics are reported through an Observer registered with SetObserver; the
metrics package provides the Prometheus implementation. Paths are labelled
with a volume name by the VolumeResolver set with SetDefaultVolumeResolver.
*/
package filesystem
