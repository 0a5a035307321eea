// Package memory sets the Go memory limit from the container limit and
// pauses scans while the heap is near that limit.
//
// Call [ConfigureFromEnv] early in main:
//
//   - GOMEMLIMIT: used as is when set.
//   - MEMORY_LIMIT: container limit in bytes, e.g. from the Kubernetes
//     Downward API. GOMEMLIMIT becomes MEMORY_RATIO of it.
//   - MEMORY_RATIO: fraction of MEMORY_LIMIT for the Go heap (default 0.85).
//     The remainder covers libvips and exiftool, which allocate outside the
//     Go heap.
//
// A [Monitor] samples heap usage. Once it crosses the critical mark, [Monitor.Wait]
// blocks callers until usage falls below the high-water mark again. The scan
// orchestrator waits on it between batches, so full-size image decodes cannot
// pile up faster than the collector frees them.
package memory
