// Package metrics provides Prometheus instrumentation for the photo indexer.
//
// All metrics are prefixed with "photo_indexer_" and registered through
// promauto at package initialization.
//
// # Metric Categories
//
//   - HTTP: request counts, durations and in-flight requests
//   - Database: query and transaction durations, rows affected, file sizes
//   - Filesystem: operation durations and ESTALE retry behaviour
//   - Discovery: walks, files found, directories skipped by reason
//   - Metadata: extractions by status, exiftool failures
//   - Thumbnails: generations, cache hits and misses, shared in-flight results
//   - Scans: running scans, outcomes, per-file outcomes, pruned records
//   - Events: open subscriptions, published events, external sink deliveries
//   - Library: indexed images and registered folders
//
// The Collector refreshes the library gauges and SQLite file sizes on an
// interval. NewFilesystemObserver adapts these collectors to the
// filesystem.Observer interface so the filesystem package does not import
// this one.
package metrics
