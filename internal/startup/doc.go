// Package startup handles process configuration and startup/shutdown logging.
//
// # Configuration
//
// Configuration is read from environment variables via [LoadConfig]:
//
//   - DATA_DIR: database, config.json and thumbnail cache
//     (default: $XDG_DATA_HOME/photo-indexer, or ./data)
//   - PORT: HTTP server port (default: 8080)
//   - METRICS_PORT: Prometheus metrics server port (default: 9090)
//   - METRICS_ENABLED: Enable or disable the metrics server (default: true)
//   - THUMBNAIL_SIZE: Longest thumbnail edge in pixels (default: 256)
//   - THUMBNAIL_WORKERS: Concurrent thumbnail renders (default: NumCPU)
//   - INDEX_WORKERS: Concurrent discovery and extraction workers (default: NumCPU)
//   - SCAN_BATCH_SIZE: Files per index write batch (default: 20)
//   - VIPS_ENABLED: Decode large images with libvips (default: false)
//   - EXIFTOOL_ENABLED: Read EXIF through exiftool when installed (default: true)
//   - KAFKA_BROKERS: Comma-separated brokers for the progress sink (default: disabled)
//   - KAFKA_TOPIC: Topic for progress events (default: scan-progress)
//   - LOG_LEVEL: debug, info, warn, error (default: info)
//   - LOG_STATIC_FILES, LOG_HEALTH_CHECKS: HTTP access log filtering
//   - MEMORY_LIMIT, MEMORY_RATIO, GOMEMLIMIT: see package memory
//
// User-editable settings live in config.json and are handled by package
// settings, not here.
//
// # Build Information
//
// Build-time variables are injected via ldflags and exposed via [GetBuildInfo].
//
// # Lifecycle Logging
//
//   - [LogLibraryInit]: index, settings and thumbnail cache
//   - [LogVipsInit]: libvips availability
//   - [LogHTTPRoutes]: registered HTTP routes (debug level)
//   - [LogServerStarted]: endpoints and startup duration
//   - [LogStartupScan]: the scan started by update_db_when_startup
//   - [LogShutdownInitiated], [LogShutdownComplete]: graceful shutdown
package startup
