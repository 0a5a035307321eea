package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_indexer_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "photo_indexer_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_indexer_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_indexer_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "photo_indexer_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	DBTransactionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "photo_indexer_db_transaction_duration_seconds",
			Help:    "Database transaction duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"outcome"}, // "commit", "rollback"
	)

	DBRowsAffected = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "photo_indexer_db_rows_affected",
			Help:    "Rows affected by write statements",
			Buckets: []float64{1, 5, 10, 50, 100, 500, 1000, 5000},
		},
		[]string{"operation"},
	)

	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_indexer_db_connections_open",
			Help: "Number of open database connections",
		},
	)

	DBSizeBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "photo_indexer_db_size_bytes",
			Help: "Size of SQLite database files in bytes",
		},
		[]string{"file"}, // "main", "wal", "shm"
	)

	DBMigrationsApplied = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photo_indexer_db_migrations_applied_total",
			Help: "Schema migrations applied since process start",
		},
	)
)

// Filesystem metrics
var (
	FilesystemOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "photo_indexer_filesystem_operation_duration_seconds",
			Help:    "Filesystem operation duration in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"volume", "operation"},
	)

	FilesystemOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_indexer_filesystem_operation_errors_total",
			Help: "Filesystem operation errors",
		},
		[]string{"volume", "operation"},
	)

	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_indexer_filesystem_retry_attempts_total",
			Help: "Filesystem operation retries after a stale file handle",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_indexer_filesystem_retry_outcomes_total",
			Help: "Retried filesystem operations by outcome (recovered, exhausted)",
		},
		[]string{"operation", "volume", "outcome"},
	)

	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_indexer_filesystem_stale_errors_total",
			Help: "ESTALE errors observed",
		},
		[]string{"operation", "volume"},
	)
)

// Discovery metrics
var (
	DiscoveryRunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photo_indexer_discovery_runs_total",
			Help: "Total number of discovery walks",
		},
	)

	DiscoveryFilesFound = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photo_indexer_discovery_files_found_total",
			Help: "Image files yielded by discovery",
		},
	)

	DiscoveryDirsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_indexer_discovery_dirs_skipped_total",
			Help: "Directories skipped during discovery",
		},
		[]string{"reason"}, // "ignored", "unreadable", "cycle", "hidden"
	)

	DiscoveryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "photo_indexer_discovery_duration_seconds",
			Help:    "Duration of a discovery walk",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
	)
)

// Metadata extraction metrics
var (
	MetadataExtractionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_indexer_metadata_extractions_total",
			Help: "Metadata extractions by status",
		},
		[]string{"status"}, // "success", "degraded", "unreadable"
	)

	MetadataExtractionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "photo_indexer_metadata_extraction_duration_seconds",
			Help:    "Duration of a single metadata extraction",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)

	MetadataExiftoolErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photo_indexer_metadata_exiftool_errors_total",
			Help: "Failures reading tags through exiftool",
		},
	)
)

// Thumbnail metrics
var (
	ThumbnailGenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_indexer_thumbnail_generations_total",
			Help: "Thumbnail generations by status",
		},
		[]string{"status"}, // "success", "error_unreadable", "error_decode", "error_encode"
	)

	ThumbnailGenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "photo_indexer_thumbnail_generation_duration_seconds",
			Help:    "Thumbnail generation duration by phase",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"phase"}, // "decode", "resize", "encode", "total"
	)

	ThumbnailCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photo_indexer_thumbnail_cache_hits_total",
			Help: "Thumbnail requests served from the cache",
		},
	)

	ThumbnailCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photo_indexer_thumbnail_cache_misses_total",
			Help: "Thumbnail requests that required generation",
		},
	)

	ThumbnailSharedResults = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photo_indexer_thumbnail_shared_results_total",
			Help: "Thumbnail requests that waited on an in-flight generation",
		},
	)

	ThumbnailImageDecodeByFormat = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_indexer_thumbnail_decode_by_format_total",
			Help: "Source images decoded for thumbnails by format",
		},
		[]string{"format"},
	)

	ThumbnailCachePruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photo_indexer_thumbnail_cache_pruned_total",
			Help: "Orphaned thumbnail artifacts removed",
		},
	)
)

// Scan metrics
var (
	ScansRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_indexer_scans_running",
			Help: "Number of scans currently running",
		},
	)

	ScanRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_indexer_scan_runs_total",
			Help: "Completed scans by outcome",
		},
		[]string{"outcome"}, // "completed", "failed", "cancelled"
	)

	ScanFilesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_indexer_scan_files_total",
			Help: "Files processed by scans, by outcome",
		},
		[]string{"outcome"}, // "indexed", "unchanged", "skipped"
	)

	ScanRecordsPruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photo_indexer_scan_records_pruned_total",
			Help: "Index records removed because their file disappeared",
		},
	)

	ScanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "photo_indexer_scan_duration_seconds",
			Help:    "Duration of a full scan",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900, 3600},
		},
	)

	ScanLastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_indexer_scan_last_run_timestamp_seconds",
			Help: "Unix timestamp of the last finished scan",
		},
	)
)

// Event broker metrics
var (
	EventSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_indexer_event_subscribers",
			Help: "Open progress event subscriptions",
		},
	)

	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_indexer_events_published_total",
			Help: "Progress events published by kind",
		},
		[]string{"kind"}, // "progress", "completed", "failed"
	)

	EventSinkTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_indexer_event_sink_messages_total",
			Help: "Events forwarded to the external sink by status",
		},
		[]string{"status"}, // "success", "error"
	)
)

// Memory metrics
var (
	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_indexer_memory_usage_ratio",
			Help: "Heap allocation as a fraction of the memory limit",
		},
	)

	MemoryPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_indexer_memory_paused",
			Help: "1 while scans are paused for memory pressure",
		},
	)

	MemoryPausesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photo_indexer_memory_pauses_total",
			Help: "Times scans were paused for memory pressure",
		},
	)
)

// Library metrics
var (
	LibraryImagesTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_indexer_library_images",
			Help: "Number of indexed images",
		},
	)

	LibraryFoldersTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "photo_indexer_library_folders",
			Help: "Number of registered folders by set",
		},
		[]string{"set"}, // "watched", "ignored"
	)

	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "photo_indexer_app_info",
			Help: "Application build information",
		},
		[]string{"version", "commit", "go_version"},
	)
)
