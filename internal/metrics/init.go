package metrics

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics() {
	// Watched folders get per-folder volume labels at runtime.
	for _, vol := range []string{"data", "unknown"} {
		for _, op := range []string{"stat", "open", "readdir", "readfile"} {
			FilesystemOperationDuration.WithLabelValues(vol, op)
			FilesystemOperationErrors.WithLabelValues(vol, op)
			FilesystemRetryAttempts.WithLabelValues(op, vol)
			FilesystemStaleErrors.WithLabelValues(op, vol)
			for _, outcome := range []string{"recovered", "exhausted"} {
				FilesystemRetryOutcomes.WithLabelValues(op, vol, outcome)
			}
		}
	}

	for _, reason := range []string{"ignored", "unreadable", "cycle", "hidden"} {
		DiscoveryDirsSkipped.WithLabelValues(reason)
	}

	for _, status := range []string{"success", "degraded", "unreadable"} {
		MetadataExtractionsTotal.WithLabelValues(status)
	}

	for _, status := range []string{"success", "error_unreadable", "error_decode", "error_encode"} {
		ThumbnailGenerationsTotal.WithLabelValues(status)
	}
	for _, phase := range []string{"decode", "resize", "encode", "total"} {
		ThumbnailGenerationDuration.WithLabelValues(phase)
	}
	for _, format := range []string{"jpeg", "png", "gif", "webp", "bmp", "tiff", "unknown"} {
		ThumbnailImageDecodeByFormat.WithLabelValues(format)
	}

	for _, outcome := range []string{"completed", "failed", "cancelled"} {
		ScanRunsTotal.WithLabelValues(outcome)
	}
	for _, outcome := range []string{"indexed", "unchanged", "skipped"} {
		ScanFilesTotal.WithLabelValues(outcome)
	}

	for _, kind := range []string{"progress", "completed", "failed"} {
		EventsPublishedTotal.WithLabelValues(kind)
	}
	for _, status := range []string{"success", "error"} {
		EventSinkTotal.WithLabelValues(status)
	}

	for _, set := range []string{"watched", "ignored"} {
		LibraryFoldersTotal.WithLabelValues(set)
	}

	for _, op := range []string{"migrate", "insert_folder", "list_folders", "delete_folder",
		"upsert_image", "get_image", "list_images", "touch_images", "delete_unseen",
		"search", "begin_transaction", "commit", "rollback"} {
		DBQueryTotal.WithLabelValues(op, "success")
		DBQueryTotal.WithLabelValues(op, "error")
		DBQueryDuration.WithLabelValues(op)
	}

	for _, t := range []string{"commit", "rollback"} {
		DBTransactionDuration.WithLabelValues(t)
	}
}
