package metrics

import "photo-indexer/internal/filesystem"

type filesystemObserver struct{}

// NewFilesystemObserver returns a filesystem.Observer backed by the
// Filesystem* collectors.
func NewFilesystemObserver() filesystem.Observer {
	return filesystemObserver{}
}

func (filesystemObserver) Observe(op filesystem.Op) {
	FilesystemOperationDuration.WithLabelValues(op.Volume, op.Name).Observe(op.Duration.Seconds())
	if op.Err != nil {
		FilesystemOperationErrors.WithLabelValues(op.Volume, op.Name).Inc()
	}
	if op.StaleErrors > 0 {
		FilesystemStaleErrors.WithLabelValues(op.Name, op.Volume).Add(float64(op.StaleErrors))
	}
	if !op.Retried() {
		return
	}
	FilesystemRetryAttempts.WithLabelValues(op.Name, op.Volume).Add(float64(op.Attempts - 1))
	outcome := "recovered"
	if op.Err != nil {
		outcome = "exhausted"
	}
	FilesystemRetryOutcomes.WithLabelValues(op.Name, op.Volume, outcome).Inc()
}
