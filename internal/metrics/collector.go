package metrics

import (
	"os"
	"time"

	"photo-indexer/internal/logging"
)

// StatsProvider interface for collecting stats
type StatsProvider interface {
	GetStats() Stats
}

// Stats holds the current library statistics
type Stats struct {
	TotalImages        int
	TotalFolders       int
	TotalIgnoreFolders int
}

// DBMetricsUpdater refreshes connection-pool gauges.
type DBMetricsUpdater interface {
	UpdateDBMetrics()
}

// Collector periodically collects and updates metrics
type Collector struct {
	statsProvider StatsProvider
	dbUpdater     DBMetricsUpdater
	dbPath        string
	interval      time.Duration
	stopChan      chan struct{}
	stopped       chan struct{}
}

// NewCollector creates a new metrics collector.
// dbUpdater and dbPath are optional.
func NewCollector(provider StatsProvider, dbUpdater DBMetricsUpdater, dbPath string, interval time.Duration) *Collector {
	return &Collector{
		statsProvider: provider,
		dbUpdater:     dbUpdater,
		dbPath:        dbPath,
		interval:      interval,
		stopChan:      make(chan struct{}),
		stopped:       make(chan struct{}),
	}
}

// Start begins the metrics collection loop
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop stops the metrics collection and waits for the loop to exit.
func (c *Collector) Stop() {
	select {
	case <-c.stopChan:
		return
	default:
		close(c.stopChan)
	}
	<-c.stopped
}

func (c *Collector) collectLoop() {
	defer close(c.stopped)

	// Collect immediately on start
	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) collect() {
	if c.dbUpdater != nil {
		c.dbUpdater.UpdateDBMetrics()
	}
	c.collectDBSize()

	if c.statsProvider == nil {
		return
	}

	stats := c.statsProvider.GetStats()
	LibraryImagesTotal.Set(float64(stats.TotalImages))
	LibraryFoldersTotal.WithLabelValues("watched").Set(float64(stats.TotalFolders))
	LibraryFoldersTotal.WithLabelValues("ignored").Set(float64(stats.TotalIgnoreFolders))

	logging.Debug("Metrics collected: images=%d folders=%d ignored=%d",
		stats.TotalImages, stats.TotalFolders, stats.TotalIgnoreFolders)
}

func (c *Collector) collectDBSize() {
	if c.dbPath == "" {
		return
	}
	files := map[string]string{
		"main": c.dbPath,
		"wal":  c.dbPath + "-wal",
		"shm":  c.dbPath + "-shm",
	}
	for label, path := range files {
		info, err := os.Stat(path)
		if err != nil {
			DBSizeBytes.WithLabelValues(label).Set(0)
			continue
		}
		DBSizeBytes.WithLabelValues(label).Set(float64(info.Size()))
	}
}
