package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"photo-indexer/internal/database"
	"photo-indexer/internal/events"
	"photo-indexer/internal/filesystem"
	"photo-indexer/internal/handlers"
	"photo-indexer/internal/indexer"
	"photo-indexer/internal/library"
	"photo-indexer/internal/logging"
	"photo-indexer/internal/media"
	"photo-indexer/internal/memory"
	"photo-indexer/internal/metrics"
	"photo-indexer/internal/middleware"
	"photo-indexer/internal/startup"
)

const shutdownTimeout = 30 * time.Second

func main() {
	startTime := time.Now()

	config, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}

	metrics.InitializeMetrics()
	filesystem.SetObserver(metrics.NewFilesystemObserver())

	memory.ConfigureFromEnv()
	monitor := memory.NewMonitor(memory.DefaultConfig())
	monitor.Start()

	if config.VipsEnabled {
		media.InitVips()
	}
	startup.LogVipsInit(config.VipsEnabled, media.IsVipsAvailable())

	var sinks []events.Sink
	if len(config.KafkaBrokers) > 0 {
		sinks = append(sinks, events.NewKafkaSink(config.KafkaBrokers, config.KafkaTopic))
	}

	libStart := time.Now()
	lib, err := library.Open(context.Background(), library.Options{
		DataDir:          config.DataDir,
		ThumbnailSize:    config.ThumbnailSize,
		ThumbnailWorkers: config.ThumbnailWorkers,
		IndexWorkers:     config.IndexWorkers,
		BatchSize:        config.ScanBatchSize,
		UseVips:          media.IsVipsAvailable(),
		Exiftool:         config.ExiftoolEnabled,
		EventRetention:   events.DefaultRetention,
		Sinks:            sinks,
		Throttle:         monitor,
	})
	if err != nil {
		startup.LogFatal("Failed to initialize library: %v", err)
	}
	startup.LogLibraryInit(time.Since(libStart))

	h := handlers.New(lib)
	router := h.Router(middleware.Metrics(middleware.DefaultMetricsConfig()))
	startup.LogHTTPRoutes(router, config.LogStaticFiles, config.LogHealthChecks)

	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogStaticFiles = config.LogStaticFiles
	loggingConfig.LogHealthChecks = config.LogHealthChecks
	handler := middleware.Compression(middleware.DefaultCompressionConfig())(
		middleware.Logger(loggingConfig)(router),
	)

	// Canceling baseCtx ends open event streams so Shutdown can drain.
	baseCtx, cancelRequests := context.WithCancel(context.Background())
	srv := &http.Server{
		Addr:              ":" + config.Port,
		Handler:           handler,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Event streams set per-write deadlines themselves.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	var metricsSrv *http.Server
	var collector *metrics.Collector
	if config.MetricsEnabled {
		collector = metrics.NewCollector(statsProvider{lib}, lib.DB(), lib.DB().Path(), time.Minute)
		collector.Start()

		mux := http.NewServeMux()
		mux.Handle("/metrics", h.MetricsHandler())
		metricsSrv = &http.Server{
			Addr:              ":" + config.MetricsPort,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.Error("Metrics server error: %v", err)
			}
		}()
	}

	if lib.Config().FeatureFlags.UpdateDBWhenStartup {
		go startupScan(lib)
	}

	done := make(chan struct{})
	go handleShutdown(srv, cancelRequests, metricsSrv, collector, monitor, lib, done)

	startup.LogServerStarted(startup.ServerConfig{
		Port:            config.Port,
		MetricsPort:     config.MetricsPort,
		MetricsEnabled:  config.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		startup.LogFatal("Server error: %v", err)
	}
	<-done
}

// startupScan indexes every watched folder once at boot.
func startupScan(lib *library.Service) {
	ctx := context.Background()
	has, err := lib.HasFolders(ctx)
	if err != nil {
		logging.Warn("Startup scan skipped: %v", err)
		return
	}
	if !has {
		logging.Info("Startup scan skipped: no watched folders")
		return
	}
	token, err := lib.StartScan(ctx, indexer.ScanRequest{})
	if err != nil {
		logging.Warn("Startup scan failed to start: %v", err)
		return
	}
	startup.LogStartupScan(token)
}

// statsProvider adapts the index store to the metrics collector.
type statsProvider struct {
	lib *library.Service
}

func (p statsProvider) GetStats() metrics.Stats {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := p.lib.Stats(ctx)
	if err != nil {
		logging.Warn("Failed to collect index stats: %v", err)
		s = database.Stats{}
	}
	return metrics.Stats{
		TotalImages:        s.Images,
		TotalFolders:       s.Folders,
		TotalIgnoreFolders: s.IgnoreFolders,
	}
}

func handleShutdown(srv *http.Server, cancelRequests context.CancelFunc, metricsSrv *http.Server, collector *metrics.Collector, monitor *memory.Monitor, lib *library.Service, done chan<- struct{}) {
	defer close(done)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	startup.LogShutdownInitiated(sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	startup.LogShutdownStep("Shutting down HTTP server")
	cancelRequests()
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	startup.LogShutdownStep("Stopping scans and closing the index")
	if err := lib.Close(ctx); err != nil {
		logging.Warn("Library shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("Library closed")
	}

	media.ShutdownVips()
	monitor.Stop()

	if collector != nil {
		collector.Stop()
	}
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(ctx); err != nil {
			logging.Warn("Metrics server shutdown error: %v", err)
		}
	}

	startup.LogShutdownComplete()
}
