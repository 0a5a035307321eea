package library

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"photo-indexer/internal/database"
	"photo-indexer/internal/discovery"
	"photo-indexer/internal/events"
	"photo-indexer/internal/indexer"
	"photo-indexer/internal/media"
	"photo-indexer/internal/metadata"
	"photo-indexer/internal/registry"
	"photo-indexer/internal/settings"
)

// Options configure Open.
type Options struct {
	// DataDir holds the database, config.json and the thumbnail cache.
	DataDir          string
	ThumbnailSize    int
	ThumbnailWorkers int
	IndexWorkers     int
	BatchSize        int
	UseVips          bool
	Exiftool         bool
	EventRetention   time.Duration
	Sinks            []events.Sink
	// Throttle pauses scans under memory pressure.
	Throttle indexer.Throttle
}

// Open builds every engine component under opts.DataDir.
func Open(ctx context.Context, opts Options) (*Service, error) {
	if opts.DataDir == "" {
		return nil, errors.New("data directory not set")
	}
	if err := os.MkdirAll(opts.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	db, err := database.New(ctx, filepath.Join(opts.DataDir, "index.db"))
	if err != nil {
		return nil, err
	}

	cfg, err := settings.Load(opts.DataDir)
	if err != nil {
		db.Close()
		return nil, err
	}

	thumbs, err := media.NewThumbnailCache(media.ThumbnailConfig{
		Dir:     filepath.Join(opts.DataDir, "thumbnails"),
		Size:    opts.ThumbnailSize,
		Workers: opts.ThumbnailWorkers,
		UseVips: opts.UseVips,
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	var discOpts []discovery.Option
	if opts.IndexWorkers > 0 {
		discOpts = append(discOpts, discovery.WithWorkers(opts.IndexWorkers))
	}
	disc := discovery.New(discOpts...)
	extract := metadata.New(metadata.Options{Exiftool: opts.Exiftool})
	reg := registry.New(db)
	broker := events.NewBroker(opts.EventRetention, opts.Sinks...)
	ix := indexer.New(reg, db, disc, extract, thumbs, broker, indexer.Config{BatchSize: opts.BatchSize, Workers: opts.IndexWorkers, Throttle: opts.Throttle})

	s := New(Deps{
		DB:        db,
		Registry:  reg,
		Disc:      disc,
		Thumbs:    thumbs,
		Broker:    broker,
		Indexer:   ix,
		Settings:  cfg,
		Extractor: extract,
	})
	s.dataDir = opts.DataDir
	s.labelVolumes(ctx)
	return s, nil
}

// DB exposes the index store for health checks and metrics.
func (s *Service) DB() *database.Database { return s.db }

// Close stops running scans, waiting until ctx ends, then releases every
// component.
func (s *Service) Close(ctx context.Context) error {
	var errs []error
	if err := s.scans.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop scans: %w", err))
	}
	if err := s.broker.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close broker: %w", err))
	}
	if s.extract != nil {
		if err := s.extract.Close(); err != nil {
			errs = append(errs, fmt.Errorf("stop exiftool: %w", err))
		}
	}
	if err := s.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close database: %w", err))
	}
	return errors.Join(errs...)
}
