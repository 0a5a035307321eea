package media

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/disintegration/imaging"
	"golang.org/x/sync/singleflight"

	"photo-indexer/internal/discovery"
	"photo-indexer/internal/errdefs"
	"photo-indexer/internal/filesystem"
	"photo-indexer/internal/keylock"
	"photo-indexer/internal/logging"
	"photo-indexer/internal/metrics"
	"photo-indexer/internal/workers"
)

// DefaultThumbnailSize is the bounding box, in pixels, of a rendition.
const DefaultThumbnailSize = 256

const artifactExt = ".png"

// ThumbnailRef points at a cached rendition. Placeholder is set when the
// source could not be decoded; such refs have no artifact.
type ThumbnailRef struct {
	Key         string `json:"key"`
	Path        string `json:"path"`
	UUID        string `json:"uuid,omitempty"`
	Placeholder bool   `json:"placeholder,omitempty"`
}

// CacheStats counts cache activity since the cache was created.
type CacheStats struct {
	Generations int64
	Hits        int64
	Misses      int64
	Shared      int64
}

// ThumbnailConfig configures a ThumbnailCache.
type ThumbnailConfig struct {
	Dir     string
	Size    int
	Workers int
	// UseVips decodes through libvips when it has been started.
	UseVips bool
	Retry   filesystem.RetryConfig
}

// ThumbnailCache generates thumbnails on demand and persists them on disk.
type ThumbnailCache struct {
	dir     string
	size    int
	workers int
	useVips bool
	retry   filesystem.RetryConfig
	log     *logging.Logger

	group singleflight.Group
	// locks guards artifact writes and removals per key.
	locks keylock.Map

	generations atomic.Int64
	hits        atomic.Int64
	misses      atomic.Int64
	shared      atomic.Int64
}

// NewThumbnailCache creates the cache directory if needed.
func NewThumbnailCache(cfg ThumbnailConfig) (*ThumbnailCache, error) {
	if cfg.Size <= 0 {
		cfg.Size = DefaultThumbnailSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = workers.ForCPU(8)
	}
	if cfg.Retry.MaxRetries == 0 && cfg.Retry.InitialBackoff == 0 {
		cfg.Retry = filesystem.DefaultRetryConfig()
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create thumbnail cache %s: %w", cfg.Dir, err)
	}

	return &ThumbnailCache{
		dir:     cfg.Dir,
		size:    cfg.Size,
		workers: cfg.Workers,
		useVips: cfg.UseVips,
		retry:   cfg.Retry,
		log:     logging.For("thumbnail"),
	}, nil
}

// Key derives the cache key of a source from its content identity.
func Key(path string, size int64, modTime time.Time) string {
	d := xxhash.New()
	_, _ = d.WriteString(path)
	_, _ = d.WriteString("|")
	_, _ = d.WriteString(strconv.FormatInt(size, 10))
	_, _ = d.WriteString("|")
	_, _ = d.WriteString(strconv.FormatInt(modTime.UnixNano(), 10))
	return fmt.Sprintf("%016x", d.Sum64())
}

// KeyFor derives the cache key of a discovered file.
func KeyFor(ref discovery.FileRef) string {
	return Key(ref.Path, ref.Size, ref.ModTime)
}

func (c *ThumbnailCache) artifactPath(key string) string {
	return filepath.Join(c.dir, key[:2], key+artifactExt)
}

// Exists reports whether an artifact is cached for key.
func (c *ThumbnailCache) Exists(key string) bool {
	if len(key) < 2 {
		return false
	}
	_, err := os.Stat(c.artifactPath(key))
	return err == nil
}

// GetOrCreate returns the thumbnail for the file at path, generating it when
// the file's current identity has no artifact.
func (c *ThumbnailCache) GetOrCreate(ctx context.Context, path string) (ThumbnailRef, error) {
	info, err := filesystem.StatWithRetry(path, c.retry)
	if err != nil {
		return ThumbnailRef{Path: path, Placeholder: true}, fmt.Errorf("%s: %w: %v", path, errdefs.ErrUnreadableFile, err)
	}
	return c.Get(ctx, discovery.FileRef{
		Path:    path,
		UUID:    discovery.ImageUUID(path),
		Size:    info.Size(),
		ModTime: info.ModTime(),
	})
}

// Get returns the thumbnail for a discovered file. Sources that cannot be
// read or decoded yield a placeholder ref together with an error wrapping
// errdefs.ErrUnreadableFile or errdefs.ErrUndecodableImage.
func (c *ThumbnailCache) Get(ctx context.Context, ref discovery.FileRef) (ThumbnailRef, error) {
	key := KeyFor(ref)
	out := ThumbnailRef{Key: key, Path: ref.Path, UUID: ref.UUID}

	if err := ctx.Err(); err != nil {
		return out, err
	}

	if c.Exists(key) {
		c.hits.Add(1)
		metrics.ThumbnailCacheHits.Inc()
		return out, nil
	}

	_, err, shared := c.group.Do(key, func() (any, error) {
		if c.Exists(key) {
			return nil, nil
		}
		c.misses.Add(1)
		metrics.ThumbnailCacheMisses.Inc()
		return nil, c.generate(ref.Path, key)
	})
	if shared {
		c.shared.Add(1)
		metrics.ThumbnailSharedResults.Inc()
	}
	if err != nil {
		out.Placeholder = true
		return out, err
	}
	return out, nil
}

// GetMany returns thumbnails for refs in input order, generating missing ones
// in parallel. Per-file failures become placeholders; only cancellation
// fails the call.
func (c *ThumbnailCache) GetMany(ctx context.Context, refs []discovery.FileRef) ([]ThumbnailRef, error) {
	out := make([]ThumbnailRef, len(refs))
	err := workers.ForEach(ctx, c.workers, refs, func(ctx context.Context, i int, ref discovery.FileRef) error {
		t, err := c.Get(ctx, ref)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Warn("Thumbnail placeholder for %s: %v", ref.Path, err)
		}
		out[i] = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ThumbnailCache) generate(path, key string) error {
	start := time.Now()
	c.generations.Add(1)

	img, err := c.decode(path)
	metrics.ThumbnailGenerationDuration.WithLabelValues("decode").Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			metrics.ThumbnailGenerationsTotal.WithLabelValues("error_unreadable").Inc()
			return fmt.Errorf("%s: %w: %v", path, errdefs.ErrUnreadableFile, err)
		}
		metrics.ThumbnailGenerationsTotal.WithLabelValues("error_decode").Inc()
		return fmt.Errorf("%s: %w: %v", path, errdefs.ErrUndecodableImage, err)
	}

	resizeStart := time.Now()
	thumb := imaging.Fit(img, c.size, c.size, imaging.Lanczos)
	metrics.ThumbnailGenerationDuration.WithLabelValues("resize").Observe(time.Since(resizeStart).Seconds())

	encodeStart := time.Now()
	var buf bytes.Buffer
	if err := png.Encode(&buf, thumb); err != nil {
		metrics.ThumbnailGenerationsTotal.WithLabelValues("error_encode").Inc()
		return fmt.Errorf("encode thumbnail for %s: %w", path, err)
	}
	metrics.ThumbnailGenerationDuration.WithLabelValues("encode").Observe(time.Since(encodeStart).Seconds())

	if err := c.store(key, buf.Bytes()); err != nil {
		metrics.ThumbnailGenerationsTotal.WithLabelValues("error_encode").Inc()
		return err
	}

	metrics.ThumbnailGenerationsTotal.WithLabelValues("success").Inc()
	metrics.ThumbnailGenerationDuration.WithLabelValues("total").Observe(time.Since(start).Seconds())
	c.log.Debug("Generated %s for %s in %v", key, path, time.Since(start))
	return nil
}

func (c *ThumbnailCache) decode(path string) (image.Image, error) {
	if c.useVips && IsVipsAvailable() {
		img, err := loadWithVips(path, c.size)
		if err == nil {
			return img, nil
		}
		c.log.Debug("libvips failed for %s, using Go decoders: %v", path, err)
	}
	return LoadImageConstrained(path, MaxImageDimension, MaxImagePixels)
}

// store writes an artifact through a temp file and rename so readers never
// observe a partial file.
func (c *ThumbnailCache) store(key string, data []byte) error {
	unlock := c.locks.Lock(key)
	defer unlock()

	final := c.artifactPath(key)
	if err := os.MkdirAll(filepath.Dir(final), 0o755); err != nil {
		return fmt.Errorf("create shard for %s: %w", key, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(final), key+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", key, err)
	}
	tmpName := tmp.Name()

	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if werr != nil || cerr != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("write thumbnail %s: %w", key, errors.Join(werr, cerr))
	}
	if err := os.Rename(tmpName, final); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("commit thumbnail %s: %w", key, err)
	}
	return nil
}

// Load returns the PNG bytes of a cached thumbnail.
func (c *ThumbnailCache) Load(ref ThumbnailRef) ([]byte, error) {
	if ref.Placeholder {
		return nil, fmt.Errorf("%s: %w", ref.Path, errdefs.ErrUndecodableImage)
	}
	if len(ref.Key) < 2 {
		return nil, fmt.Errorf("thumbnail key %q: %w", ref.Key, errdefs.ErrNotFound)
	}
	data, err := os.ReadFile(c.artifactPath(ref.Key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("thumbnail %s: %w", ref.Key, errdefs.ErrNotFound)
	}
	return data, err
}

// DataURL returns the thumbnail as a base64 data URL.
func (c *ThumbnailCache) DataURL(ref ThumbnailRef) (string, error) {
	data, err := c.Load(ref)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(data), nil
}

// Prune deletes artifacts whose key is not in keep and that were last
// written before olderThan, along with abandoned temp files. It returns the
// number of artifacts removed.
func (c *ThumbnailCache) Prune(ctx context.Context, keep map[string]struct{}, olderThan time.Time) (int, error) {
	removed := 0
	err := filepath.WalkDir(c.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			return nil
		}

		name := d.Name()
		info, err := d.Info()
		if err != nil || !info.ModTime().Before(olderThan) {
			return nil
		}

		if strings.HasSuffix(name, ".tmp") {
			_ = os.Remove(path)
			return nil
		}
		key, ok := strings.CutSuffix(name, artifactExt)
		if !ok {
			return nil
		}
		if _, referenced := keep[key]; referenced {
			return nil
		}

		unlock := c.locks.Lock(key)
		defer unlock()
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			c.log.Warn("Failed to prune %s: %v", path, err)
			return nil
		}
		removed++
		return nil
	})
	if removed > 0 {
		metrics.ThumbnailCachePruned.Add(float64(removed))
		c.log.Info("Pruned %d orphaned thumbnails", removed)
	}
	return removed, err
}

// Stats returns activity counters.
func (c *ThumbnailCache) Stats() CacheStats {
	return CacheStats{
		Generations: c.generations.Load(),
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Shared:      c.shared.Load(),
	}
}

// Size returns the rendition bounding box in pixels.
func (c *ThumbnailCache) Size() int {
	return c.size
}
