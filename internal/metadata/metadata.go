package metadata

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	// Registered decoders for DecodeConfig.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/barasher/go-exiftool"
	"golang.org/x/crypto/blake2b"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"photo-indexer/internal/errdefs"
	"photo-indexer/internal/filesystem"
	"photo-indexer/internal/logging"
	"photo-indexer/internal/mediatypes"
	"photo-indexer/internal/metrics"
)

// DescriptionKey is the PNG text keyword whose JSON payload is merged into
// the field map.
const DescriptionKey = "Description"

// Record is the normalized metadata of one file.
type Record struct {
	Size        int64
	ModTime     time.Time
	CreatedAt   time.Time
	ContentHash string
	Format      mediatypes.Format
	Width       int
	Height      int
	Fields      map[string]any
}

// Options configures an Extractor.
type Options struct {
	// Exiftool starts a long-lived exiftool process when the binary is found.
	Exiftool bool
	Retry    filesystem.RetryConfig
}

// Extractor reads Records. It is safe for concurrent use.
type Extractor struct {
	retry filesystem.RetryConfig
	log   *logging.Logger

	etMu sync.Mutex
	et   *exiftool.Exiftool
}

// New creates an Extractor. A missing exiftool binary is logged and the
// extractor continues without it.
func New(opts Options) *Extractor {
	e := &Extractor{
		retry: opts.Retry,
		log:   logging.For("metadata"),
	}
	if e.retry.MaxRetries == 0 && e.retry.InitialBackoff == 0 {
		e.retry = filesystem.DefaultRetryConfig()
	}

	if opts.Exiftool {
		et, err := exiftool.NewExiftool(exiftool.NoPrintConversion())
		if err != nil {
			e.log.Info("exiftool unavailable, embedded tags limited to PNG text: %v", err)
		} else {
			e.et = et
			e.log.Info("exiftool started")
		}
	}
	return e
}

// HasExiftool reports whether exiftool tags are being merged.
func (e *Extractor) HasExiftool() bool {
	e.etMu.Lock()
	defer e.etMu.Unlock()
	return e.et != nil
}

// Close stops the exiftool process, if any.
func (e *Extractor) Close() error {
	e.etMu.Lock()
	defer e.etMu.Unlock()
	if e.et == nil {
		return nil
	}
	err := e.et.Close()
	e.et = nil
	return err
}

// Hash returns the hex BLAKE2b-256 digest of the file's content.
func (e *Extractor) Hash(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f, err := filesystem.OpenWithRetry(path, e.retry)
	if err != nil {
		return "", fmt.Errorf("%s: %w: %v", path, errdefs.ErrUnreadableFile, err)
	}
	defer f.Close()
	return hashReader(f, path)
}

func hashReader(r io.Reader, path string) (string, error) {
	h, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("%s: %w: %v", path, errdefs.ErrUnreadableFile, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Extract reads the Record for path.
func (e *Extractor) Extract(ctx context.Context, path string) (rec *Record, err error) {
	start := time.Now()
	degraded := false
	defer func() {
		status := "success"
		switch {
		case err != nil:
			status = "unreadable"
		case degraded:
			status = "degraded"
		}
		metrics.MetadataExtractionsTotal.WithLabelValues(status).Inc()
		metrics.MetadataExtractionDuration.Observe(time.Since(start).Seconds())
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := filesystem.OpenWithRetry(path, e.retry)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", path, errdefs.ErrUnreadableFile, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", path, errdefs.ErrUnreadableFile, err)
	}

	rec = &Record{
		Size:      info.Size(),
		ModTime:   info.ModTime(),
		CreatedAt: birthTime(path, info),
		Format:    mediatypes.FormatForPath(path),
		Fields:    map[string]any{},
	}

	if rec.ContentHash, err = hashReader(f, path); err != nil {
		return nil, err
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", path, errdefs.ErrUnreadableFile, err)
	}
	cfg, name, err := image.DecodeConfig(f)
	if err != nil {
		e.log.Debug("No image header in %s: %v", path, err)
		degraded = true
	} else {
		rec.Width, rec.Height = cfg.Width, cfg.Height
		if format := mediatypes.ParseFormat(name); format != mediatypes.FormatUnknown {
			rec.Format = format
		}
	}

	if rec.Format == mediatypes.FormatPNG {
		if _, err := f.Seek(0, io.SeekStart); err == nil {
			chunks, err := readPNGText(f)
			if err != nil {
				e.log.Debug("Corrupt PNG text in %s: %v", path, err)
				degraded = true
			}
			mergeText(rec.Fields, chunks)
		}
	}

	if !e.mergeExiftool(path, rec.Fields) {
		degraded = true
	}

	return rec, nil
}

// mergeText copies PNG text into fields. A Description holding JSON is
// decoded; an object is merged key by key.
func mergeText(fields map[string]any, chunks map[string]string) {
	for key, text := range chunks {
		if key != DescriptionKey {
			fields[key] = text
			continue
		}
		var v any
		if err := json.Unmarshal([]byte(text), &v); err != nil {
			fields[key] = text
			continue
		}
		if obj, ok := v.(map[string]any); ok {
			for k, val := range obj {
				fields[k] = val
			}
			continue
		}
		fields[key] = v
	}
}

// exiftoolSkipped are tags that describe the file rather than the image.
var exiftoolSkipped = map[string]bool{
	"SourceFile":      true,
	"Directory":       true,
	"ExifToolVersion": true,
}

// mergeExiftool adds exiftool tags that are not already present. It returns
// false when exiftool ran and failed.
func (e *Extractor) mergeExiftool(path string, fields map[string]any) bool {
	e.etMu.Lock()
	defer e.etMu.Unlock()
	if e.et == nil {
		return true
	}

	infos := e.et.ExtractMetadata(path)
	if len(infos) == 0 || infos[0].Err != nil {
		metrics.MetadataExiftoolErrors.Inc()
		if len(infos) > 0 {
			e.log.Debug("exiftool failed for %s: %v", path, infos[0].Err)
		}
		return false
	}

	for tag, val := range infos[0].Fields {
		if exiftoolSkipped[tag] || strings.HasPrefix(tag, "File") {
			continue
		}
		if s, ok := val.(string); ok && strings.HasPrefix(s, "(Binary data") {
			continue
		}
		if _, exists := fields[tag]; !exists {
			fields[tag] = val
		}
	}
	return true
}

// modTimeFallback is used where the platform has no birth time.
func modTimeFallback(info os.FileInfo) time.Time {
	return info.ModTime()
}
