package media

import (
	"fmt"
	"image"
	"sync"

	"github.com/davidbyttow/govips/v2/vips"

	"photo-indexer/internal/logging"
)

var (
	vipsMu        sync.Mutex
	vipsAvailable bool
	vipsLog       = logging.For("vips")
)

// vipsLevel maps the application log level onto the most verbose libvips
// level worth forwarding.
func vipsLevel(l logging.LogLevel) vips.LogLevel {
	switch l {
	case logging.LevelDebug:
		return vips.LogLevelInfo
	case logging.LevelInfo:
		return vips.LogLevelWarning
	case logging.LevelWarn:
		return vips.LogLevelError
	default:
		return vips.LogLevelCritical
	}
}

func forwardVipsLog(domain string, level vips.LogLevel, msg string) {
	switch level {
	case vips.LogLevelError, vips.LogLevelCritical:
		vipsLog.Error("%s: %s", domain, msg)
	case vips.LogLevelWarning:
		vipsLog.Warn("%s: %s", domain, msg)
	default:
		vipsLog.Debug("%s: %s", domain, msg)
	}
}

// InitVips starts libvips for thumbnail decoding. Calling it again is a no-op.
func InitVips() {
	vipsMu.Lock()
	defer vipsMu.Unlock()
	if vipsAvailable {
		return
	}

	vips.LoggingSettings(forwardVipsLog, vipsLevel(logging.GetLevel()))
	vips.Startup(&vips.Config{
		ConcurrencyLevel: 1,
		MaxCacheMem:      50 * 1024 * 1024,
		MaxCacheSize:     100,
	})
	vipsAvailable = true
	vipsLog.Info("libvips %s started", vips.Version)
}

// ShutdownVips releases libvips.
func ShutdownVips() {
	vipsMu.Lock()
	defer vipsMu.Unlock()
	if vipsAvailable {
		vips.Shutdown()
		vipsAvailable = false
		vipsLog.Info("libvips shut down")
	}
}

// IsVipsAvailable reports whether InitVips has run.
func IsVipsAvailable() bool {
	vipsMu.Lock()
	defer vipsMu.Unlock()
	return vipsAvailable
}

// loadWithVips decodes path shrunk to fit size x size. libvips shrinks JPEGs
// during decode, which keeps memory flat for very large sources.
func loadWithVips(path string, size int) (image.Image, error) {
	if !IsVipsAvailable() {
		return nil, fmt.Errorf("libvips not started")
	}

	ref, err := vips.LoadImageFromFile(path, vips.NewImportParams())
	if err != nil {
		return nil, fmt.Errorf("vips load: %w", err)
	}
	defer ref.Close()

	if err := ref.Thumbnail(size, size, vips.InterestingNone); err != nil {
		return nil, fmt.Errorf("vips thumbnail: %w", err)
	}

	img, err := ref.ToImage(vips.NewDefaultExportParams())
	if err != nil {
		return nil, fmt.Errorf("vips export: %w", err)
	}
	return img, nil
}
