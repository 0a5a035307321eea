package filesystem

import (
	"cmp"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"photo-indexer/internal/logging"
)

// UnknownVolume labels paths outside every configured volume.
const UnknownVolume = "unknown"

// VolumeResolver labels paths with the name of the volume containing them.
// The deepest matching root wins.
type VolumeResolver struct {
	roots []volumeRoot // deepest first
}

type volumeRoot struct {
	dir  string
	name string
}

// NewVolumeResolver builds a resolver from volume name to root directory,
// e.g. {"data": "/var/lib/photo-indexer", "folder-1": "/photos"}.
func NewVolumeResolver(volumes map[string]string) *VolumeResolver {
	roots := make([]volumeRoot, 0, len(volumes))
	for name, dir := range volumes {
		if abs, err := filepath.Abs(dir); err == nil {
			dir = abs
		}
		roots = append(roots, volumeRoot{dir: filepath.Clean(dir), name: name})
	}
	slices.SortFunc(roots, func(a, b volumeRoot) int {
		return cmp.Compare(len(b.dir), len(a.dir))
	})
	return &VolumeResolver{roots: roots}
}

// Resolve returns the volume containing path, or UnknownVolume.
func (vr *VolumeResolver) Resolve(path string) string {
	if vr == nil {
		return UnknownVolume
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return UnknownVolume
	}
	for _, r := range vr.roots {
		if within(abs, r.dir) {
			return r.name
		}
	}
	return UnknownVolume
}

// within reports whether path is dir or lies below it.
func within(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// defaultResolver is the package-level resolver. It is replaced whenever
// the set of watched folders changes.
var defaultResolver atomic.Pointer[VolumeResolver]

// SetDefaultVolumeResolver sets the package-level volume resolver.
func SetDefaultVolumeResolver(vr *VolumeResolver) {
	defaultResolver.Store(vr)
}

// DefaultVolumeResolver returns the package-level resolver, or nil.
func DefaultVolumeResolver() *VolumeResolver {
	return defaultResolver.Load()
}

// RetryConfig bounds the retries of one call.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// VolumeResolver overrides the package-level resolver when set.
	VolumeResolver *VolumeResolver
}

// DefaultRetryConfig retries three times, backing off from 50ms to 500ms.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     500 * time.Millisecond,
	}
}

func (c *RetryConfig) resolveVolume(path string) string {
	if c.VolumeResolver != nil {
		return c.VolumeResolver.Resolve(path)
	}
	return defaultResolver.Load().Resolve(path)
}

// isNFSStaleError reports whether err is, or wraps, ESTALE.
func isNFSStaleError(err error) bool {
	return err != nil && errors.Is(err, syscall.ESTALE)
}

var log = logging.For("fs")

// withRetry calls fn until it succeeds, fails with something other than
// ESTALE, or runs out of retries. The call is reported to the Observer as a
// single Op labelled op.
func withRetry[T any](op, path string, config RetryConfig, fn func() (T, error)) (v T, err error) {
	rec := Op{Name: op, Volume: config.resolveVolume(path)}
	defer func(start time.Time) {
		rec.Duration, rec.Err = time.Since(start), err
		report(rec)
	}(time.Now())

	wait := config.InitialBackoff
	for {
		rec.Attempts++
		if v, err = fn(); !isNFSStaleError(err) {
			if err == nil && rec.Retried() {
				log.Info("%s %s recovered after %d stale handles", op, path, rec.StaleErrors)
			}
			return v, err
		}
		rec.StaleErrors++
		if rec.Attempts > config.MaxRetries {
			log.Warn("%s %s: still stale after %d retries: %v", op, path, config.MaxRetries, err)
			return v, err
		}
		log.Debug("%s %s: stale handle, retry %d/%d in %v", op, path, rec.Attempts, config.MaxRetries, wait)
		time.Sleep(wait)
		wait = min(wait*2, config.MaxBackoff)
	}
}

// StatWithRetry is os.Stat with ESTALE retries.
func StatWithRetry(path string, config RetryConfig) (os.FileInfo, error) {
	return withRetry("stat", path, config, func() (os.FileInfo, error) { return os.Stat(path) })
}

// OpenWithRetry is os.Open with ESTALE retries.
func OpenWithRetry(path string, config RetryConfig) (*os.File, error) {
	return withRetry("open", path, config, func() (*os.File, error) { return os.Open(path) })
}

// ReadDirWithRetry is os.ReadDir with ESTALE retries.
func ReadDirWithRetry(path string, config RetryConfig) ([]os.DirEntry, error) {
	return withRetry("readdir", path, config, func() ([]os.DirEntry, error) { return os.ReadDir(path) })
}

// ReadFileWithRetry is os.ReadFile with ESTALE retries.
func ReadFileWithRetry(path string, config RetryConfig) ([]byte, error) {
	return withRetry("readfile", path, config, func() ([]byte, error) { return os.ReadFile(path) })
}
