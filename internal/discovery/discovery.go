package discovery

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"photo-indexer/internal/database"
	"photo-indexer/internal/filesystem"
	"photo-indexer/internal/logging"
	"photo-indexer/internal/mediatypes"
	"photo-indexer/internal/metrics"
	"photo-indexer/internal/workers"
)

// ErrNoReadableFolders is returned when every watched folder failed to open.
var ErrNoReadableFolders = errors.New("no watched folder is readable")

// FileRef identifies one discovered image. Path is absolute with symlinks
// resolved; it is also the key of the image's record in the index.
type FileRef struct {
	Path     string    `json:"path"`
	UUID     string    `json:"uuid"`
	FolderID int64     `json:"folder_id"`
	Size     int64     `json:"size"`
	ModTime  time.Time `json:"mod_time"`
}

// ImageUUID derives the stable identifier of the image at path.
func ImageUUID(path string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+path)).String()
}

// Discoverer walks folder trees. It holds no state between calls.
type Discoverer struct {
	workers int
	retry   filesystem.RetryConfig
	log     *logging.Logger
}

// Option configures a Discoverer.
type Option func(*Discoverer)

// WithWorkers sets how many files are stat'ed concurrently.
func WithWorkers(n int) Option {
	return func(d *Discoverer) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithRetryConfig sets the retry policy for filesystem calls.
func WithRetryConfig(c filesystem.RetryConfig) Option {
	return func(d *Discoverer) { d.retry = c }
}

// New creates a Discoverer. The default worker count follows INDEX_WORKERS.
func New(opts ...Option) *Discoverer {
	d := &Discoverer{
		workers: workers.ForIO(16),
		retry:   filesystem.DefaultRetryConfig(),
		log:     logging.For("discovery"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

type candidate struct {
	path     string
	folderID int64
}

// Discover walks every watched folder and returns the images found, sorted
// by path. A file reachable from several watched folders is reported once,
// attributed to the first folder in watched order that reached it.
func (d *Discoverer) Discover(ctx context.Context, watched, ignored []database.Folder) ([]FileRef, error) {
	start := time.Now()
	metrics.DiscoveryRunsTotal.Inc()
	defer func() {
		metrics.DiscoveryDuration.Observe(time.Since(start).Seconds())
	}()

	ig := newIgnoreSet(ignored)

	var found []candidate
	readable := 0
	for _, folder := range watched {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		root, err := filepath.EvalSymlinks(folder.Path)
		if err != nil {
			d.log.Warn("Watched folder %s is not readable: %v", folder.Path, err)
			metrics.DiscoveryDirsSkipped.WithLabelValues("unreadable").Inc()
			continue
		}
		if ig.contains(folder.Path) || ig.contains(root) {
			readable++
			metrics.DiscoveryDirsSkipped.WithLabelValues("ignored").Inc()
			continue
		}

		entries, err := filesystem.ReadDirWithRetry(root, d.retry)
		if err != nil {
			d.log.Warn("Watched folder %s is not readable: %v", folder.Path, err)
			metrics.DiscoveryDirsSkipped.WithLabelValues("unreadable").Inc()
			continue
		}
		readable++

		w := &walk{
			d:        d,
			ignored:  ig,
			folderID: folder.ID,
			visited:  map[string]bool{root: true},
		}
		if err := w.dir(ctx, root, entries); err != nil {
			return nil, err
		}
		found = append(found, w.found...)
	}

	if len(watched) > 0 && readable == 0 {
		return nil, fmt.Errorf("%d watched folders: %w", len(watched), ErrNoReadableFolders)
	}

	// Stable sort keeps the first watched folder's attribution for duplicates.
	sort.SliceStable(found, func(i, j int) bool { return found[i].path < found[j].path })
	unique := found[:0]
	for _, c := range found {
		if len(unique) > 0 && c.path == unique[len(unique)-1].path {
			continue
		}
		unique = append(unique, c)
	}

	refs := make([]FileRef, len(unique))
	ok := make([]bool, len(unique))
	err := workers.ForEach(ctx, d.workers, unique, func(_ context.Context, i int, c candidate) error {
		info, err := filesystem.StatWithRetry(c.path, d.retry)
		if err != nil {
			d.log.Warn("Skipping %s: %v", c.path, err)
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		refs[i] = FileRef{
			Path:     c.path,
			UUID:     ImageUUID(c.path),
			FolderID: c.folderID,
			Size:     info.Size(),
			ModTime:  info.ModTime(),
		}
		ok[i] = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]FileRef, 0, len(refs))
	for i, r := range refs {
		if ok[i] {
			out = append(out, r)
		}
	}

	metrics.DiscoveryFilesFound.Add(float64(len(out)))
	d.log.Debug("Discovered %d images in %d folders in %v", len(out), len(watched), time.Since(start))
	return out, nil
}

// walk is the state of one traversal of one watched folder.
type walk struct {
	d        *Discoverer
	ignored  ignoreSet
	folderID int64
	visited  map[string]bool
	found    []candidate
}

// dir processes the entries of the directory at real path dir.
func (w *walk) dir(ctx context.Context, dir string, entries []os.DirEntry) error {
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}

		name := e.Name()
		if strings.HasPrefix(name, ".") {
			if e.IsDir() {
				metrics.DiscoveryDirsSkipped.WithLabelValues("hidden").Inc()
			}
			continue
		}

		path := filepath.Join(dir, name)

		if e.Type()&fs.ModeSymlink != 0 {
			real, err := filepath.EvalSymlinks(path)
			if err != nil {
				w.d.log.Debug("Skipping broken link %s: %v", path, err)
				continue
			}
			info, err := filesystem.StatWithRetry(real, w.d.retry)
			if err != nil {
				w.d.log.Debug("Skipping link %s: %v", path, err)
				continue
			}
			switch {
			case info.IsDir():
				if w.ignored.contains(path) {
					metrics.DiscoveryDirsSkipped.WithLabelValues("ignored").Inc()
					continue
				}
				if err := w.enter(ctx, real); err != nil {
					return err
				}
			case info.Mode().IsRegular() && mediatypes.IsImage(real):
				if w.ignored.contains(path) || w.ignored.contains(real) {
					continue
				}
				w.found = append(w.found, candidate{path: real, folderID: w.folderID})
			}
			continue
		}

		switch {
		case e.IsDir():
			if err := w.enter(ctx, path); err != nil {
				return err
			}
		case e.Type().IsRegular() && mediatypes.IsImage(name):
			w.found = append(w.found, candidate{path: path, folderID: w.folderID})
		}
	}
	return nil
}

// enter descends into the directory at real path dir unless it is ignored
// or already visited in this traversal.
func (w *walk) enter(ctx context.Context, dir string) error {
	if w.ignored.contains(dir) {
		metrics.DiscoveryDirsSkipped.WithLabelValues("ignored").Inc()
		return nil
	}
	if w.visited[dir] {
		w.d.log.Debug("Not re-entering %s", dir)
		metrics.DiscoveryDirsSkipped.WithLabelValues("cycle").Inc()
		return nil
	}
	w.visited[dir] = true

	entries, err := filesystem.ReadDirWithRetry(dir, w.d.retry)
	if err != nil {
		w.d.log.Warn("Skipping unreadable directory %s: %v", dir, err)
		metrics.DiscoveryDirsSkipped.WithLabelValues("unreadable").Inc()
		return nil
	}
	return w.dir(ctx, dir, entries)
}

// ignoreSet matches paths at or below any ignored folder.
type ignoreSet []string

func newIgnoreSet(folders []database.Folder) ignoreSet {
	set := make(ignoreSet, 0, len(folders)*2)
	for _, f := range folders {
		p := filepath.Clean(f.Path)
		set = append(set, p)
		if real, err := filepath.EvalSymlinks(p); err == nil && real != p {
			set = append(set, real)
		}
	}
	return set
}

func (s ignoreSet) contains(path string) bool {
	path = filepath.Clean(path)
	for _, ig := range s {
		if path == ig {
			return true
		}
		prefix := ig
		if !strings.HasSuffix(prefix, string(filepath.Separator)) {
			prefix += string(filepath.Separator)
		}
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
