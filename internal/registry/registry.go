// Package registry manages the watched and ignored folder sets.
package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"photo-indexer/internal/database"
	"photo-indexer/internal/errdefs"
	"photo-indexer/internal/logging"
)

// Store is the persistence the registry needs.
type Store interface {
	InsertFolder(ctx context.Context, set database.FolderSet, path string) (*database.Folder, error)
	ListFolders(ctx context.Context, set database.FolderSet) ([]database.Folder, error)
	DeleteFolder(ctx context.Context, set database.FolderSet, id int64) error
	CountFolders(ctx context.Context, set database.FolderSet) (int, error)
}

// Registry validates and normalizes folder paths before they are stored.
// Mutations are rare, so a single mutex covers both sets.
type Registry struct {
	store Store
	mu    sync.Mutex
	log   *logging.Logger
}

// New creates a Registry over store.
func New(store Store) *Registry {
	return &Registry{store: store, log: logging.For("registry")}
}

// Normalize makes path absolute and clean and resolves symlinks, then checks
// that it names an existing directory. Failures wrap errdefs.ErrInvalidPath.
func Normalize(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("empty path: %w", errdefs.ErrInvalidPath)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%s: %w: %v", path, errdefs.ErrInvalidPath, err)
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("%s: %w: %v", path, errdefs.ErrInvalidPath, err)
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return "", fmt.Errorf("%s: %w: %v", path, errdefs.ErrInvalidPath, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s: not a directory: %w", path, errdefs.ErrInvalidPath)
	}

	return filepath.Clean(resolved), nil
}

func (r *Registry) add(ctx context.Context, set database.FolderSet, path string) (*database.Folder, error) {
	normalized, err := Normalize(path)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	f, err := r.store.InsertFolder(ctx, set, normalized)
	if err != nil {
		return nil, err
	}
	r.log.Info("Added %s folder %d: %s", setLabel(set), f.ID, f.Path)
	return f, nil
}

// AddFolder registers a watched folder.
func (r *Registry) AddFolder(ctx context.Context, path string) (*database.Folder, error) {
	return r.add(ctx, database.WatchedFolders, path)
}

// AddIgnoreFolder registers an ignored folder. It need not be under a
// watched folder; it takes effect whenever one contains it.
func (r *Registry) AddIgnoreFolder(ctx context.Context, path string) (*database.Folder, error) {
	return r.add(ctx, database.IgnoredFolders, path)
}

// Folders returns the watched folders in insertion order.
func (r *Registry) Folders(ctx context.Context) ([]database.Folder, error) {
	return r.store.ListFolders(ctx, database.WatchedFolders)
}

// IgnoreFolders returns the ignored folders in insertion order.
func (r *Registry) IgnoreFolders(ctx context.Context) ([]database.Folder, error) {
	return r.store.ListFolders(ctx, database.IgnoredFolders)
}

func (r *Registry) remove(ctx context.Context, set database.FolderSet, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.store.DeleteFolder(ctx, set, id); err != nil {
		return err
	}
	r.log.Info("Removed %s folder %d", setLabel(set), id)
	return nil
}

// DeleteFolder removes a watched folder by id.
func (r *Registry) DeleteFolder(ctx context.Context, id int64) error {
	return r.remove(ctx, database.WatchedFolders, id)
}

// DeleteIgnoreFolder removes an ignored folder by id.
func (r *Registry) DeleteIgnoreFolder(ctx context.Context, id int64) error {
	return r.remove(ctx, database.IgnoredFolders, id)
}

// HasFolders reports whether any watched folder is registered.
func (r *Registry) HasFolders(ctx context.Context) (bool, error) {
	n, err := r.store.CountFolders(ctx, database.WatchedFolders)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Resolve maps requested paths onto registered watched folders. An empty
// request selects every watched folder. Unknown paths fail with
// errdefs.ErrNotFound.
func (r *Registry) Resolve(ctx context.Context, paths []string) ([]database.Folder, error) {
	all, err := r.Folders(ctx)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return all, nil
	}

	byPath := make(map[string]database.Folder, len(all))
	for _, f := range all {
		byPath[f.Path] = f
	}

	selected := make([]database.Folder, 0, len(paths))
	seen := make(map[int64]bool, len(paths))
	for _, p := range paths {
		key := p
		if normalized, err := Normalize(p); err == nil {
			key = normalized
		} else if abs, err := filepath.Abs(p); err == nil {
			key = abs
		}
		f, ok := byPath[key]
		if !ok {
			return nil, fmt.Errorf("folder %s is not watched: %w", p, errdefs.ErrNotFound)
		}
		if !seen[f.ID] {
			seen[f.ID] = true
			selected = append(selected, f)
		}
	}
	return selected, nil
}

func setLabel(set database.FolderSet) string {
	if set == database.IgnoredFolders {
		return "ignored"
	}
	return "watched"
}
