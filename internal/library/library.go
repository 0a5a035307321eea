// Package library is the engine façade: one method per operation the
// transports expose, composed from the registry, the discoverer, the
// thumbnail cache, the index and the scan orchestrator.
package library

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"photo-indexer/internal/database"
	"photo-indexer/internal/discovery"
	"photo-indexer/internal/errdefs"
	"photo-indexer/internal/events"
	"photo-indexer/internal/filesystem"
	"photo-indexer/internal/indexer"
	"photo-indexer/internal/logging"
	"photo-indexer/internal/media"
	"photo-indexer/internal/mediatypes"
	"photo-indexer/internal/metadata"
	"photo-indexer/internal/registry"
	"photo-indexer/internal/settings"
)

// MaxChunk bounds ThumbnailChunk's limit.
const MaxChunk = 200

// Thumbnail is a thumbnail payload.
type Thumbnail struct {
	Path        string `json:"path"`
	UUID        string `json:"uuid"`
	DataURL     string `json:"data_url,omitempty"`
	Placeholder bool   `json:"placeholder,omitempty"`
}

// Chunk is one page of thumbnails over the discovered file list.
type Chunk struct {
	Offset int         `json:"offset"`
	Total  int         `json:"total"`
	Items  []Thumbnail `json:"items"`
}

// MetadataView is what GetMetadata returns for one image.
type MetadataView struct {
	Metadata      map[string]any `json:"metadata"`
	DataURL       string         `json:"data_url"`
	FileCreatedAt string         `json:"file_created_at"`
}

// Service wires the engine components together.
type Service struct {
	db       *database.Database
	registry *registry.Registry
	disc     *discovery.Discoverer
	thumbs   *media.ThumbnailCache
	broker   *events.Broker
	scans    *indexer.Indexer
	settings *settings.Store
	extract  *metadata.Extractor
	dataDir  string
	log      *logging.Logger
}

// Deps are the components a Service is built from.
type Deps struct {
	DB       *database.Database
	Registry *registry.Registry
	Disc     *discovery.Discoverer
	Thumbs   *media.ThumbnailCache
	Broker   *events.Broker
	Indexer  *indexer.Indexer
	Settings *settings.Store
	// Extractor is closed with the Service when set.
	Extractor *metadata.Extractor
}

// New creates a Service.
func New(d Deps) *Service {
	return &Service{
		db:       d.DB,
		registry: d.Registry,
		disc:     d.Disc,
		thumbs:   d.Thumbs,
		broker:   d.Broker,
		scans:    d.Indexer,
		settings: d.Settings,
		extract:  d.Extractor,
		log:      logging.For("library"),
	}
}

// Folders lists watched folders in insertion order.
func (s *Service) Folders(ctx context.Context) ([]database.Folder, error) {
	return s.registry.Folders(ctx)
}

// IgnoreFolders lists ignored folders in insertion order.
func (s *Service) IgnoreFolders(ctx context.Context) ([]database.Folder, error) {
	return s.registry.IgnoreFolders(ctx)
}

// AddFolder watches path.
func (s *Service) AddFolder(ctx context.Context, path string) (*database.Folder, error) {
	f, err := s.registry.AddFolder(ctx, path)
	if err == nil {
		s.labelVolumes(ctx)
	}
	return f, err
}

// AddIgnoreFolder excludes path from discovery.
func (s *Service) AddIgnoreFolder(ctx context.Context, path string) (*database.Folder, error) {
	return s.registry.AddIgnoreFolder(ctx, path)
}

// DeleteFolder stops watching a folder.
func (s *Service) DeleteFolder(ctx context.Context, id int64) error {
	if err := s.registry.DeleteFolder(ctx, id); err != nil {
		return err
	}
	s.labelVolumes(ctx)
	return nil
}

// labelVolumes points filesystem metric labels at the data directory and
// the watched folders ("folder-<id>").
func (s *Service) labelVolumes(ctx context.Context) {
	folders, err := s.registry.Folders(ctx)
	if err != nil {
		s.log.Warn("Failed to refresh volume labels: %v", err)
		return
	}
	volumes := make(map[string]string, len(folders)+1)
	if s.dataDir != "" {
		volumes["data"] = s.dataDir
	}
	for _, f := range folders {
		volumes[fmt.Sprintf("folder-%d", f.ID)] = f.Path
	}
	filesystem.SetDefaultVolumeResolver(filesystem.NewVolumeResolver(volumes))
}

// DeleteIgnoreFolder removes an ignore entry.
func (s *Service) DeleteIgnoreFolder(ctx context.Context, id int64) error {
	return s.registry.DeleteIgnoreFolder(ctx, id)
}

// HasFolders reports whether any folder is watched.
func (s *Service) HasFolders(ctx context.Context) (bool, error) {
	return s.registry.HasFolders(ctx)
}

// StartScan launches a scan and returns its token.
func (s *Service) StartScan(ctx context.Context, req indexer.ScanRequest) (string, error) {
	scan, err := s.scans.Start(ctx, req)
	if err != nil {
		return "", err
	}
	return scan.Token(), nil
}

// Subscribe returns a subscription to a scan's progress events.
func (s *Service) Subscribe(token string) (*events.Subscription, error) {
	return s.broker.Subscribe(token)
}

// ScanStatus returns the summary of a running or recently finished scan.
func (s *Service) ScanStatus(token string) (indexer.Summary, error) {
	scan, ok := s.scans.Get(token)
	if !ok {
		return indexer.Summary{}, fmt.Errorf("scan %s: %w", token, errdefs.ErrNotFound)
	}
	return scan.Summary(), nil
}

// ActiveScans lists running scans.
func (s *Service) ActiveScans() []indexer.Summary {
	return s.scans.Active()
}

// CancelScan asks a running scan to stop.
func (s *Service) CancelScan(token string) error {
	scan, ok := s.scans.Get(token)
	if !ok {
		return fmt.Errorf("scan %s: %w", token, errdefs.ErrNotFound)
	}
	scan.Cancel()
	return nil
}

// ListFiles walks the watched folders and returns every image found.
func (s *Service) ListFiles(ctx context.Context) ([]discovery.FileRef, error) {
	watched, err := s.registry.Folders(ctx)
	if err != nil {
		return nil, err
	}
	ignored, err := s.registry.IgnoreFolders(ctx)
	if err != nil {
		return nil, err
	}
	return s.disc.Discover(ctx, watched, ignored)
}

// Thumbnails renders the thumbnails of refs, in order. Only Path is
// required; missing stat data is filled in. Files that cannot be rendered
// come back as placeholders, as do paths that are neither under a watched
// folder nor indexed, and paths under an ignored folder.
func (s *Service) Thumbnails(ctx context.Context, refs []discovery.FileRef) ([]Thumbnail, error) {
	scope, err := s.scope(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]Thumbnail, len(refs))
	allowed := make([]discovery.FileRef, 0, len(refs))
	slots := make([]int, 0, len(refs))
	for i, ref := range refs {
		given := filepath.Clean(ref.Path)
		ref = s.resolve(ref)
		if !s.inLibrary(ctx, scope, given, ref.Path) {
			s.log.Debug("Not rendering %s: outside the library", given)
			out[i] = Thumbnail{Path: given, UUID: discovery.ImageUUID(given), Placeholder: true}
			continue
		}
		allowed = append(allowed, ref)
		slots = append(slots, i)
	}

	rendered, err := s.render(ctx, allowed)
	if err != nil {
		return nil, err
	}
	for j, th := range rendered {
		out[slots[j]] = th
	}
	return out, nil
}

func (s *Service) render(ctx context.Context, refs []discovery.FileRef) ([]Thumbnail, error) {
	full := make([]discovery.FileRef, len(refs))
	for i, ref := range refs {
		full[i] = s.stat(ref)
	}

	rendered, err := s.thumbs.GetMany(ctx, full)
	if err != nil {
		return nil, err
	}

	out := make([]Thumbnail, len(rendered))
	for i, r := range rendered {
		out[i] = Thumbnail{Path: full[i].Path, UUID: full[i].UUID, Placeholder: r.Placeholder}
		if r.Placeholder {
			continue
		}
		url, err := s.thumbs.DataURL(r)
		if err != nil {
			s.log.Warn("Thumbnail %s unavailable: %v", full[i].Path, err)
			out[i].Placeholder = true
			continue
		}
		out[i].DataURL = url
	}
	return out, nil
}

// resolve follows ref's symlinks and fills in its UUID.
func (s *Service) resolve(ref discovery.FileRef) discovery.FileRef {
	if real, err := filepath.EvalSymlinks(ref.Path); err == nil {
		ref.Path = real
	}
	if ref.UUID == "" {
		ref.UUID = discovery.ImageUUID(ref.Path)
	}
	return ref
}

// stat fills the stat data a caller may omit.
func (s *Service) stat(ref discovery.FileRef) discovery.FileRef {
	if ref.ModTime.IsZero() {
		if info, err := filesystem.StatWithRetry(ref.Path, filesystem.DefaultRetryConfig()); err == nil {
			ref.Size = info.Size()
			ref.ModTime = info.ModTime()
		}
	}
	return ref
}

// libraryScope holds the watched and ignored roots, each with its resolved
// form when that differs.
type libraryScope struct {
	watched []string
	ignored []string
}

func (s *Service) scope(ctx context.Context) (libraryScope, error) {
	watched, err := s.registry.Folders(ctx)
	if err != nil {
		return libraryScope{}, err
	}
	ignored, err := s.registry.IgnoreFolders(ctx)
	if err != nil {
		return libraryScope{}, err
	}
	return libraryScope{watched: roots(watched), ignored: roots(ignored)}, nil
}

func roots(folders []database.Folder) []string {
	out := make([]string, 0, len(folders)*2)
	for _, f := range folders {
		p := filepath.Clean(f.Path)
		out = append(out, p)
		if real, err := filepath.EvalSymlinks(p); err == nil && real != p {
			out = append(out, real)
		}
	}
	return out
}

// inLibrary reports whether a thumbnail may be rendered for the file given
// as path and resolving to real. Symlinked files outside every watched
// folder qualify once indexed.
func (s *Service) inLibrary(ctx context.Context, scope libraryScope, path, real string) bool {
	if under(path, scope.ignored) || under(real, scope.ignored) {
		return false
	}
	if under(real, scope.watched) {
		return true
	}
	_, err := s.db.GetImageByPath(ctx, real)
	return err == nil
}

func under(path string, dirs []string) bool {
	for _, d := range dirs {
		rel, err := filepath.Rel(d, path)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// ThumbnailChunk returns thumbnails for files [offset, offset+limit) of the
// discovered file list, generating them on demand.
func (s *Service) ThumbnailChunk(ctx context.Context, offset, limit int) (*Chunk, error) {
	if offset < 0 || limit <= 0 {
		return nil, fmt.Errorf("offset %d limit %d: %w", offset, limit, errdefs.ErrInvalidQuery)
	}
	limit = min(limit, MaxChunk)

	files, err := s.ListFiles(ctx)
	if err != nil && !errors.Is(err, discovery.ErrNoReadableFolders) {
		return nil, err
	}

	chunk := &Chunk{Offset: offset, Total: len(files), Items: []Thumbnail{}}
	if offset >= len(files) {
		return chunk, nil
	}
	items, err := s.render(ctx, files[offset:min(offset+limit, len(files))])
	if err != nil {
		return nil, err
	}
	chunk.Items = items
	return chunk, nil
}

// GetMetadata returns the stored metadata of an image together with the
// full image as a data URL. path must match the record.
func (s *Service) GetMetadata(ctx context.Context, id, path string) (*MetadataView, error) {
	img, err := s.db.GetImageByUUID(ctx, id)
	if err != nil {
		return nil, err
	}
	if path != "" && !samePath(path, img.Path) {
		return nil, fmt.Errorf("image %s at %s: %w", id, path, errdefs.ErrNotFound)
	}

	data, err := filesystem.ReadFileWithRetry(img.Path, filesystem.DefaultRetryConfig())
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", img.Path, errdefs.ErrUnreadableFile, err)
	}

	format := mediatypes.ParseFormat(img.Format)
	if format == mediatypes.FormatUnknown {
		format = mediatypes.FormatForPath(img.Path)
	}

	return &MetadataView{
		Metadata:      img.Metadata,
		DataURL:       "data:" + format.MimeType() + ";base64," + base64.StdEncoding.EncodeToString(data),
		FileCreatedAt: database.FormatFileTime(img.FileCreatedAt),
	}, nil
}

func samePath(given, stored string) bool {
	if filepath.Clean(given) == stored {
		return true
	}
	real, err := filepath.EvalSymlinks(given)
	return err == nil && real == stored
}

// Config returns the user settings.
func (s *Service) Config() settings.Config {
	return s.settings.Get()
}

// SetConfig replaces the user settings.
func (s *Service) SetConfig(cfg settings.Config) (settings.Config, error) {
	if err := s.settings.Set(cfg); err != nil {
		return settings.Config{}, err
	}
	return s.settings.Get(), nil
}

// Search returns the records matching conds.
func (s *Service) Search(ctx context.Context, conds []database.Condition) ([]database.Image, error) {
	return s.db.Search(ctx, conds)
}

// Stats summarizes the index.
func (s *Service) Stats(ctx context.Context) (database.Stats, error) {
	return s.db.GetStats(ctx)
}
