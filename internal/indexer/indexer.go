package indexer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"photo-indexer/internal/database"
	"photo-indexer/internal/discovery"
	"photo-indexer/internal/errdefs"
	"photo-indexer/internal/events"
	"photo-indexer/internal/filesystem"
	"photo-indexer/internal/logging"
	"photo-indexer/internal/media"
	"photo-indexer/internal/metadata"
	"photo-indexer/internal/metrics"
	"photo-indexer/internal/workers"
)

const (
	// DefaultBatchSize is the number of files written per transaction.
	DefaultBatchSize = 20

	// DefaultRetention is how long a finished scan stays queryable.
	DefaultRetention = 5 * time.Minute
)

// Folders resolves scan targets.
type Folders interface {
	Resolve(ctx context.Context, paths []string) ([]database.Folder, error)
	IgnoreFolders(ctx context.Context) ([]database.Folder, error)
}

// Store is the part of the index a scan writes to.
type Store interface {
	GetImageByPath(ctx context.Context, path string) (*database.Image, error)
	WriteImages(ctx context.Context, upserts []*database.Image, touched []string, seenAt time.Time) error
	DeleteUnseen(ctx context.Context, folders []database.Folder, cutoff time.Time) (int64, error)
	ThumbnailKeys(ctx context.Context) (map[string]struct{}, error)
	SetLastScan(ctx context.Context, t time.Time) error
}

// Discoverer enumerates images.
type Discoverer interface {
	Discover(ctx context.Context, watched, ignored []database.Folder) ([]discovery.FileRef, error)
}

// Extractor reads file metadata.
type Extractor interface {
	Hash(ctx context.Context, path string) (string, error)
	Extract(ctx context.Context, path string) (*metadata.Record, error)
}

// Thumbnailer renders and caches thumbnails.
type Thumbnailer interface {
	Get(ctx context.Context, ref discovery.FileRef) (media.ThumbnailRef, error)
	Exists(key string) bool
	Prune(ctx context.Context, keep map[string]struct{}, olderThan time.Time) (int, error)
}

// Publisher delivers progress events.
type Publisher interface {
	Open(token string)
	Publish(ev events.Event)
}

// Throttle holds scans back under resource pressure.
type Throttle interface {
	Wait(ctx context.Context) error
}

// Config tunes an Indexer.
type Config struct {
	BatchSize int
	Workers   int
	Retention time.Duration
	// Throttle, if set, is waited on before each batch.
	Throttle Throttle
}

// ScanRequest selects what to scan. An empty Folders list scans every
// watched folder. An empty Token is replaced by a generated one.
type ScanRequest struct {
	Folders []string `json:"folders"`
	Token   string   `json:"token,omitempty"`
}

// Indexer starts and tracks scans.
type Indexer struct {
	folders Folders
	store   Store
	disc    Discoverer
	extract Extractor
	thumbs  Thumbnailer
	pub     Publisher
	cfg     Config
	log     *logging.Logger

	// base parents every scan context so that scans outlive the requests
	// that start them but not the process.
	base       context.Context
	cancelBase context.CancelFunc
	wg         sync.WaitGroup

	mu    sync.Mutex
	scans map[string]*Scan
}

// New creates an Indexer.
func New(folders Folders, store Store, disc Discoverer, extract Extractor, thumbs Thumbnailer, pub Publisher, cfg Config) *Indexer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = workers.ForMixed(8)
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	base, cancel := context.WithCancel(context.Background())
	return &Indexer{
		folders:    folders,
		store:      store,
		disc:       disc,
		extract:    extract,
		thumbs:     thumbs,
		pub:        pub,
		cfg:        cfg,
		log:        logging.For("scan"),
		base:       base,
		cancelBase: cancel,
		scans:      make(map[string]*Scan),
	}
}

// Start validates req and launches the scan in the background. ctx bounds
// only the validation. A scan whose token is still held fails with
// errdefs.ErrScanAlreadyInProgress; an unwatched folder with
// errdefs.ErrNotFound.
func (ix *Indexer) Start(ctx context.Context, req ScanRequest) (*Scan, error) {
	folders, err := ix.folders.Resolve(ctx, req.Folders)
	if err != nil {
		return nil, err
	}

	token := req.Token
	if token == "" {
		token = uuid.NewString()
	}

	ix.mu.Lock()
	if ix.base.Err() != nil {
		ix.mu.Unlock()
		return nil, fmt.Errorf("indexer is shut down: %w", errdefs.ErrStoreUnavailable)
	}
	// A scan holds its token until its terminal event is published.
	if prev, ok := ix.scans[token]; ok {
		select {
		case <-prev.Done():
		default:
			ix.mu.Unlock()
			return nil, fmt.Errorf("scan %s: %w", token, errdefs.ErrScanAlreadyInProgress)
		}
	}

	scanCtx, cancel := context.WithCancel(ix.base)
	s := newScan(scanCtx, cancel, token, folders, len(req.Folders) == 0)
	ix.scans[token] = s
	ix.pub.Open(token)
	ix.wg.Add(1)
	ix.mu.Unlock()

	metrics.ScansRunning.Inc()
	ix.log.Info("Scan %s started over %d folders", token, len(folders))
	go ix.run(s)
	return s, nil
}

// Get returns a running or recently finished scan.
func (ix *Indexer) Get(token string) (*Scan, bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	s, ok := ix.scans[token]
	return s, ok
}

// Active returns the summaries of running scans.
func (ix *Indexer) Active() []Summary {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	var out []Summary
	for _, s := range ix.scans {
		if sum := s.Summary(); sum.State == StateRunning {
			out = append(out, sum)
		}
	}
	return out
}

// Shutdown cancels every running scan and waits for them to finish or for
// ctx to end.
func (ix *Indexer) Shutdown(ctx context.Context) error {
	ix.mu.Lock()
	ix.cancelBase()
	ix.mu.Unlock()

	done := make(chan struct{})
	go func() {
		ix.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (ix *Indexer) run(s *Scan) {
	defer ix.wg.Done()
	defer close(s.done)
	defer metrics.ScansRunning.Dec()

	err := ix.execute(s)
	sum := s.finish(err)

	outcome := "completed"
	switch {
	case err == nil:
		metrics.ScanLastRunTimestamp.Set(float64(sum.FinishedAt.Unix()))
		ix.pub.Publish(events.Event{
			Token:   s.token,
			Kind:    events.KindCompleted,
			Percent: 100,
			Message: fmt.Sprintf("Indexed %d files (%d unchanged, %d skipped, %d removed)",
				sum.Indexed, sum.Unchanged, sum.Skipped, sum.Pruned),
		})
		ix.log.Info("Scan %s completed in %v: %d files, %d indexed, %d unchanged, %d skipped, %d removed",
			s.token, sum.FinishedAt.Sub(sum.StartedAt), sum.Total, sum.Indexed, sum.Unchanged, sum.Skipped, sum.Pruned)
	default:
		outcome = "failed"
		if errors.Is(err, context.Canceled) {
			outcome = "cancelled"
		}
		ix.pub.Publish(events.Event{
			Token:   s.token,
			Kind:    events.KindFailed,
			Percent: sum.Percent,
			Message: "Scan failed: " + err.Error(),
			Error:   err.Error(),
		})
		ix.log.Error("Scan %s %s after %d of %d files: %v", s.token, outcome, sum.Processed, sum.Total, err)
	}
	metrics.ScanRunsTotal.WithLabelValues(outcome).Inc()
	metrics.ScanDuration.Observe(sum.FinishedAt.Sub(sum.StartedAt).Seconds())

	time.AfterFunc(ix.cfg.Retention, func() {
		ix.mu.Lock()
		defer ix.mu.Unlock()
		if ix.scans[s.token] == s {
			delete(ix.scans, s.token)
		}
	})
}

// fileOutcome is what happened to one file.
type fileOutcome int

const (
	outcomeIndexed fileOutcome = iota
	outcomeUnchanged
	outcomeSkipped
)

func (o fileOutcome) String() string {
	switch o {
	case outcomeIndexed:
		return "indexed"
	case outcomeUnchanged:
		return "unchanged"
	default:
		return "skipped"
	}
}

type fileResult struct {
	outcome fileOutcome
	image   *database.Image
	err     error
}

func (ix *Indexer) execute(s *Scan) error {
	ctx := s.ctx
	seenAt := s.startedAt

	ix.publish(s, events.Event{Kind: events.KindProgress, Indeterminate: true, Message: "Discovering files"})

	ignored, err := ix.folders.IgnoreFolders(ctx)
	if err != nil {
		return err
	}
	refs, err := ix.disc.Discover(ctx, s.folders, ignored)
	if err != nil {
		return fmt.Errorf("discovery: %w", err)
	}

	total := len(refs)
	s.setTotal(total)
	ix.publish(s, events.Event{Kind: events.KindProgress, Message: fmt.Sprintf("Found %d files", total)})

	processed := 0
	for start := 0; start < total; start += ix.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		if ix.cfg.Throttle != nil {
			if err := ix.cfg.Throttle.Wait(ctx); err != nil {
				return err
			}
		}
		chunk := refs[start:min(start+ix.cfg.BatchSize, total)]

		results := make([]fileResult, len(chunk))
		err := workers.ForEach(ctx, ix.cfg.Workers, chunk, func(ctx context.Context, i int, ref discovery.FileRef) error {
			results[i] = ix.process(ctx, ref, seenAt)
			if results[i].err != nil && !errors.Is(results[i].err, errSkip) {
				return results[i].err
			}
			return nil
		})
		if err != nil {
			return err
		}

		var upserts []*database.Image
		var touched []string
		for i, r := range results {
			switch r.outcome {
			case outcomeIndexed:
				upserts = append(upserts, r.image)
			case outcomeUnchanged:
				touched = append(touched, chunk[i].Path)
			}
		}
		if err := ix.store.WriteImages(ctx, upserts, touched, seenAt); err != nil {
			return err
		}

		for i, r := range results {
			processed++
			s.count(r.outcome)
			metrics.ScanFilesTotal.WithLabelValues(r.outcome.String()).Inc()
			ix.publish(s, events.Event{
				Kind:    events.KindProgress,
				Percent: float64(processed) / float64(total) * 100,
				Message: fmt.Sprintf("%d/%d %s", processed, total, filepath.Base(chunk[i].Path)),
			})
		}
	}

	return ix.cleanup(s, seenAt)
}

// errSkip marks per-file failures that do not end the scan.
var errSkip = errors.New("file skipped")

// process decides whether ref changed since it was indexed and, if so,
// builds its new record.
func (ix *Indexer) process(ctx context.Context, ref discovery.FileRef, seenAt time.Time) fileResult {
	if err := ctx.Err(); err != nil {
		return fileResult{outcome: outcomeSkipped, err: err}
	}

	existing, err := ix.store.GetImageByPath(ctx, ref.Path)
	if err != nil && !errors.Is(err, errdefs.ErrNotFound) {
		return fileResult{outcome: outcomeSkipped, err: err}
	}

	key := media.KeyFor(ref)
	if existing != nil {
		hash, err := ix.extract.Hash(ctx, ref.Path)
		if err != nil {
			return ix.skip(ctx, ref, err)
		}
		if hash == existing.ContentHash && existing.ThumbnailKey == key && ix.thumbs.Exists(key) {
			return fileResult{outcome: outcomeUnchanged}
		}
	}

	rec, err := ix.extract.Extract(ctx, ref.Path)
	if err != nil {
		return ix.skip(ctx, ref, err)
	}

	thumb, err := ix.thumbs.Get(ctx, ref)
	if err != nil {
		if ctx.Err() != nil {
			return fileResult{outcome: outcomeSkipped, err: ctx.Err()}
		}
		ix.log.Warn("No thumbnail for %s: %v", ref.Path, err)
	}
	thumbKey := ""
	if !thumb.Placeholder {
		thumbKey = thumb.Key
	}

	return fileResult{
		outcome: outcomeIndexed,
		image: &database.Image{
			UUID:          ref.UUID,
			Path:          ref.Path,
			FolderID:      ref.FolderID,
			Size:          rec.Size,
			ModTime:       rec.ModTime,
			ContentHash:   rec.ContentHash,
			Format:        string(rec.Format),
			Width:         rec.Width,
			Height:        rec.Height,
			Metadata:      rec.Fields,
			ThumbnailKey:  thumbKey,
			FileCreatedAt: rec.CreatedAt,
			LastSeenAt:    seenAt,
		},
	}
}

func (ix *Indexer) skip(ctx context.Context, ref discovery.FileRef, err error) fileResult {
	if ctx.Err() != nil {
		return fileResult{outcome: outcomeSkipped, err: ctx.Err()}
	}
	ix.log.Warn("Skipping %s: %v", ref.Path, err)
	return fileResult{outcome: outcomeSkipped, err: fmt.Errorf("%w: %w", errSkip, err)}
}

// cleanup prunes what the scan proved stale. Folders that cannot be reached
// right now keep their records.
func (ix *Indexer) cleanup(s *Scan, seenAt time.Time) error {
	ctx := s.ctx

	reachable := make([]database.Folder, 0, len(s.folders))
	for _, f := range s.folders {
		if info, err := filesystem.StatWithRetry(f.Path, filesystem.DefaultRetryConfig()); err == nil && info.IsDir() {
			reachable = append(reachable, f)
		} else {
			ix.log.Warn("Keeping records of unreachable folder %s", f.Path)
		}
	}

	pruned, err := ix.store.DeleteUnseen(ctx, reachable, seenAt)
	if err != nil {
		return err
	}
	s.setPruned(pruned)
	metrics.ScanRecordsPruned.Add(float64(pruned))

	if s.full {
		keys, err := ix.store.ThumbnailKeys(ctx)
		if err != nil {
			return err
		}
		if _, err := ix.thumbs.Prune(ctx, keys, seenAt); err != nil {
			ix.log.Warn("Thumbnail prune failed: %v", err)
		}
	}

	if err := ix.store.SetLastScan(ctx, time.Now()); err != nil {
		ix.log.Warn("Failed to record scan time: %v", err)
	}
	return nil
}

func (ix *Indexer) publish(s *Scan, ev events.Event) {
	ev.Token = s.token
	s.setProgress(ev.Percent)
	ix.pub.Publish(ev)
}
