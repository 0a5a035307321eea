package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"photo-indexer/internal/logging"
	"photo-indexer/internal/metrics"
)

// fileTimeLayout keeps file_created_at fixed-width so that text comparison
// in search orders chronologically.
const fileTimeLayout = "2006-01-02T15:04:05Z"

const imageColumns = `id, uuid, path, COALESCE(folder_id, 0), size, mod_time, content_hash,
	format, width, height, metadata_json, thumbnail_key, file_created_at,
	created_at, updated_at, last_seen_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanImage(row rowScanner) (*Image, error) {
	var img Image
	var modTime, createdAt, updatedAt, lastSeen int64
	var metaJSON, fileCreated string

	if err := row.Scan(
		&img.ID, &img.UUID, &img.Path, &img.FolderID, &img.Size, &modTime, &img.ContentHash,
		&img.Format, &img.Width, &img.Height, &metaJSON, &img.ThumbnailKey, &fileCreated,
		&createdAt, &updatedAt, &lastSeen,
	); err != nil {
		return nil, err
	}

	img.ModTime = time.Unix(0, modTime)
	img.CreatedAt = time.Unix(createdAt, 0)
	img.UpdatedAt = time.Unix(updatedAt, 0)
	img.LastSeenAt = time.Unix(0, lastSeen)
	if t, err := time.Parse(fileTimeLayout, fileCreated); err == nil {
		img.FileCreatedAt = t
	}

	img.Metadata = map[string]any{}
	if metaJSON != "" {
		if err := json.Unmarshal([]byte(metaJSON), &img.Metadata); err != nil {
			logging.Warn("Corrupt metadata_json for %s: %v", img.Path, err)
			img.Metadata = map[string]any{}
		}
	}
	return &img, nil
}

// FormatFileTime renders t the way file_created_at is stored.
func FormatFileTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(fileTimeLayout)
}

// UpsertImage writes a single record. See WriteImages.
func (d *Database) UpsertImage(ctx context.Context, img *Image) error {
	return d.WriteImages(ctx, []*Image{img}, nil, img.LastSeenAt)
}

// WriteImages upserts records and marks unchanged paths as seen in one
// transaction. An upsert whose path already exists updates that row in
// place and keeps its UUID; each img is updated with the stored ID, UUID
// and CreatedAt. Writers to the same path are serialized. last_seen_at
// never moves backwards, so a slower scan cannot undo a newer one.
func (d *Database) WriteImages(ctx context.Context, upserts []*Image, touched []string, seenAt time.Time) (err error) {
	if len(upserts) == 0 && len(touched) == 0 {
		return nil
	}

	done := observeQuery("upsert_image")
	defer func() { done(err) }()

	// Lock in sorted order so overlapping batches cannot deadlock.
	keys := make([]string, 0, len(upserts)+len(touched))
	seen := make(map[string]bool, cap(keys))
	for _, img := range upserts {
		if !seen[img.Path] {
			seen[img.Path] = true
			keys = append(keys, img.Path)
		}
	}
	for _, p := range touched {
		if !seen[p] {
			seen[p] = true
			keys = append(keys, p)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		unlock := d.imageLocks.Lock(k)
		defer unlock()
	}

	batch, err := d.BeginBatch(ctx)
	if err != nil {
		return err
	}

	err = d.writeImagesTx(ctx, batch.tx, upserts, touched, seenAt)
	return d.EndBatch(batch, err)
}

func (d *Database) writeImagesTx(ctx context.Context, tx *sql.Tx, upserts []*Image, touched []string, seenAt time.Time) error {
	now := time.Now()

	if len(upserts) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO images (uuid, path, folder_id, size, mod_time, content_hash, format, width, height,
			metadata_json, thumbnail_key, file_created_at, created_at, updated_at, last_seen_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			folder_id = excluded.folder_id,
			size = excluded.size,
			mod_time = excluded.mod_time,
			content_hash = excluded.content_hash,
			format = excluded.format,
			width = excluded.width,
			height = excluded.height,
			metadata_json = excluded.metadata_json,
			thumbnail_key = excluded.thumbnail_key,
			file_created_at = excluded.file_created_at,
			updated_at = excluded.updated_at,
			last_seen_at = MAX(last_seen_at, excluded.last_seen_at)
		RETURNING id, uuid, created_at, last_seen_at
		`)
		if err != nil {
			return storeErr("prepare upsert", err)
		}
		defer stmt.Close()

		for _, img := range upserts {
			meta := img.Metadata
			if meta == nil {
				meta = map[string]any{}
			}
			metaJSON, err := json.Marshal(meta)
			if err != nil {
				return fmt.Errorf("encode metadata for %s: %w", img.Path, err)
			}

			var folderID sql.NullInt64
			if img.FolderID > 0 {
				folderID = sql.NullInt64{Int64: img.FolderID, Valid: true}
			}

			seen := img.LastSeenAt
			if seen.IsZero() {
				seen = seenAt
			}
			if seen.IsZero() {
				seen = now
			}

			var createdAt, lastSeen int64
			err = stmt.QueryRowContext(ctx,
				img.UUID, img.Path, folderID, img.Size, img.ModTime.UnixNano(), img.ContentHash,
				img.Format, img.Width, img.Height, string(metaJSON), img.ThumbnailKey,
				FormatFileTime(img.FileCreatedAt), now.Unix(), now.Unix(), seen.UnixNano(),
			).Scan(&img.ID, &img.UUID, &createdAt, &lastSeen)
			if err != nil {
				return storeErr("upsert image "+img.Path, err)
			}
			img.CreatedAt = time.Unix(createdAt, 0)
			img.UpdatedAt = time.Unix(now.Unix(), 0)
			img.LastSeenAt = time.Unix(0, lastSeen)
		}
		metrics.DBRowsAffected.WithLabelValues("upsert_image").Observe(float64(len(upserts)))
	}

	if len(touched) > 0 {
		if seenAt.IsZero() {
			seenAt = now
		}
		stmt, err := tx.PrepareContext(ctx, "UPDATE images SET last_seen_at = MAX(last_seen_at, ?) WHERE path = ?")
		if err != nil {
			return storeErr("prepare touch", err)
		}
		defer stmt.Close()

		for _, p := range touched {
			if _, err := stmt.ExecContext(ctx, seenAt.UnixNano(), p); err != nil {
				return storeErr("touch image "+p, err)
			}
		}
		metrics.DBRowsAffected.WithLabelValues("touch_images").Observe(float64(len(touched)))
	}

	return nil
}

// GetImageByUUID returns the record with the given uuid or errdefs.ErrNotFound.
func (d *Database) GetImageByUUID(ctx context.Context, id string) (img *Image, err error) {
	done := observeQuery("get_image")
	defer func() { done(err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	img, err = scanImage(d.db.QueryRowContext(ctx, "SELECT "+imageColumns+" FROM images WHERE uuid = ?", id))
	if err != nil {
		return nil, storeErr("image "+id, err)
	}
	return img, nil
}

// GetImageByPath returns the record for path or errdefs.ErrNotFound.
func (d *Database) GetImageByPath(ctx context.Context, path string) (img *Image, err error) {
	done := observeQuery("get_image")
	defer func() { done(err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	img, err = scanImage(d.db.QueryRowContext(ctx, "SELECT "+imageColumns+" FROM images WHERE path = ?", path))
	if err != nil {
		return nil, storeErr("image "+path, err)
	}
	return img, nil
}

// ListImages returns every record ordered by path.
func (d *Database) ListImages(ctx context.Context) (images []Image, err error) {
	done := observeQuery("list_images")
	defer func() { done(err) }()

	rows, err := d.db.QueryContext(ctx, "SELECT "+imageColumns+" FROM images ORDER BY path ASC")
	if err != nil {
		return nil, storeErr("list images", err)
	}
	defer rows.Close()

	images = []Image{}
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, storeErr("scan image", err)
		}
		images = append(images, *img)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list images", err)
	}
	return images, nil
}

// CountImages returns the number of records.
func (d *Database) CountImages(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var n int
	if err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM images").Scan(&n); err != nil {
		return 0, storeErr("count images", err)
	}
	return n, nil
}

// ThumbnailKeys returns the set of thumbnail keys referenced by records.
func (d *Database) ThumbnailKeys(ctx context.Context) (map[string]struct{}, error) {
	rows, err := d.db.QueryContext(ctx, "SELECT DISTINCT thumbnail_key FROM images WHERE thumbnail_key != ''")
	if err != nil {
		return nil, storeErr("thumbnail keys", err)
	}
	defer rows.Close()

	keys := make(map[string]struct{})
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, storeErr("thumbnail keys", err)
		}
		keys[k] = struct{}{}
	}
	return keys, storeErr("thumbnail keys", rows.Err())
}

// TouchImages marks paths as seen at seenAt.
func (d *Database) TouchImages(ctx context.Context, paths []string, seenAt time.Time) error {
	return d.WriteImages(ctx, nil, paths, seenAt)
}

// DeleteUnseen removes records belonging to any of folders whose
// last_seen_at is before cutoff, i.e. files that a completed scan of those
// folders did not find. A record belongs to a folder when it is attributed
// to the folder's id or its path lies under the folder's path. Returns the
// number of records removed.
func (d *Database) DeleteUnseen(ctx context.Context, folders []Folder, cutoff time.Time) (removed int64, err error) {
	done := observeQuery("delete_unseen")
	defer func() { done(err) }()

	if len(folders) == 0 {
		return 0, nil
	}

	batch, err := d.BeginBatch(ctx)
	if err != nil {
		return 0, err
	}

	for _, f := range folders {
		lo, hi := subtreeRange(f.Path)
		var res sql.Result
		res, err = batch.tx.ExecContext(ctx,
			"DELETE FROM images WHERE last_seen_at < ? AND ((path >= ? AND path < ?) OR folder_id = ?)",
			cutoff.UnixNano(), lo, hi, f.ID,
		)
		if err != nil {
			err = storeErr("delete unseen", err)
			break
		}
		n, _ := res.RowsAffected()
		removed += n
	}

	if err = d.EndBatch(batch, err); err != nil {
		return 0, err
	}
	if removed > 0 {
		metrics.DBRowsAffected.WithLabelValues("delete_unseen").Observe(float64(removed))
	}
	return removed, nil
}

// subtreeRange returns the half-open text range [lo, hi) containing every
// path strictly below root. '0' is the byte after the separator '/'.
func subtreeRange(root string) (lo, hi string) {
	root = filepath.Clean(root)
	sep := string(filepath.Separator)
	prefix := root
	if !strings.HasSuffix(prefix, sep) {
		prefix += sep
	}
	return prefix, prefix[:len(prefix)-1] + string(rune(filepath.Separator+1))
}
