package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"photo-indexer/internal/errdefs"
)

// InsertFolder adds path to the given set. The path must already be
// normalized by the caller. A second insert of the same path fails with
// errdefs.ErrDuplicatePath.
func (d *Database) InsertFolder(ctx context.Context, set FolderSet, path string) (f *Folder, err error) {
	done := observeQuery("insert_folder")
	defer func() { done(err) }()

	if !set.Valid() {
		return nil, fmt.Errorf("unknown folder set %q", set)
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	id := uuid.NewString()
	now := time.Now()

	// Table name comes from the closed FolderSet enum, never from input.
	res, err := d.db.ExecContext(ctx,
		"INSERT INTO "+string(set)+" (path, uuid, created_at) VALUES (?, ?, ?)",
		path, id, now.Unix(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%s: %w", path, errdefs.ErrDuplicatePath)
		}
		return nil, storeErr("insert folder", err)
	}

	rowID, err := res.LastInsertId()
	if err != nil {
		return nil, storeErr("insert folder", err)
	}

	return &Folder{ID: rowID, Path: path, UUID: id, CreatedAt: time.Unix(now.Unix(), 0)}, nil
}

// ListFolders returns the set in insertion order.
func (d *Database) ListFolders(ctx context.Context, set FolderSet) (folders []Folder, err error) {
	done := observeQuery("list_folders")
	defer func() { done(err) }()

	if !set.Valid() {
		return nil, fmt.Errorf("unknown folder set %q", set)
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx,
		"SELECT id, path, uuid, created_at FROM "+string(set)+" ORDER BY id ASC")
	if err != nil {
		return nil, storeErr("list folders", err)
	}
	defer rows.Close()

	folders = []Folder{}
	for rows.Next() {
		var f Folder
		var createdAt int64
		if err := rows.Scan(&f.ID, &f.Path, &f.UUID, &createdAt); err != nil {
			return nil, storeErr("scan folder", err)
		}
		f.CreatedAt = time.Unix(createdAt, 0)
		folders = append(folders, f)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list folders", err)
	}
	return folders, nil
}

// GetFolder returns a folder by id.
func (d *Database) GetFolder(ctx context.Context, set FolderSet, id int64) (f *Folder, err error) {
	if !set.Valid() {
		return nil, fmt.Errorf("unknown folder set %q", set)
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var folder Folder
	var createdAt int64
	err = d.db.QueryRowContext(ctx,
		"SELECT id, path, uuid, created_at FROM "+string(set)+" WHERE id = ?", id,
	).Scan(&folder.ID, &folder.Path, &folder.UUID, &createdAt)
	if err != nil {
		return nil, storeErr(fmt.Sprintf("folder %d", id), err)
	}
	folder.CreatedAt = time.Unix(createdAt, 0)
	return &folder, nil
}

// DeleteFolder removes a folder by id. Deleting a watched folder also
// removes the image records attributed to it (ON DELETE CASCADE).
// An absent id fails with errdefs.ErrNotFound.
func (d *Database) DeleteFolder(ctx context.Context, set FolderSet, id int64) (err error) {
	done := observeQuery("delete_folder")
	defer func() { done(err) }()

	if !set.Valid() {
		return fmt.Errorf("unknown folder set %q", set)
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := d.db.ExecContext(ctx, "DELETE FROM "+string(set)+" WHERE id = ?", id)
	if err != nil {
		return storeErr("delete folder", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return storeErr("delete folder", err)
	}
	if n == 0 {
		return fmt.Errorf("folder %d: %w", id, errdefs.ErrNotFound)
	}
	return nil
}

// CountFolders returns the number of folders in the set.
func (d *Database) CountFolders(ctx context.Context, set FolderSet) (int, error) {
	if !set.Valid() {
		return 0, fmt.Errorf("unknown folder set %q", set)
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var n int
	if err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+string(set)).Scan(&n); err != nil {
		return 0, storeErr("count folders", err)
	}
	return n, nil
}
