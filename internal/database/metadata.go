package database

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

const lastScanKey = "last_scan_completed"

// GetMetadata retrieves a metadata value by key.
// Returns sql.ErrNoRows if the key doesn't exist.
func (d *Database) GetMetadata(ctx context.Context, key string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var value string
	err := d.db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", sql.ErrNoRows
	}
	if err != nil {
		return "", storeErr("get metadata", err)
	}
	return value, nil
}

// SetMetadata sets a metadata key-value pair.
func (d *Database) SetMetadata(ctx context.Context, key, value string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := d.db.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return storeErr("set metadata", err)
}

// GetLastScan returns when the last scan completed, or the zero time.
func (d *Database) GetLastScan(ctx context.Context) (time.Time, error) {
	value, err := d.GetMetadata(ctx, lastScanKey)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, value)
}

// SetLastScan records when a scan completed.
func (d *Database) SetLastScan(ctx context.Context, t time.Time) error {
	if t.IsZero() {
		return d.SetMetadata(ctx, lastScanKey, "")
	}
	return d.SetMetadata(ctx, lastScanKey, t.UTC().Format(time.RFC3339))
}

// GetStats counts images and folders.
func (d *Database) GetStats(ctx context.Context) (Stats, error) {
	var s Stats
	var err error
	if s.Images, err = d.CountImages(ctx); err != nil {
		return s, err
	}
	if s.Folders, err = d.CountFolders(ctx, WatchedFolders); err != nil {
		return s, err
	}
	if s.IgnoreFolders, err = d.CountFolders(ctx, IgnoredFolders); err != nil {
		return s, err
	}
	return s, nil
}
