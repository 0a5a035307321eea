package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"photo-indexer/internal/database"
	"photo-indexer/internal/errdefs"
)

func setupRegistry(t *testing.T) *Registry {
	t.Helper()
	db, err := database.New(context.Background(), filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return New(db)
}

func TestAddFolder(t *testing.T) {
	ctx := context.Background()
	r := setupRegistry(t)
	dir := t.TempDir()

	f, err := r.AddFolder(ctx, dir)
	if err != nil {
		t.Fatalf("AddFolder failed: %v", err)
	}
	want, _ := filepath.EvalSymlinks(dir)
	if f.Path != want {
		t.Errorf("Expected normalized path %q, got %q", want, f.Path)
	}

	has, err := r.HasFolders(ctx)
	if err != nil || !has {
		t.Errorf("Expected HasFolders to be true, got %v (%v)", has, err)
	}
}

func TestAddFolderDuplicate(t *testing.T) {
	ctx := context.Background()
	r := setupRegistry(t)
	dir := t.TempDir()

	if _, err := r.AddFolder(ctx, dir); err != nil {
		t.Fatalf("AddFolder failed: %v", err)
	}

	// Same directory spelled differently still collides after normalization.
	_, err := r.AddFolder(ctx, dir+string(filepath.Separator)+".")
	if !errors.Is(err, errdefs.ErrDuplicatePath) {
		t.Fatalf("Expected ErrDuplicatePath, got %v", err)
	}

	folders, err := r.Folders(ctx)
	if err != nil {
		t.Fatalf("Folders failed: %v", err)
	}
	if len(folders) != 1 {
		t.Errorf("Expected watched set size 1, got %d", len(folders))
	}
}

func TestAddFolderInvalidPath(t *testing.T) {
	ctx := context.Background()
	r := setupRegistry(t)
	dir := t.TempDir()

	file := filepath.Join(dir, "a.jpg")
	if err := os.WriteFile(file, []byte("x"), 0o600); err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}

	tests := []struct {
		name string
		path string
	}{
		{"missing", filepath.Join(dir, "missing")},
		{"regular file", file},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := r.AddFolder(ctx, tt.path); !errors.Is(err, errdefs.ErrInvalidPath) {
				t.Errorf("Expected ErrInvalidPath, got %v", err)
			}
			if _, err := r.AddIgnoreFolder(ctx, tt.path); !errors.Is(err, errdefs.ErrInvalidPath) {
				t.Errorf("Expected ErrInvalidPath for ignore set, got %v", err)
			}
		})
	}

	has, _ := r.HasFolders(ctx)
	if has {
		t.Error("No folder should have been registered")
	}
}

func TestDeleteFolders(t *testing.T) {
	ctx := context.Background()
	r := setupRegistry(t)

	f, err := r.AddIgnoreFolder(ctx, t.TempDir())
	if err != nil {
		t.Fatalf("AddIgnoreFolder failed: %v", err)
	}
	if err := r.DeleteIgnoreFolder(ctx, f.ID); err != nil {
		t.Fatalf("DeleteIgnoreFolder failed: %v", err)
	}
	if err := r.DeleteIgnoreFolder(ctx, f.ID); !errors.Is(err, errdefs.ErrNotFound) {
		t.Errorf("Expected ErrNotFound on repeat delete, got %v", err)
	}
	if err := r.DeleteFolder(ctx, 42); !errors.Is(err, errdefs.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown id, got %v", err)
	}
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	r := setupRegistry(t)

	a, err := r.AddFolder(ctx, t.TempDir())
	if err != nil {
		t.Fatalf("AddFolder failed: %v", err)
	}
	b, err := r.AddFolder(ctx, t.TempDir())
	if err != nil {
		t.Fatalf("AddFolder failed: %v", err)
	}

	all, err := r.Resolve(ctx, nil)
	if err != nil || len(all) != 2 {
		t.Fatalf("Expected both folders for empty request, got %v (%v)", all, err)
	}

	one, err := r.Resolve(ctx, []string{b.Path, b.Path})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if len(one) != 1 || one[0].ID != b.ID {
		t.Errorf("Expected only folder %d, got %v", b.ID, one)
	}

	if _, err := r.Resolve(ctx, []string{a.Path, t.TempDir()}); !errors.Is(err, errdefs.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unwatched folder, got %v", err)
	}
}
