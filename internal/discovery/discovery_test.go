package discovery

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"photo-indexer/internal/database"
)

// tempRoot returns a temp dir with symlinks resolved so that expected paths
// match what discovery reports.
func tempRoot(t *testing.T) string {
	t.Helper()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to resolve temp dir: %v", err)
	}
	return dir
}

func writeFiles(t *testing.T, root string, rel ...string) {
	t.Helper()
	for _, r := range rel {
		p := filepath.Join(root, filepath.FromSlash(r))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatalf("Failed to create dir for %s: %v", r, err)
		}
		if err := os.WriteFile(p, []byte(r), 0o644); err != nil {
			t.Fatalf("Failed to write %s: %v", r, err)
		}
	}
}

func paths(refs []FileRef) []string {
	out := make([]string, len(refs))
	for i, r := range refs {
		out[i] = r.Path
	}
	return out
}

func folder(id int64, path string) database.Folder {
	return database.Folder{ID: id, Path: path}
}

func TestDiscoverRespectsIgnoredFolders(t *testing.T) {
	root := tempRoot(t)
	writeFiles(t, root, "a.jpg", "sub/b.jpg", "sub/deeper/c.png", "other/d.gif")

	d := New(WithWorkers(2))
	refs, err := d.Discover(context.Background(),
		[]database.Folder{folder(1, root)},
		[]database.Folder{folder(1, filepath.Join(root, "sub"))},
	)
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}

	want := []string{filepath.Join(root, "a.jpg"), filepath.Join(root, "other", "d.gif")}
	if got := paths(refs); !reflect.DeepEqual(got, want) {
		t.Errorf("Discover() = %v, want %v", got, want)
	}
}

func TestDiscoverIgnoredRootYieldsNothing(t *testing.T) {
	root := tempRoot(t)
	writeFiles(t, root, "sub/b.jpg")
	sub := filepath.Join(root, "sub")

	refs, err := New().Discover(context.Background(),
		[]database.Folder{folder(1, sub)},
		[]database.Folder{folder(1, root)},
	)
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if len(refs) != 0 {
		t.Errorf("Expected no files under an ignored root, got %v", paths(refs))
	}
}

func TestDiscoverFiltersAndSkipsHidden(t *testing.T) {
	root := tempRoot(t)
	writeFiles(t, root,
		"UPPER.JPG", "mixed.Png", "photo.webp", "scan.TIF",
		"notes.txt", "movie.mp4", "noext",
		".hidden.jpg", ".cache/x.jpg",
	)

	refs, err := New().Discover(context.Background(), []database.Folder{folder(1, root)}, nil)
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}

	want := []string{
		filepath.Join(root, "UPPER.JPG"),
		filepath.Join(root, "mixed.Png"),
		filepath.Join(root, "photo.webp"),
		filepath.Join(root, "scan.TIF"),
	}
	if got := paths(refs); !reflect.DeepEqual(got, want) {
		t.Errorf("Discover() = %v, want %v", got, want)
	}
}

func TestDiscoverIsDeterministic(t *testing.T) {
	root := tempRoot(t)
	writeFiles(t, root, "z.jpg", "a/b/c.jpg", "a/a.jpg", "m/n.png", "m/a.gif")

	d := New(WithWorkers(4))
	watched := []database.Folder{folder(1, root)}

	first, err := d.Discover(context.Background(), watched, nil)
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	second, err := d.Discover(context.Background(), watched, nil)
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Errorf("Repeated discovery differs:\n%v\n%v", first, second)
	}
	for i := 1; i < len(first); i++ {
		if first[i-1].Path >= first[i].Path {
			t.Errorf("Output not sorted at %d: %s >= %s", i, first[i-1].Path, first[i].Path)
		}
	}
	for _, r := range first {
		if r.UUID != ImageUUID(r.Path) {
			t.Errorf("UUID for %s is not derived from its path", r.Path)
		}
		if r.Size == 0 || r.ModTime.IsZero() {
			t.Errorf("Missing stat data for %s", r.Path)
		}
	}
}

func TestDiscoverDeduplicatesOverlappingFolders(t *testing.T) {
	root := tempRoot(t)
	writeFiles(t, root, "a.jpg", "sub/b.jpg")
	sub := filepath.Join(root, "sub")

	refs, err := New().Discover(context.Background(),
		[]database.Folder{folder(1, root), folder(2, sub)}, nil)
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}

	if len(refs) != 2 {
		t.Fatalf("Expected 2 unique files, got %v", paths(refs))
	}
	for _, r := range refs {
		if r.FolderID != 1 {
			t.Errorf("Expected %s attributed to the first watched folder, got %d", r.Path, r.FolderID)
		}
	}
}

func TestDiscoverSymlinks(t *testing.T) {
	root := tempRoot(t)
	outside := tempRoot(t)
	writeFiles(t, root, "a.jpg", "sub/b.jpg")
	writeFiles(t, outside, "ext.png")

	links := map[string]string{
		filepath.Join(root, "sub", "loop"):  root,                               // cycle back to the root
		filepath.Join(root, "alias"):        filepath.Join(root, "sub"),         // second route to sub
		filepath.Join(root, "external"):     outside,                            // directory outside the root
		filepath.Join(root, "linked.jpg"):   filepath.Join(root, "a.jpg"),       // file alias
		filepath.Join(root, "dangling.jpg"): filepath.Join(root, "missing.jpg"), // broken
	}
	for link, target := range links {
		if err := os.Symlink(target, link); err != nil {
			t.Skipf("Symlinks not supported: %v", err)
		}
	}

	refs, err := New().Discover(context.Background(), []database.Folder{folder(1, root)}, nil)
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}

	want := []string{
		filepath.Join(root, "a.jpg"),
		filepath.Join(root, "sub", "b.jpg"),
		filepath.Join(outside, "ext.png"),
	}
	got := paths(refs)
	wantSet := map[string]bool{}
	for _, p := range want {
		wantSet[p] = true
	}
	if len(got) != len(want) {
		t.Fatalf("Discover() = %v, want %v (any order)", got, want)
	}
	for _, p := range got {
		if !wantSet[p] {
			t.Errorf("Unexpected path %s", p)
		}
	}
}

func TestDiscoverIgnoresThroughSymlink(t *testing.T) {
	root := tempRoot(t)
	writeFiles(t, root, "real/x.jpg", "keep.jpg")
	if err := os.Symlink(filepath.Join(root, "real"), filepath.Join(root, "alias")); err != nil {
		t.Skipf("Symlinks not supported: %v", err)
	}

	refs, err := New().Discover(context.Background(),
		[]database.Folder{folder(1, root)},
		[]database.Folder{folder(1, filepath.Join(root, "alias"))},
	)
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	want := []string{filepath.Join(root, "keep.jpg")}
	if got := paths(refs); !reflect.DeepEqual(got, want) {
		t.Errorf("Discover() = %v, want %v", got, want)
	}
}

func TestDiscoverSkipsFileLinkIntoIgnoredFolder(t *testing.T) {
	root := tempRoot(t)
	private := tempRoot(t)
	writeFiles(t, root, "keep.jpg")
	writeFiles(t, private, "secret.jpg")
	if err := os.Symlink(filepath.Join(private, "secret.jpg"), filepath.Join(root, "link.jpg")); err != nil {
		t.Skipf("Symlinks not supported: %v", err)
	}
	if err := os.Symlink(filepath.Join(root, "keep.jpg"), filepath.Join(root, "alias.jpg")); err != nil {
		t.Fatalf("Failed to create link: %v", err)
	}

	tests := []struct {
		name    string
		ignored []database.Folder
		want    []string
	}{
		{
			name:    "target ignored",
			ignored: []database.Folder{folder(2, private)},
			want:    []string{filepath.Join(root, "keep.jpg")},
		},
		{
			name:    "nothing ignored",
			ignored: nil,
			want:    []string{filepath.Join(root, "keep.jpg"), filepath.Join(private, "secret.jpg")},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			refs, err := New().Discover(context.Background(),
				[]database.Folder{folder(1, root)}, tt.ignored)
			if err != nil {
				t.Fatalf("Discover failed: %v", err)
			}
			if got := paths(refs); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Discover() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDiscoverPartialFailure(t *testing.T) {
	root := tempRoot(t)
	writeFiles(t, root, "a.jpg")
	missing := filepath.Join(root, "gone")

	refs, err := New().Discover(context.Background(),
		[]database.Folder{folder(1, missing), folder(2, root)}, nil)
	if err != nil {
		t.Fatalf("Expected partial failure to be tolerated, got %v", err)
	}
	if len(refs) != 1 {
		t.Errorf("Expected 1 file from the readable folder, got %v", paths(refs))
	}

	_, err = New().Discover(context.Background(), []database.Folder{folder(1, missing)}, nil)
	if !errors.Is(err, ErrNoReadableFolders) {
		t.Errorf("Expected ErrNoReadableFolders, got %v", err)
	}
}

func TestDiscoverUnreadableSubdirectory(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("Permission checks do not apply to root")
	}
	root := tempRoot(t)
	writeFiles(t, root, "a.jpg", "locked/b.jpg")
	locked := filepath.Join(root, "locked")
	if err := os.Chmod(locked, 0o000); err != nil {
		t.Fatalf("Failed to chmod: %v", err)
	}
	t.Cleanup(func() { _ = os.Chmod(locked, 0o755) })

	refs, err := New().Discover(context.Background(), []database.Folder{folder(1, root)}, nil)
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	want := []string{filepath.Join(root, "a.jpg")}
	if got := paths(refs); !reflect.DeepEqual(got, want) {
		t.Errorf("Discover() = %v, want %v", got, want)
	}
}

func TestDiscoverNoFolders(t *testing.T) {
	refs, err := New().Discover(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if len(refs) != 0 {
		t.Errorf("Expected empty result, got %v", refs)
	}
}

func TestDiscoverCancelled(t *testing.T) {
	root := tempRoot(t)
	writeFiles(t, root, "a.jpg")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := New().Discover(ctx, []database.Folder{folder(1, root)}, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestIgnoreSetContains(t *testing.T) {
	s := ignoreSet{"/photos/sub"}
	tests := []struct {
		path string
		want bool
	}{
		{"/photos/sub", true},
		{"/photos/sub/", true},
		{"/photos/sub/x/y.jpg", true},
		{"/photos/subway", false},
		{"/photos", false},
	}
	for _, tt := range tests {
		if got := s.contains(tt.path); got != tt.want {
			t.Errorf("contains(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}

	if !(ignoreSet{"/"}).contains("/anything") {
		t.Error("Root ignore should contain every path")
	}
}
