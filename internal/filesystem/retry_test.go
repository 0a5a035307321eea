package filesystem

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"
)

type recordingObserver struct {
	mu  sync.Mutex
	ops []Op
}

func (r *recordingObserver) Observe(op Op) {
	r.mu.Lock()
	r.ops = append(r.ops, op)
	r.mu.Unlock()
}

func (r *recordingObserver) last(t *testing.T) Op {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.ops) != 1 {
		t.Fatalf("Expected exactly one reported op, got %d", len(r.ops))
	}
	return r.ops[0]
}

func withObserver(t *testing.T, o Observer) {
	t.Helper()
	SetObserver(o)
	t.Cleanup(func() { SetObserver(nil) })
}

func fastRetryConfig() RetryConfig {
	return RetryConfig{MaxRetries: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
}

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()

	if config.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", config.MaxRetries)
	}
	if config.InitialBackoff != 50*time.Millisecond {
		t.Errorf("InitialBackoff = %v, want 50ms", config.InitialBackoff)
	}
	if config.MaxBackoff != 500*time.Millisecond {
		t.Errorf("MaxBackoff = %v, want 500ms", config.MaxBackoff)
	}
}

func TestIsNFSStaleError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error", nil, false},
		{"ESTALE error", syscall.ESTALE, true},
		{"wrapped ESTALE", &os.PathError{Op: "stat", Path: "/x", Err: syscall.ESTALE}, true},
		{"ENOENT error", syscall.ENOENT, false},
		{"generic error", os.ErrNotExist, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isNFSStaleError(tt.err); got != tt.want {
				t.Errorf("isNFSStaleError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVolumeResolver_Resolve(t *testing.T) {
	vr := NewVolumeResolver(map[string]string{
		"library": "/photos",
		"nested":  "/photos/archive",
		"data":    "/var/lib/photo-indexer",
	})

	tests := []struct {
		path string
		want string
	}{
		{"/photos/a.jpg", "library"},
		{"/photos", "library"},
		{"/photos/archive/2020/b.png", "nested"},
		{"/photosx/a.jpg", "unknown"},
		{"/var/lib/photo-indexer/thumbnails/ab/abc.png", "data"},
		{"/etc/passwd", "unknown"},
	}

	for _, tt := range tests {
		if got := vr.Resolve(tt.path); got != tt.want {
			t.Errorf("Resolve(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}

	var nilResolver *VolumeResolver
	if got := nilResolver.Resolve("/photos/a.jpg"); got != "unknown" {
		t.Errorf("nil resolver should return unknown, got %q", got)
	}
}

func TestRetryConfig_ResolveVolume_FallsBackToDefault(t *testing.T) {
	prev := DefaultVolumeResolver()
	defer SetDefaultVolumeResolver(prev)

	SetDefaultVolumeResolver(NewVolumeResolver(map[string]string{"library": "/photos"}))
	config := DefaultRetryConfig()
	if got := config.resolveVolume("/photos/x.jpg"); got != "library" {
		t.Errorf("Expected default resolver to be used, got %q", got)
	}

	config.VolumeResolver = NewVolumeResolver(map[string]string{"other": "/photos"})
	if got := config.resolveVolume("/photos/x.jpg"); got != "other" {
		t.Errorf("Expected config resolver to win, got %q", got)
	}
}

func TestStatWithRetry_Success(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.jpg")
	if err := os.WriteFile(path, []byte("data"), 0o600); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	info, err := StatWithRetry(path, DefaultRetryConfig())
	if err != nil {
		t.Fatalf("StatWithRetry failed: %v", err)
	}
	if info.Size() != 4 {
		t.Errorf("Expected size 4, got %d", info.Size())
	}
}

func TestStatWithRetry_NotExistFailsFast(t *testing.T) {
	obs := &recordingObserver{}
	withObserver(t, obs)

	start := time.Now()
	_, err := StatWithRetry(filepath.Join(t.TempDir(), "missing"), DefaultRetryConfig())
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Expected ErrNotExist, got %v", err)
	}
	if time.Since(start) > 40*time.Millisecond {
		t.Error("Non-ESTALE errors must not be retried")
	}
	if op := obs.last(t); op.Retried() || op.Name != "stat" || op.Err == nil {
		t.Errorf("Unexpected op: %+v", op)
	}
}

func TestOpenAndReadDirWithRetry(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "b.png"), []byte("x"), 0o600); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	entries, err := ReadDirWithRetry(dir, DefaultRetryConfig())
	if err != nil {
		t.Fatalf("ReadDirWithRetry failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "b.png" {
		t.Errorf("Unexpected entries: %v", entries)
	}

	f, err := OpenWithRetry(filepath.Join(dir, "b.png"), DefaultRetryConfig())
	if err != nil {
		t.Fatalf("OpenWithRetry failed: %v", err)
	}
	_ = f.Close()

	data, err := ReadFileWithRetry(filepath.Join(dir, "b.png"), DefaultRetryConfig())
	if err != nil || string(data) != "x" {
		t.Errorf("ReadFileWithRetry = %q, %v", data, err)
	}
}

func TestWithRetry_RecoversFromStale(t *testing.T) {
	obs := &recordingObserver{}
	withObserver(t, obs)

	calls := 0
	got, err := withRetry("stat", "/photos/a.jpg", fastRetryConfig(), func() (int, error) {
		calls++
		if calls < 3 {
			return 0, syscall.ESTALE
		}
		return 7, nil
	})
	if err != nil {
		t.Fatalf("Expected success after retries, got %v", err)
	}
	if got != 7 || calls != 3 {
		t.Errorf("Expected value 7 after 3 calls, got %d after %d", got, calls)
	}
	op := obs.last(t)
	if op.StaleErrors != 2 || op.Attempts != 3 || op.Err != nil {
		t.Errorf("Unexpected op: %+v", op)
	}
}

func TestWithRetry_ExhaustsRetries(t *testing.T) {
	obs := &recordingObserver{}
	withObserver(t, obs)

	calls := 0
	_, err := withRetry("open", "/photos/a.jpg", fastRetryConfig(), func() (struct{}, error) {
		calls++
		return struct{}{}, syscall.ESTALE
	})
	if !errors.Is(err, syscall.ESTALE) {
		t.Fatalf("Expected ESTALE, got %v", err)
	}
	if calls != 4 {
		t.Errorf("Expected 4 calls (1 + 3 retries), got %d", calls)
	}
	op := obs.last(t)
	if op.Attempts != 4 || op.StaleErrors != 4 || !errors.Is(op.Err, syscall.ESTALE) {
		t.Errorf("Unexpected op: %+v", op)
	}
}
