package main

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"photo-indexer/internal/errdefs"
	"photo-indexer/internal/events"
	"photo-indexer/internal/library"
)

func openLibrary(t *testing.T) *library.Service {
	t.Helper()
	lib, err := library.Open(context.Background(), library.Options{DataDir: t.TempDir(), ThumbnailSize: 32})
	if err != nil {
		t.Fatalf("Failed to open library: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lib.Close(ctx); err != nil {
			t.Errorf("Failed to close library: %v", err)
		}
	})
	return lib
}

func runCmd(t *testing.T, lib *library.Service, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(context.Background(), lib, args, &out)
	return out.String(), err
}

func writePNG(t *testing.T, path string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, image.NewGray(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatalf("Failed to encode %s: %v", path, err)
	}
}

func TestPrintUsage(t *testing.T) {
	var buf bytes.Buffer
	printUsage(&buf)
	for _, want := range []string{"folders", "ignore", "scan", "search", "status", "DATA_DIR"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("Usage does not mention %q", want)
		}
	}
}

func TestUsageErrors(t *testing.T) {
	lib := openLibrary(t)

	tests := [][]string{
		{},
		{"bogus"},
		{"folders"},
		{"folders", "add"},
		{"folders", "rm", "abc"},
		{"ignore", "explode"},
		{"search", "format", "EQ"},
	}
	for _, args := range tests {
		t.Run(strings.Join(args, " "), func(t *testing.T) {
			if _, err := runCmd(t, lib, args...); !errors.Is(err, errUsage) {
				t.Errorf("Expected usage error, got %v", err)
			}
		})
	}
}

func TestFolderCommands(t *testing.T) {
	lib := openLibrary(t)
	dir := t.TempDir()

	out, err := runCmd(t, lib, "folders", "add", dir)
	if err != nil {
		t.Fatalf("Failed to add folder: %v", err)
	}
	if !strings.Contains(out, "Added") {
		t.Errorf("Unexpected output: %q", out)
	}

	if _, err := runCmd(t, lib, "folders", "add", dir); !errors.Is(err, errdefs.ErrDuplicatePath) {
		t.Errorf("Expected duplicate error, got %v", err)
	}

	out, err = runCmd(t, lib, "folders", "list")
	if err != nil {
		t.Fatalf("Failed to list folders: %v", err)
	}
	resolved, _ := filepath.EvalSymlinks(dir)
	if !strings.Contains(out, resolved) {
		t.Errorf("Expected %s in listing, got %q", resolved, out)
	}

	folders, err := lib.Folders(context.Background())
	if err != nil || len(folders) != 1 {
		t.Fatalf("Expected 1 folder, got %d (%v)", len(folders), err)
	}
	if _, err := runCmd(t, lib, "folders", "rm", "99"); !errors.Is(err, errdefs.ErrNotFound) {
		t.Errorf("Expected not found, got %v", err)
	}
	if _, err := runCmd(t, lib, "ignore", "add", dir); err != nil {
		t.Errorf("Failed to add ignored folder: %v", err)
	}
}

func TestScanSearchStatus(t *testing.T) {
	lib := openLibrary(t)
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "one.png"))
	writePNG(t, filepath.Join(dir, "two.png"))

	if _, err := runCmd(t, lib, "folders", "add", dir); err != nil {
		t.Fatalf("Failed to add folder: %v", err)
	}

	out, err := runCmd(t, lib, "scan")
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if !strings.Contains(out, "Indexed 2") {
		t.Errorf("Expected 2 indexed files, got %q", out)
	}

	out, err = runCmd(t, lib, "search", "file_path", "LIKE", "two")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if !strings.Contains(out, "two.png") || !strings.Contains(out, "1 results") {
		t.Errorf("Unexpected search output: %q", out)
	}

	if _, err := runCmd(t, lib, "search", "nope", "EQ", "x"); !errors.Is(err, errdefs.ErrInvalidQuery) {
		t.Errorf("Expected invalid query, got %v", err)
	}

	out, err = runCmd(t, lib, "status")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if !strings.Contains(out, "Images:          2") || strings.Contains(out, "never") {
		t.Errorf("Unexpected status output: %q", out)
	}
}

func TestSanitizeCommand(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"scan", "scan"},
		{"folders-list", "folders-list"},
		{"rm -rf /", "rm_-rf__"},
		{"\x1b[31mred", "__31mred"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := sanitizeCommand(tt.input); got != tt.want {
			t.Errorf("sanitizeCommand(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestRenderBar(t *testing.T) {
	tests := []struct {
		name string
		ev   events.Event
		want string
	}{
		{"empty", events.Event{Percent: 0}, "[..........]   0.0%"},
		{"half", events.Event{Percent: 50}, "[#####.....]  50.0%"},
		{"full", events.Event{Percent: 100}, "[##########] 100.0%"},
		{"clamped", events.Event{Percent: 140}, "[##########] 100.0%"},
		{"indeterminate", events.Event{Indeterminate: true}, "[??????????]    ?  "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := renderBar(tt.ev, 10); got != tt.want {
				t.Errorf("renderBar() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestProgressLinesWithoutTerminal(t *testing.T) {
	var buf bytes.Buffer
	p := newProgress(&buf)
	p.update(events.Event{Message: "Discovering files", Indeterminate: true})
	p.update(events.Event{Message: "Discovering files", Indeterminate: true})
	p.update(events.Event{Message: "Found 3 files", Percent: 0})
	p.done()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected 2 lines, got %q", lines)
	}
}
