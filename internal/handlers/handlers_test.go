package handlers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"photo-indexer/internal/database"
	"photo-indexer/internal/library"
)

type testServer struct {
	*httptest.Server
	lib *library.Service
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	lib, err := library.Open(context.Background(), library.Options{DataDir: t.TempDir(), ThumbnailSize: 32})
	if err != nil {
		t.Fatalf("Failed to open library: %v", err)
	}
	srv := httptest.NewServer(New(lib).Router())
	t.Cleanup(func() {
		srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lib.Close(ctx); err != nil {
			t.Errorf("Failed to close library: %v", err)
		}
	})
	return &testServer{Server: srv, lib: lib}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal body: %v", err)
		}
		rd = bytes.NewReader(data)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, s.URL+path, rd)
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.Client().Do(req)
	if err != nil {
		t.Fatalf("Failed to %s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return v
}

func writePNG(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}
	img := image.NewRGBA(image.Rect(0, 0, 8, 6))
	img.Set(1, 1, color.RGBA{G: 200, A: 255})
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("Failed to encode %s: %v", path, err)
	}
}

func TestFolderLifecycle(t *testing.T) {
	s := newTestServer(t)
	dir := t.TempDir()

	state := decode[map[string]bool](t, s.do(t, http.MethodGet, "/api/setup-state", nil))
	if state["configured"] {
		t.Error("Expected unconfigured library")
	}

	resp := s.do(t, http.MethodPost, "/api/folders", map[string]string{"path": dir})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", resp.StatusCode)
	}
	folder := decode[database.Folder](t, resp)

	if resp := s.do(t, http.MethodPost, "/api/folders", map[string]string{"path": dir}); resp.StatusCode != http.StatusConflict {
		t.Errorf("Expected 409 for duplicate folder, got %d", resp.StatusCode)
	}
	if resp := s.do(t, http.MethodPost, "/api/folders", map[string]string{"path": "relative/dir"}); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for relative path, got %d", resp.StatusCode)
	}

	folders := decode[[]database.Folder](t, s.do(t, http.MethodGet, "/api/folders", nil))
	if len(folders) != 1 || folders[0].ID != folder.ID {
		t.Fatalf("Expected the added folder, got %+v", folders)
	}

	path := "/api/folders/" + strconv.FormatInt(folder.ID, 10)
	if resp := s.do(t, http.MethodDelete, path, nil); resp.StatusCode != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", resp.StatusCode)
	}
	if resp := s.do(t, http.MethodDelete, path, nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 on second delete, got %d", resp.StatusCode)
	}
}

func TestIgnoreFolders(t *testing.T) {
	s := newTestServer(t)
	dir := t.TempDir()

	resp := s.do(t, http.MethodPost, "/api/ignore-folders", map[string]string{"path": dir})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", resp.StatusCode)
	}
	ignored := decode[[]database.Folder](t, s.do(t, http.MethodGet, "/api/ignore-folders", nil))
	if len(ignored) != 1 {
		t.Fatalf("Expected 1 ignored folder, got %d", len(ignored))
	}
}

func TestScanAndQuery(t *testing.T) {
	s := newTestServer(t)
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "a.png"))
	writePNG(t, filepath.Join(dir, "sub", "b.png"))

	if resp := s.do(t, http.MethodPost, "/api/folders", map[string]string{"path": dir}); resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", resp.StatusCode)
	}

	resp := s.do(t, http.MethodPost, "/api/scans", map[string]any{})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d", resp.StatusCode)
	}
	token := decode[map[string]string](t, resp)["token"]
	if token == "" {
		t.Fatal("Expected a scan token")
	}

	last := readEvents(t, s, token)
	if last["kind"] != "completed" {
		t.Fatalf("Expected completed event, got %v", last)
	}

	files := decode[[]fileEntry](t, s.do(t, http.MethodGet, "/api/files", nil))
	if len(files) != 2 {
		t.Fatalf("Expected 2 files, got %d", len(files))
	}

	results := decode[[]database.Image](t, s.do(t, http.MethodPost, "/api/search", []database.Condition{
		{Field: "file_path", Operator: "LIKE", Value: "sub"},
	}))
	if len(results) != 1 || !strings.HasSuffix(results[0].Path, "b.png") {
		t.Fatalf("Expected only b.png, got %+v", results)
	}

	resp = s.do(t, http.MethodGet, "/api/images/"+results[0].UUID+"/metadata?path="+url.QueryEscape(results[0].Path), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	view := decode[library.MetadataView](t, resp)
	if !strings.HasPrefix(view.DataURL, "data:image/png;base64,") {
		t.Errorf("Unexpected data URL prefix: %.40s", view.DataURL)
	}

	thumbs := decode[[]library.Thumbnail](t, s.do(t, http.MethodPost, "/api/thumbnails", files))
	if len(thumbs) != 2 {
		t.Fatalf("Expected 2 thumbnails, got %d", len(thumbs))
	}
	for _, th := range thumbs {
		if th.DataURL == "" {
			t.Errorf("Missing thumbnail for %s", th.Path)
		}
	}

	chunk := decode[library.Chunk](t, s.do(t, http.MethodGet, "/api/thumbnails?offset=1&limit=5", nil))
	if chunk.Total != 2 || len(chunk.Items) != 1 {
		t.Errorf("Expected total 2 with 1 item, got total %d with %d", chunk.Total, len(chunk.Items))
	}

	if resp := s.do(t, http.MethodGet, "/api/scans/"+token, nil); resp.StatusCode != http.StatusOK {
		t.Errorf("Expected finished scan to still be visible, got %d", resp.StatusCode)
	}
}

// readEvents follows the SSE stream of token and returns the last event.
func readEvents(t *testing.T, s *testServer, token string) map[string]any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL+"/api/scans/"+token+"/events", nil)
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	resp, err := s.Client().Do(req)
	if err != nil {
		t.Fatalf("Failed to open event stream: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("Expected text/event-stream, got %q", ct)
	}

	var last map[string]any
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		data, ok := strings.CutPrefix(sc.Text(), "data: ")
		if !ok {
			continue
		}
		last = nil
		if err := json.Unmarshal([]byte(data), &last); err != nil {
			t.Fatalf("Failed to decode event %q: %v", data, err)
		}
	}
	if last == nil {
		t.Fatal("Event stream carried no events")
	}
	return last
}

func TestErrorStatuses(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"unknown scan", http.MethodGet, "/api/scans/nope", nil, http.StatusNotFound},
		{"unknown scan events", http.MethodGet, "/api/scans/nope/events", nil, http.StatusNotFound},
		{"cancel unknown scan", http.MethodPost, "/api/scans/nope/cancel", nil, http.StatusNotFound},
		{"unknown image", http.MethodGet, "/api/images/nope/metadata", nil, http.StatusNotFound},
		{"negative offset", http.MethodGet, "/api/thumbnails?offset=-1", nil, http.StatusBadRequest},
		{"zero limit", http.MethodGet, "/api/thumbnails?limit=0", nil, http.StatusBadRequest},
		{"non-numeric limit", http.MethodGet, "/api/thumbnails?limit=x", nil, http.StatusBadRequest},
		{"bad operator", http.MethodPost, "/api/search", []database.Condition{{Field: "format", Operator: "NEAR", Value: "png"}}, http.StatusBadRequest},
		{"bad field", http.MethodPost, "/api/search", []database.Condition{{Field: "nope", Operator: "EQ", Value: "x"}}, http.StatusBadRequest},
		{"bad language", http.MethodPut, "/api/config", map[string]any{"feature_flags": map[string]any{"language": "xx"}}, http.StatusBadRequest},
		{"unknown config field", http.MethodPut, "/api/config", map[string]any{"bogus": true}, http.StatusBadRequest},
		{"unknown folder scan", http.MethodPost, "/api/scans", map[string]any{"folders": []string{"/no/such/folder"}}, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := s.do(t, tt.method, tt.path, tt.body)
			if resp.StatusCode != tt.want {
				t.Fatalf("Expected %d, got %d", tt.want, resp.StatusCode)
			}
			body := decode[map[string]string](t, resp)
			if body["error"] == "" {
				t.Error("Expected an error message")
			}
		})
	}
}

func TestConfigRoundTrip(t *testing.T) {
	s := newTestServer(t)

	body := map[string]any{"feature_flags": map[string]any{"update_db_when_startup": true, "language": "en"}}
	resp := s.do(t, http.MethodPut, "/api/config", body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	got := decode[map[string]map[string]any](t, s.do(t, http.MethodGet, "/api/config", nil))
	flags := got["feature_flags"]
	if flags["language"] != "en" || flags["update_db_when_startup"] != true {
		t.Errorf("Unexpected config: %v", got)
	}
}

func TestSearchEmptyBody(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodPost, "/api/search", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if got := decode[[]database.Image](t, resp); len(got) != 0 {
		t.Errorf("Expected no results, got %d", len(got))
	}
}
