package metadata

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zlib"

	"photo-indexer/internal/errdefs"
	"photo-indexer/internal/mediatypes"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: uint8(x), A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("Failed to encode PNG: %v", err)
	}
	return buf.Bytes()
}

func chunk(typ string, data []byte) []byte {
	var b bytes.Buffer
	_ = binary.Write(&b, binary.BigEndian, uint32(len(data)))
	b.WriteString(typ)
	b.Write(data)
	crc := crc32.NewIEEE()
	crc.Write([]byte(typ))
	crc.Write(data)
	_ = binary.Write(&b, binary.BigEndian, crc.Sum32())
	return b.Bytes()
}

func tEXt(key, text string) []byte {
	return chunk("tEXt", append([]byte(key+"\x00"), text...))
}

func zTXt(t *testing.T, key, text string) []byte {
	t.Helper()
	var z bytes.Buffer
	zw := zlib.NewWriter(&z)
	if _, err := zw.Write([]byte(text)); err != nil {
		t.Fatalf("Failed to compress: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("Failed to compress: %v", err)
	}
	data := append([]byte(key+"\x00\x00"), z.Bytes()...)
	return chunk("zTXt", data)
}

func iTXt(key, text string) []byte {
	return chunk("iTXt", append([]byte(key+"\x00\x00\x00en\x00\x00"), text...))
}

// withChunks inserts extra chunks right after IHDR.
func withChunks(pngData []byte, chunks ...[]byte) []byte {
	const ihdrEnd = 8 + 8 + 13 + 4
	out := append([]byte{}, pngData[:ihdrEnd]...)
	for _, c := range chunks {
		out = append(out, c...)
	}
	return append(out, pngData[ihdrEnd:]...)
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, data, 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return p
}

func TestExtractPNGText(t *testing.T) {
	description := `{"world":{"name":"Home"},"players":[{"displayName":"alice"},{"displayName":"bob"}]}`
	data := withChunks(encodePNG(t, 40, 30),
		iTXt(DescriptionKey, description),
		tEXt("Software", "VRChat"),
		zTXt(t, "Comment", "caf\xe9"),
	)
	path := writeFile(t, "shot.png", data)

	e := New(Options{})
	defer e.Close()

	rec, err := e.Extract(context.Background(), path)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if rec.Format != mediatypes.FormatPNG || rec.Width != 40 || rec.Height != 30 {
		t.Errorf("Unexpected image facts: %s %dx%d", rec.Format, rec.Width, rec.Height)
	}
	if rec.Size != int64(len(data)) {
		t.Errorf("Expected size %d, got %d", len(data), rec.Size)
	}
	if rec.CreatedAt.IsZero() || rec.ModTime.IsZero() {
		t.Error("Expected timestamps to be set")
	}

	world, ok := rec.Fields["world"].(map[string]any)
	if !ok || world["name"] != "Home" {
		t.Errorf("Expected world.name=Home, got %v", rec.Fields["world"])
	}
	players, ok := rec.Fields["players"].([]any)
	if !ok || len(players) != 2 {
		t.Errorf("Expected two players, got %v", rec.Fields["players"])
	}
	if rec.Fields["Software"] != "VRChat" {
		t.Errorf("Expected Software from tEXt, got %v", rec.Fields["Software"])
	}
	if rec.Fields["Comment"] != "café" {
		t.Errorf("Expected Latin-1 zTXt decoded, got %q", rec.Fields["Comment"])
	}
	if _, ok := rec.Fields[DescriptionKey]; ok {
		t.Error("A JSON object Description should be merged, not kept verbatim")
	}

	hash, err := e.Hash(context.Background(), path)
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if hash != rec.ContentHash || len(hash) != 64 {
		t.Errorf("Hash() = %q, record hash %q", hash, rec.ContentHash)
	}
}

func TestExtractDescriptionVariants(t *testing.T) {
	tests := []struct {
		name  string
		chunk []byte
		want  any
	}{
		{"plain text", tEXt(DescriptionKey, "sunset"), "sunset"},
		{"json array", tEXt(DescriptionKey, `[1,2]`), []any{float64(1), float64(2)}},
		{"broken json", iTXt(DescriptionKey, `{"world":`), `{"world":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "a.png", withChunks(encodePNG(t, 4, 4), tt.chunk))
			rec, err := New(Options{}).Extract(context.Background(), path)
			if err != nil {
				t.Fatalf("Extract failed: %v", err)
			}
			got := rec.Fields[DescriptionKey]
			if a, ok := tt.want.([]any); ok {
				g, ok := got.([]any)
				if !ok || len(g) != len(a) {
					t.Errorf("Description = %v, want %v", got, tt.want)
				}
				return
			}
			if got != tt.want {
				t.Errorf("Description = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExtractDegradesOnCorruptImage(t *testing.T) {
	path := writeFile(t, "broken.jpg", []byte("definitely not a jpeg"))

	rec, err := New(Options{}).Extract(context.Background(), path)
	if err != nil {
		t.Fatalf("Corrupt content should degrade, not fail: %v", err)
	}
	if rec.Format != mediatypes.FormatJPEG {
		t.Errorf("Expected format from extension, got %s", rec.Format)
	}
	if rec.Width != 0 || rec.Height != 0 {
		t.Errorf("Expected no dimensions, got %dx%d", rec.Width, rec.Height)
	}
	if len(rec.Fields) != 0 {
		t.Errorf("Expected empty field map, got %v", rec.Fields)
	}
	if rec.ContentHash == "" {
		t.Error("Content hash should still be computed")
	}
}

func TestExtractUnreadable(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "gone.png")
	e := New(Options{})

	if _, err := e.Extract(context.Background(), missing); !errors.Is(err, errdefs.ErrUnreadableFile) {
		t.Errorf("Expected ErrUnreadableFile, got %v", err)
	}
	if _, err := e.Hash(context.Background(), missing); !errors.Is(err, errdefs.ErrUnreadableFile) {
		t.Errorf("Expected ErrUnreadableFile from Hash, got %v", err)
	}
}

func TestHashTracksContent(t *testing.T) {
	path := writeFile(t, "a.png", encodePNG(t, 2, 2))
	e := New(Options{})

	before, err := e.Hash(context.Background(), path)
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if err := os.WriteFile(path, encodePNG(t, 3, 3), 0o644); err != nil {
		t.Fatalf("Failed to rewrite: %v", err)
	}
	after, err := e.Hash(context.Background(), path)
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if before == after {
		t.Error("Hash did not change with content")
	}
}

func TestReadPNGText(t *testing.T) {
	base := encodePNG(t, 2, 2)

	t.Run("not png", func(t *testing.T) {
		if _, err := readPNGText(bytes.NewReader([]byte("GIF89a"))); !errors.Is(err, errNotPNG) {
			t.Errorf("Expected errNotPNG, got %v", err)
		}
	})

	t.Run("truncated keeps earlier chunks", func(t *testing.T) {
		data := withChunks(base, tEXt("A", "1"), tEXt("B", "2"))
		cut := 8 + 25 + len(tEXt("A", "1")) + 6
		got, err := readPNGText(bytes.NewReader(data[:cut]))
		if err == nil {
			t.Error("Expected an error for truncated stream")
		}
		if got["A"] != "1" {
			t.Errorf("Expected chunk A to survive, got %v", got)
		}
	})

	t.Run("malformed chunks dropped", func(t *testing.T) {
		data := withChunks(base,
			chunk("tEXt", []byte("no-separator")),
			chunk("zTXt", []byte("K\x00\x00not zlib")),
			chunk("iTXt", []byte("K\x00\x01\x00")),
			tEXt("ok", "yes"),
		)
		got, err := readPNGText(bytes.NewReader(data))
		if err != nil {
			t.Fatalf("readPNGText failed: %v", err)
		}
		if len(got) != 1 || got["ok"] != "yes" {
			t.Errorf("Expected only the well-formed chunk, got %v", got)
		}
	})
}
