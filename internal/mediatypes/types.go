package mediatypes

import (
	"path/filepath"
	"strings"
)

// Format names an image encoding as reported by image.DecodeConfig.
type Format string

const (
	FormatJPEG    Format = "jpeg"
	FormatPNG     Format = "png"
	FormatGIF     Format = "gif"
	FormatBMP     Format = "bmp"
	FormatWebP    Format = "webp"
	FormatTIFF    Format = "tiff"
	FormatUnknown Format = "unknown"
)

// ImageExtensions maps lowercase file extensions to the format they carry.
// Only these files are discovered and indexed.
var ImageExtensions = map[string]Format{
	".jpg":  FormatJPEG,
	".jpeg": FormatJPEG,
	".png":  FormatPNG,
	".gif":  FormatGIF,
	".bmp":  FormatBMP,
	".webp": FormatWebP,
	".tiff": FormatTIFF,
	".tif":  FormatTIFF,
}

// MimeTypes maps formats to their MIME types.
var MimeTypes = map[Format]string{
	FormatJPEG: "image/jpeg",
	FormatPNG:  "image/png",
	FormatGIF:  "image/gif",
	FormatBMP:  "image/bmp",
	FormatWebP: "image/webp",
	FormatTIFF: "image/tiff",
}

// IsImage reports whether path has a supported image extension.
// The comparison is case-insensitive.
func IsImage(path string) bool {
	_, ok := ImageExtensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// FormatForPath returns the format implied by the extension of path.
func FormatForPath(path string) Format {
	if f, ok := ImageExtensions[strings.ToLower(filepath.Ext(path))]; ok {
		return f
	}
	return FormatUnknown
}

// ParseFormat normalizes a decoder format name.
func ParseFormat(name string) Format {
	f := Format(strings.ToLower(name))
	if _, ok := MimeTypes[f]; ok {
		return f
	}
	return FormatUnknown
}

// MimeType returns the MIME type for a format, or "application/octet-stream".
func (f Format) MimeType() string {
	if mime, ok := MimeTypes[f]; ok {
		return mime
	}
	return "application/octet-stream"
}

// Extensions returns the supported extensions without the leading dot.
func Extensions() []string {
	out := make([]string, 0, len(ImageExtensions))
	for ext := range ImageExtensions {
		out = append(out, strings.TrimPrefix(ext, "."))
	}
	return out
}
