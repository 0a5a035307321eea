package media

import (
	"bytes"
	"fmt"
	"image"
	"math"
	"os"

	// Decoders beyond what imaging registers.
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/disintegration/imaging"

	"photo-indexer/internal/logging"
	"photo-indexer/internal/mediatypes"
	"photo-indexer/internal/metrics"
)

const (
	// MaxImageDimension is the largest width or height decoded at full size.
	MaxImageDimension = 4096

	// MaxImagePixels caps decoded pixels (~80MB as RGBA).
	MaxImagePixels = 20_000_000
)

// constrain scales w x h down to fit maxDim on either side and maxPixels in
// total, keeping the aspect ratio. ok is false when no scaling is needed.
func constrain(w, h, maxDim, maxPixels int) (tw, th int, ok bool) {
	if w <= maxDim && h <= maxDim && w*h <= maxPixels {
		return w, h, false
	}

	tw, th = w, h
	if tw > maxDim || th > maxDim {
		if tw > th {
			th = th * maxDim / tw
			tw = maxDim
		} else {
			tw = tw * maxDim / th
			th = maxDim
		}
	}
	if tw*th > maxPixels {
		scale := math.Sqrt(float64(maxPixels) / float64(tw*th))
		tw = int(float64(tw) * scale)
		th = int(float64(th) * scale)
	}
	return max(tw, 1), max(th, 1), true
}

// LoadImageConstrained decodes the image at path, downscaling anything larger
// than the given limits so that huge sources cannot exhaust memory.
func LoadImageConstrained(path string, maxDimension, maxPixels int) (image.Image, error) {
	img, err := decodeFile(path)
	if err != nil {
		return nil, err
	}

	b := img.Bounds()
	tw, th, resize := constrain(b.Dx(), b.Dy(), maxDimension, maxPixels)
	if !resize {
		return img, nil
	}
	logging.Debug("Constraining large image %s from %dx%d to %dx%d", path, b.Dx(), b.Dy(), tw, th)
	return imaging.Resize(img, tw, th, imaging.Lanczos), nil
}

// decodeFile decodes path with EXIF orientation applied, falling back to the
// registered stdlib and x/image decoders.
func decodeFile(path string) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	format := DetectFormat(data)
	metrics.ThumbnailImageDecodeByFormat.WithLabelValues(string(format)).Inc()

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err == nil {
		return img, nil
	}
	logging.Debug("imaging could not decode %s (%s): %v", path, format, err)

	img, name, err2 := image.Decode(bytes.NewReader(data))
	if err2 != nil {
		return nil, fmt.Errorf("decode %s: %w", format, err)
	}
	logging.Debug("Decoded %s as %s with fallback decoder", path, name)
	return img, nil
}

// DetectFormat sniffs the image format from the leading bytes of a file.
func DetectFormat(header []byte) mediatypes.Format {
	h := header
	switch {
	case len(h) >= 3 && h[0] == 0xFF && h[1] == 0xD8 && h[2] == 0xFF:
		return mediatypes.FormatJPEG
	case len(h) >= 8 && bytes.Equal(h[:8], []byte("\x89PNG\r\n\x1a\n")):
		return mediatypes.FormatPNG
	case len(h) >= 4 && string(h[:4]) == "GIF8":
		return mediatypes.FormatGIF
	case len(h) >= 12 && string(h[:4]) == "RIFF" && string(h[8:12]) == "WEBP":
		return mediatypes.FormatWebP
	case len(h) >= 2 && h[0] == 'B' && h[1] == 'M':
		return mediatypes.FormatBMP
	case len(h) >= 4 && (string(h[:4]) == "II*\x00" || string(h[:4]) == "MM\x00*"):
		return mediatypes.FormatTIFF
	}
	return mediatypes.FormatUnknown
}
