package middleware

import (
	"net/http"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"
)

// CompressionConfig holds configuration for the compression middleware.
type CompressionConfig struct {
	// MinSize is the smallest body that is compressed.
	MinSize int
	// Level is a klauspost/compress gzip level.
	Level int
	// CompressibleTypes are the media types eligible for compression.
	CompressibleTypes []string
}

// DefaultCompressionConfig compresses JSON and text bodies of 1 KiB or more.
func DefaultCompressionConfig() CompressionConfig {
	return CompressionConfig{
		MinSize:           1024,
		Level:             gzip.DefaultCompression,
		CompressibleTypes: []string{"application/json", "text/plain", "text/html"},
	}
}

type gzipResponseWriter struct {
	http.ResponseWriter
	pool       *sync.Pool
	config     CompressionConfig
	gz         *gzip.Writer
	buf        []byte
	statusCode int
	decided    bool
	compress   bool
}

func (g *gzipResponseWriter) WriteHeader(code int) {
	if !g.decided {
		g.statusCode = code
	}
}

func (g *gzipResponseWriter) Write(p []byte) (int, error) {
	if g.decided {
		if g.compress {
			return g.gz.Write(p)
		}
		return g.ResponseWriter.Write(p)
	}
	g.buf = append(g.buf, p...)
	if len(g.buf) >= g.config.MinSize {
		if err := g.decide(); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

func (g *gzipResponseWriter) compressible() bool {
	ct := g.Header().Get("Content-Type")
	if ct == "" || g.Header().Get("Content-Encoding") != "" {
		return false
	}
	mediaType, _, _ := strings.Cut(ct, ";")
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))
	for _, t := range g.config.CompressibleTypes {
		if mediaType == t {
			return true
		}
	}
	return false
}

// decide commits to compressing or not and writes out what was buffered.
func (g *gzipResponseWriter) decide() error {
	g.decided = true
	g.compress = len(g.buf) >= g.config.MinSize && g.compressible()

	var err error
	if g.compress {
		g.Header().Del("Content-Length")
		g.Header().Set("Content-Encoding", "gzip")
		g.Header().Add("Vary", "Accept-Encoding")
		g.gz = g.pool.Get().(*gzip.Writer)
		g.gz.Reset(g.ResponseWriter)
		g.ResponseWriter.WriteHeader(g.statusCode)
		_, err = g.gz.Write(g.buf)
	} else {
		g.ResponseWriter.WriteHeader(g.statusCode)
		if len(g.buf) > 0 {
			_, err = g.ResponseWriter.Write(g.buf)
		}
	}
	g.buf = nil
	return err
}

func (g *gzipResponseWriter) Flush() {
	if !g.decided {
		_ = g.decide()
	}
	if g.gz != nil {
		_ = g.gz.Flush()
	}
	if f, ok := g.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (g *gzipResponseWriter) Unwrap() http.ResponseWriter {
	return g.ResponseWriter
}

func (g *gzipResponseWriter) close() error {
	if !g.decided {
		if err := g.decide(); err != nil {
			return err
		}
	}
	if g.gz == nil {
		return nil
	}
	err := g.gz.Close()
	g.pool.Put(g.gz)
	g.gz = nil
	return err
}

// Compression gzips eligible responses for clients that accept it. Event
// streams are passed through untouched.
func Compression(config CompressionConfig) func(http.Handler) http.Handler {
	pool := &sync.Pool{
		New: func() any {
			w, err := gzip.NewWriterLevel(nil, config.Level)
			if err != nil {
				w = gzip.NewWriter(nil)
			}
			return w
		},
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") ||
				strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
				next.ServeHTTP(w, r)
				return
			}

			gzw := &gzipResponseWriter{
				ResponseWriter: w,
				pool:           pool,
				config:         config,
				statusCode:     http.StatusOK,
			}
			defer gzw.close()
			next.ServeHTTP(gzw, r)
		})
	}
}
