package metadata

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
	"golang.org/x/text/encoding/charmap"
)

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

// maxTextChunk bounds the size of a text chunk, compressed or not.
const maxTextChunk = 8 << 20

var errNotPNG = errors.New("not a PNG stream")

// readPNGText returns the tEXt, zTXt and iTXt chunks of a PNG stream keyed
// by keyword. Chunks that fail to decode are dropped; the chunks read before
// a structural error are returned along with it.
func readPNGText(r io.Reader) (map[string]string, error) {
	br := bufio.NewReader(r)

	sig := make([]byte, len(pngSignature))
	if _, err := io.ReadFull(br, sig); err != nil || !bytes.Equal(sig, pngSignature) {
		return nil, errNotPNG
	}

	out := map[string]string{}
	var hdr [8]byte
	for {
		if _, err := io.ReadFull(br, hdr[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return out, fmt.Errorf("chunk header: %w", err)
		}
		n := int64(binary.BigEndian.Uint32(hdr[:4]))
		typ := string(hdr[4:8])

		switch typ {
		case "IEND":
			return out, nil
		case "tEXt", "zTXt", "iTXt":
			if n > maxTextChunk {
				break
			}
			data := make([]byte, n)
			if _, err := io.ReadFull(br, data); err != nil {
				return out, fmt.Errorf("%s chunk: %w", typ, err)
			}
			if _, err := br.Discard(4); err != nil {
				return out, fmt.Errorf("%s crc: %w", typ, err)
			}
			if key, text, ok := decodeTextChunk(typ, data); ok {
				out[key] = text
			}
			continue
		}

		if _, err := io.CopyN(io.Discard, br, n+4); err != nil {
			return out, fmt.Errorf("%s chunk: %w", typ, err)
		}
	}
}

func decodeTextChunk(typ string, data []byte) (key, text string, ok bool) {
	i := bytes.IndexByte(data, 0)
	if i <= 0 {
		return "", "", false
	}
	key = latin1(data[:i])
	rest := data[i+1:]

	switch typ {
	case "tEXt":
		return key, latin1(rest), true

	case "zTXt":
		if len(rest) < 1 || rest[0] != 0 {
			return "", "", false
		}
		b, err := inflate(rest[1:])
		if err != nil {
			return "", "", false
		}
		return key, latin1(b), true

	case "iTXt":
		if len(rest) < 2 {
			return "", "", false
		}
		compressed, method := rest[0] == 1, rest[1]
		rest = rest[2:]
		// Language tag, then translated keyword, both NUL terminated.
		for range 2 {
			j := bytes.IndexByte(rest, 0)
			if j < 0 {
				return "", "", false
			}
			rest = rest[j+1:]
		}
		if !compressed {
			return key, string(rest), true
		}
		if method != 0 {
			return "", "", false
		}
		b, err := inflate(rest)
		if err != nil {
			return "", "", false
		}
		return key, string(b), true
	}
	return "", "", false
}

func inflate(b []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(io.LimitReader(zr, maxTextChunk))
}

func latin1(b []byte) string {
	s, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(s)
}
