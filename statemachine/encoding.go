package statemachine

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/saintfish/chardet"
	"golang.org/x/net/html/charset"
)

// DefaultMaxDocumentSize bounds a schema document after decompression.
const DefaultMaxDocumentSize int64 = 4 << 20

var (
	gzipMagic = []byte{0x1f, 0x8b}             //nolint:gochecknoglobals
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd} //nolint:gochecknoglobals
	lz4Magic  = []byte{0x04, 0x22, 0x4d, 0x18} //nolint:gochecknoglobals

	utf8BOM    = []byte{0xef, 0xbb, 0xbf} //nolint:gochecknoglobals
	utf16LEBOM = []byte{0xff, 0xfe}       //nolint:gochecknoglobals
	utf16BEBOM = []byte{0xfe, 0xff}       //nolint:gochecknoglobals
)

// decodeDocument turns raw schema bytes into UTF-8 text: compressed input is
// inflated and other charsets are transcoded.
func decodeDocument(raw []byte, sourceName string, limit int64) ([]byte, error) {
	if limit <= 0 {
		limit = DefaultMaxDocumentSize
	}

	data, err := decompress(raw, sourceName, limit)
	if err != nil {
		return nil, err
	}

	return toUTF8(data)
}

func decompress(raw []byte, sourceName string, limit int64) ([]byte, error) {
	var (
		reader io.Reader
		format string
	)

	switch {
	case bytes.HasPrefix(raw, gzipMagic):
		gz, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}

		defer gz.Close()

		reader, format = gz, "gzip"
	case bytes.HasPrefix(raw, zstdMagic):
		dec, err := zstd.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}

		defer dec.Close()

		reader, format = dec, "zstd"
	case bytes.HasPrefix(raw, lz4Magic):
		reader, format = lz4.NewReader(bytes.NewReader(raw)), "lz4"
	case strings.EqualFold(filepath.Ext(sourceName), ".br"):
		// brotli streams have no magic number, so only the file name can tell.
		reader, format = brotli.NewReader(bytes.NewReader(raw)), "brotli"
	default:
		if int64(len(raw)) > limit {
			return nil, fmt.Errorf("%w: %d bytes (limit %d)", ErrDocumentTooLarge, len(raw), limit)
		}

		return raw, nil
	}

	data, err := io.ReadAll(io.LimitReader(reader, limit+1))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", format, err)
	}

	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes after %s decompression", ErrDocumentTooLarge, limit, format)
	}

	return data, nil
}

func toUTF8(data []byte) ([]byte, error) {
	if utf8.Valid(data) {
		return bytes.TrimPrefix(data, utf8BOM), nil
	}

	var label string

	switch {
	case bytes.HasPrefix(data, utf16LEBOM):
		label = "utf-16le"
	case bytes.HasPrefix(data, utf16BEBOM):
		label = "utf-16be"
	default:
		result, err := chardet.NewTextDetector().DetectBest(data)
		if err != nil {
			return nil, fmt.Errorf("unable to detect document charset: %w", err)
		}

		label = result.Charset
	}

	reader, err := charset.NewReaderLabel(label, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("unsupported document charset %q: %w", label, err)
	}

	out, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("decoding %s document: %w", label, err)
	}

	return bytes.TrimPrefix(out, utf8BOM), nil
}
