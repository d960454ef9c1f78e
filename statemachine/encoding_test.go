package statemachine

import (
	"bytes"
	"strings"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/unicode"
)

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()

	var buf bytes.Buffer

	w := gzip.NewWriter(&buf)
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	return buf.Bytes()
}

func zstdBytes(t *testing.T, data []byte) []byte {
	t.Helper()

	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)

	defer enc.Close()

	return enc.EncodeAll(data, nil)
}

func lz4Bytes(t *testing.T, data []byte) []byte {
	t.Helper()

	var buf bytes.Buffer

	w := lz4.NewWriter(&buf)
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	return buf.Bytes()
}

func brotliBytes(t *testing.T, data []byte) []byte {
	t.Helper()

	var buf bytes.Buffer

	w := brotli.NewWriter(&buf)
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	return buf.Bytes()
}

func TestCompile_CompressedDocuments(t *testing.T) {
	t.Parallel()

	doc := []byte(matterYAML)

	tests := []struct {
		name   string
		raw    []byte
		source string
	}{
		{"gzip", gzipBytes(t, doc), "matter.yaml.gz"},
		{"gzip without name", gzipBytes(t, doc), ""},
		{"zstd", zstdBytes(t, doc), ""},
		{"lz4", lz4Bytes(t, doc), ""},
		{"brotli", brotliBytes(t, doc), "matter.yaml.br"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			schema, err := Compile(tt.raw, WithSourceName(tt.source))
			require.NoError(t, err)
			assert.Equal(t, "solid", schema.Initial())
			assert.Len(t, schema.Transitions(), 3)
		})
	}
}

func TestCompile_BrotliNeedsHint(t *testing.T) {
	t.Parallel()

	ce := compileErr(t, string(brotliBytes(t, []byte(matterYAML))))
	assert.Equal(t, []string{CodeSchemaParseError}, ce.Codes())
}

func TestCompile_CorruptCompressedDocument(t *testing.T) {
	t.Parallel()

	raw := gzipBytes(t, []byte(matterYAML))
	raw = raw[:len(raw)/2]

	ce := compileErr(t, string(raw))
	assert.Equal(t, []string{CodeSchemaParseError}, ce.Codes())
	assert.Contains(t, ce.Error(), "gzip")
}

func TestCompile_DocumentTooLarge(t *testing.T) {
	t.Parallel()

	padding := "# " + strings.Repeat("x", 4096) + "\n"
	doc := []byte(padding + matterYAML)

	for name, raw := range map[string][]byte{"plain": doc, "gzip": gzipBytes(t, doc)} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := Compile(raw, WithMaxDocumentSize(1024))
			require.ErrorIs(t, err, ErrSchemaParse)
			assert.Contains(t, err.Error(), ErrDocumentTooLarge.Error())
		})
	}
}

func TestCompile_Charsets(t *testing.T) {
	t.Parallel()

	utf16 := func(t *testing.T, endian unicode.Endianness) []byte {
		t.Helper()

		out, err := unicode.UTF16(endian, unicode.UseBOM).NewEncoder().Bytes([]byte(matterJSON))
		require.NoError(t, err)

		return out
	}

	tests := []struct {
		name string
		raw  []byte
	}{
		{"utf-8 with BOM", append([]byte{0xef, 0xbb, 0xbf}, matterJSON...)},
		{"utf-16le", utf16(t, unicode.LittleEndian)},
		{"utf-16be", utf16(t, unicode.BigEndian)},
		{"gzipped utf-16le", gzipBytes(t, utf16(t, unicode.LittleEndian))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			schema, err := Compile(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, "solid", schema.Initial())
			assert.Len(t, schema.States(), 3)
		})
	}
}

func TestToUTF8_PassesThroughUTF8(t *testing.T) {
	t.Parallel()

	in := []byte("état: liquide")

	out, err := toUTF8(in)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}
