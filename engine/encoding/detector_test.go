package encoding

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chunkr/chunkr/engine/core"
)

func writeTemp(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestSniffBOM(t *testing.T) {
	t.Run("ShouldRecognizeAllMarks", func(t *testing.T) {
		assert.Equal(t, EncUTF8, sniffBOM([]byte{0xEF, 0xBB, 0xBF, 'a'}))
		assert.Equal(t, EncUTF16LE, sniffBOM([]byte{0xFF, 0xFE, 'a', 0x00}))
		assert.Equal(t, EncUTF16BE, sniffBOM([]byte{0xFE, 0xFF, 0x00, 'a'}))
		assert.Equal(t, EncUTF32LE, sniffBOM([]byte{0xFF, 0xFE, 0x00, 0x00}))
		assert.Equal(t, EncUTF32BE, sniffBOM([]byte{0x00, 0x00, 0xFE, 0xFF}))
		assert.Equal(t, "", sniffBOM([]byte("plain text")))
	})
}

func TestDetector(t *testing.T) {
	ctx := context.Background()
	t.Run("ShouldDetectUTF8BOM", func(t *testing.T) {
		d, err := NewDetector(0)
		require.NoError(t, err)
		path := writeTemp(t, "bom.txt", append([]byte{0xEF, 0xBB, 0xBF}, []byte("hello world")...))
		name, err := d.Detect(ctx, path)
		require.NoError(t, err)
		assert.Equal(t, EncUTF8, name)
	})
	t.Run("ShouldDetectPlainUTF8ViaCascade", func(t *testing.T) {
		d, err := NewDetector(0)
		require.NoError(t, err)
		path := writeTemp(t, "plain.txt", []byte("The quick brown fox jumps over the lazy dog.\nAgain and again and again.\n"))
		name, err := d.Detect(ctx, path)
		require.NoError(t, err)
		assert.Equal(t, EncUTF8, name)
	})
	t.Run("ShouldDetectUTF16LEWithBOM", func(t *testing.T) {
		d, err := NewDetector(0)
		require.NoError(t, err)
		payload := []byte{0xFF, 0xFE}
		for _, r := range "hello utf sixteen" {
			payload = append(payload, byte(r), 0x00)
		}
		path := writeTemp(t, "u16.txt", payload)
		name, err := d.Detect(ctx, path)
		require.NoError(t, err)
		assert.Equal(t, EncUTF16LE, name)
	})
	t.Run("ShouldServeSecondCallFromCache", func(t *testing.T) {
		d, err := NewDetector(0)
		require.NoError(t, err)
		path := writeTemp(t, "cache.txt", []byte("cache me if you can, twenty words of text here to score well enough"))
		first, err := d.Detect(ctx, path)
		require.NoError(t, err)
		// remove the file: a cache hit must not touch the filesystem
		require.NoError(t, os.Remove(path))
		second, err := d.Detect(ctx, path)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})
	t.Run("ShouldRedetectAfterClear", func(t *testing.T) {
		d, err := NewDetector(0)
		require.NoError(t, err)
		path := writeTemp(t, "clear.txt", []byte("some ordinary text content for detection purposes here"))
		_, err = d.Detect(ctx, path)
		require.NoError(t, err)
		d.Clear()
		require.NoError(t, os.Remove(path))
		_, err = d.Detect(ctx, path)
		require.Error(t, err)
	})
	t.Run("ShouldFailExplicitlyOnUndetectableBytes", func(t *testing.T) {
		d, err := NewDetector(0)
		require.NoError(t, err)
		// NUL bytes decode to control characters under every candidate
		junk := make([]byte, 2047)
		path := writeTemp(t, "junk.bin", junk)
		_, err = d.Detect(ctx, path)
		require.Error(t, err)
		assert.True(t, core.IsCode(err, core.CodeEncodingUndetectable))
	})
	t.Run("ShouldTreatEmptyFileAsUTF8", func(t *testing.T) {
		d, err := NewDetector(0)
		require.NoError(t, err)
		path := writeTemp(t, "empty.txt", nil)
		name, err := d.Detect(ctx, path)
		require.NoError(t, err)
		assert.Equal(t, EncUTF8, name)
	})
}

func TestDecode(t *testing.T) {
	t.Run("ShouldDecodeWindows1252", func(t *testing.T) {
		decoded, err := Decode([]byte{0x93, 'h', 'i', 0x94}, EncCP1252)
		require.NoError(t, err)
		assert.Equal(t, "“hi”", decoded)
	})
	t.Run("ShouldReplaceInvalidUTF8Bytes", func(t *testing.T) {
		decoded, err := Decode([]byte{'o', 'k', 0xFF, 0xFE}, EncUTF8)
		require.NoError(t, err)
		assert.Contains(t, decoded, "ok")
		assert.Contains(t, decoded, "�")
	})
	t.Run("ShouldRejectUnknownEncodingName", func(t *testing.T) {
		_, err := Decode([]byte("x"), "no-such-encoding")
		require.Error(t, err)
	})
}

func TestScoreDecoded(t *testing.T) {
	t.Run("ShouldScoreCleanProseHigh", func(t *testing.T) {
		text := "This is a perfectly ordinary paragraph of prose with plenty of words in it."
		assert.GreaterOrEqual(t, scoreDecoded(text, EncUTF8), scoreFloor)
	})
	t.Run("ShouldScoreReplacementHeavyTextLow", func(t *testing.T) {
		text := "������ab"
		assert.Less(t, scoreDecoded(text, EncLatin1), scoreFloor)
	})
	t.Run("ShouldGiveUTF8ABonus", func(t *testing.T) {
		text := "identical sample text for both encodings"
		assert.Greater(t, scoreDecoded(text, EncUTF8), scoreDecoded(text, EncLatin1))
	})
}
