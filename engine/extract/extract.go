// Package extract produces flattened text for document-variant files and
// decoded content for text-like files. Tabular files are never extracted
// eagerly; their streaming path owns the read to keep memory bounded.
package extract

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/chunkr/chunkr/engine/core"
	"github.com/chunkr/chunkr/engine/encoding"
	"github.com/chunkr/chunkr/pkg/logger"
)

// fallbackEncodings is tried, in order, when the detected encoding fails to
// produce a clean decode of a document payload.
var fallbackEncodings = []string{
	encoding.EncUTF8,
	encoding.EncLatin1,
	encoding.EncCP1252,
}

// Extractor flattens file content to text using the shared encoding detector.
type Extractor struct {
	detector *encoding.Detector
}

func New(detector *encoding.Detector) *Extractor {
	return &Extractor{detector: detector}
}

// Extract returns the flattened text of a text-like or document file.
// Document formats are never downgraded to byte splitting: a failed parse is
// a per-file error because byte-split structured documents are unusable.
func (e *Extractor) Extract(ctx context.Context, rec *core.FileRecord) (string, error) {
	switch rec.Variant {
	case core.VariantTextLike:
		return e.readText(ctx, rec)
	case core.VariantDocument:
		return e.extractDocument(ctx, rec)
	case core.VariantTabular:
		return "", fmt.Errorf("extract: tabular files stream through the row chunker, not eager extraction")
	default:
		return "", fmt.Errorf("extract: variant %q has no text extraction", rec.Variant)
	}
}

// readText decodes the whole file with the detected encoding, replacing
// isolated bad bytes rather than failing.
func (e *Extractor) readText(ctx context.Context, rec *core.FileRecord) (string, error) {
	enc, err := e.detectCached(ctx, rec)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(rec.Path)
	if err != nil {
		return "", fmt.Errorf("extract: read %q: %w", rec.Path, err)
	}
	text, err := encoding.Decode(data, enc)
	if err != nil {
		return "", fmt.Errorf("extract: decode %q as %s: %w", rec.Path, enc, err)
	}
	return text, nil
}

func (e *Extractor) extractDocument(ctx context.Context, rec *core.FileRecord) (string, error) {
	switch rec.Ext {
	case ".pdf":
		return extractPDF(ctx, rec.Path)
	case ".html", ".htm":
		data, err := os.ReadFile(rec.Path)
		if err != nil {
			return "", fmt.Errorf("extract: read %q: %w", rec.Path, err)
		}
		text, err := e.decodeDocument(ctx, rec, data)
		if err != nil {
			return "", err
		}
		return flattenHTML(text)
	default:
		return "", core.NewError(nil, core.CodeExtractionFailed,
			fmt.Sprintf("no structural parser for document format %q", rec.Ext),
			map[string]any{"path": rec.Path})
	}
}

// decodeDocument tries the cached detected encoding first and walks the
// fallback list on a dirty decode before giving up.
func (e *Extractor) decodeDocument(ctx context.Context, rec *core.FileRecord, data []byte) (string, error) {
	candidates := make([]string, 0, len(fallbackEncodings)+1)
	if enc, err := e.detectCached(ctx, rec); err == nil {
		candidates = append(candidates, enc)
	}
	candidates = append(candidates, fallbackEncodings...)
	best := ""
	for _, enc := range candidates {
		text, err := encoding.Decode(data, enc)
		if err != nil {
			continue
		}
		if !strings.ContainsRune(text, '�') {
			return text, nil
		}
		if best == "" {
			best = text
			logger.FromContext(ctx).Debug("Document decode produced replacement characters",
				"path", rec.Path, "encoding", enc)
		}
	}
	if best != "" {
		return best, nil
	}
	return "", core.NewError(nil, core.CodeExtractionFailed,
		"every decode attempt failed", map[string]any{"path": rec.Path})
}

func (e *Extractor) detectCached(ctx context.Context, rec *core.FileRecord) (string, error) {
	if rec.Encoding != "" {
		return rec.Encoding, nil
	}
	enc, err := e.detector.Detect(ctx, rec.Path)
	if err != nil {
		return "", err
	}
	rec.Encoding = enc
	return enc, nil
}
