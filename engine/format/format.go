// Package format classifies input files into the closed set of processing
// variants and gates them by size. Classification happens exactly once per
// file; everything downstream branches on the resulting variant.
package format

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/chunkr/chunkr/engine/core"
	"github.com/chunkr/chunkr/pkg/config"
)

var tabularExts = map[string]struct{}{
	".csv": {},
	".tsv": {},
}

var documentExts = map[string]struct{}{
	".pdf":  {},
	".html": {},
	".htm":  {},
	".docx": {},
	".rtf":  {},
}

var textLikeExts = map[string]struct{}{
	".txt": {}, ".md": {}, ".markdown": {}, ".rst": {}, ".log": {},
	".xml": {}, ".json": {}, ".yaml": {}, ".yml": {}, ".toml": {}, ".ini": {},
	".go": {}, ".py": {}, ".js": {}, ".ts": {}, ".java": {}, ".c": {}, ".cpp": {},
	".h": {}, ".rs": {}, ".rb": {}, ".sh": {}, ".sql": {},
}

// Classify maps a path to its processing variant. Unknown extensions are
// treated as binary, the only variant with a lossless fallback.
func Classify(path string) core.Variant {
	ext := strings.ToLower(filepath.Ext(path))
	if _, ok := tabularExts[ext]; ok {
		return core.VariantTabular
	}
	if _, ok := documentExts[ext]; ok {
		return core.VariantDocument
	}
	if _, ok := textLikeExts[ext]; ok {
		return core.VariantTextLike
	}
	return core.VariantBinary
}

// NeedsSplitting reports whether the file size exceeds the configured
// threshold minus the 1-byte safety margin.
func NeedsSplitting(size int64, cfg *config.ProcessingConfig) bool {
	return size > cfg.MaxFileSizeBytes()
}

// IsSupportedFormat checks extension membership in the configured allow-list.
func IsSupportedFormat(path string, cfg *config.ProcessingConfig) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return false
	}
	for _, allowed := range cfg.SupportedFormats {
		if ext == allowed {
			return true
		}
	}
	return false
}

// FormatHint names the structural splitter family for a text-like extension.
func FormatHint(ext string) string {
	switch strings.ToLower(ext) {
	case ".md", ".markdown", ".rst":
		return "markdown"
	case ".html", ".htm", ".xml":
		return "markup"
	case ".go", ".py", ".js", ".ts", ".java", ".c", ".cpp", ".h", ".rs", ".rb", ".sh", ".sql":
		return "code"
	default:
		return "plain"
	}
}

// SniffMIME determines a MIME type using stdlib detection first and
// falling back to the broader mimetype library when ambiguous.
func SniffMIME(head []byte) string {
	if len(head) == 0 {
		return "application/octet-stream"
	}
	mt := http.DetectContentType(head)
	if mt != "application/octet-stream" {
		return mt
	}
	return mimetype.Detect(head).String()
}
