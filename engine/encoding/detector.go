// Package encoding resolves the character encoding of input files before any
// content is extracted or split. Detection cascades from deterministic BOM
// sniffing through statistical guessing to a scored trial-decode pass and
// fails explicitly when nothing clears the threshold: a wrong guess here
// corrupts every downstream chunk.
package encoding

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/transform"

	"github.com/chunkr/chunkr/engine/core"
	"github.com/chunkr/chunkr/pkg/logger"
)

const (
	// DefaultCacheSize bounds the per-detector path→encoding LRU.
	DefaultCacheSize = 1000

	sampleLimit   = 100 * 1024
	validateLimit = 1024
	scoreFloor    = 50
)

// trialOrder is the scored trial-decode cascade, most common first.
var trialOrder = []string{
	EncUTF8,
	EncUTF16LE,
	EncUTF16BE,
	EncCP1252,
	EncLatin1,
	EncShiftJIS,
	EncGBK,
	EncBig5,
	EncEUCKR,
	EncKOI8R,
	EncCP1251,
}

// Detector resolves and caches file encodings. Each processor owns its own
// detector; the cache is never global.
type Detector struct {
	cacheMu sync.Mutex
	cache   *lru.Cache[string, string]
}

// NewDetector builds a detector with a bounded result cache.
func NewDetector(cacheSize int) (*Detector, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, string](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("encoding: init cache: %w", err)
	}
	return &Detector{cache: cache}, nil
}

// Detect returns the canonical encoding name for the file at path, running
// the detection cascade on a cache miss.
func (d *Detector) Detect(ctx context.Context, path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("encoding: resolve path %q: %w", path, err)
	}
	if cached, ok := d.lookup(abs); ok {
		return cached, nil
	}
	sample, err := readSample(abs)
	if err != nil {
		return "", fmt.Errorf("encoding: sample %q: %w", abs, err)
	}
	name, err := d.detect(ctx, abs, sample)
	if err != nil {
		return "", err
	}
	d.store(abs, name)
	return name, nil
}

// Clear drops every cached result, forcing re-detection on the next call.
func (d *Detector) Clear() {
	d.cacheMu.Lock()
	d.cache.Purge()
	d.cacheMu.Unlock()
}

func (d *Detector) lookup(path string) (string, bool) {
	d.cacheMu.Lock()
	defer d.cacheMu.Unlock()
	return d.cache.Get(path)
}

func (d *Detector) store(path, name string) {
	d.cacheMu.Lock()
	d.cache.Add(path, name)
	d.cacheMu.Unlock()
}

func (d *Detector) detect(ctx context.Context, path string, sample []byte) (string, error) {
	if len(sample) == 0 {
		return EncUTF8, nil
	}
	if name := sniffBOM(sample); name != "" {
		return name, nil
	}
	if name, ok := d.statistical(ctx, path, sample); ok {
		return name, nil
	}
	if name, ok := trialDecode(sample); ok {
		return name, nil
	}
	return "", core.NewError(nil, core.CodeEncodingUndetectable,
		"no detection strategy produced a trustworthy encoding",
		map[string]any{"path": path})
}

// statistical consults the charset heuristics and trusts the result only when
// the guess is certain and a short trial decode validates it.
func (d *Detector) statistical(ctx context.Context, path string, sample []byte) (string, bool) {
	enc, label, certain := charset.DetermineEncoding(sample, "")
	if !certain || enc == nil {
		return "", false
	}
	name := canonicalName(label)
	slice := sample
	if len(slice) > validateLimit {
		slice = slice[:validateLimit]
	}
	if _, err := Decode(slice, name); err != nil {
		logger.FromContext(ctx).Debug("Statistical encoding guess failed validation",
			"path", path, "label", label)
		return "", false
	}
	return name, true
}

// trialDecode runs the ordered cascade, scoring each successful decode and
// keeping the best candidate at or above the floor.
func trialDecode(sample []byte) (string, bool) {
	best := ""
	bestScore := -1
	for _, name := range trialOrder {
		decoded, err := Decode(sample, name)
		if err != nil {
			continue
		}
		score := scoreDecoded(decoded, name)
		if score > bestScore {
			best, bestScore = name, score
		}
	}
	if bestScore >= scoreFloor {
		return best, true
	}
	return "", false
}

// Decode converts data to UTF-8 using the named encoding. Undecodable bytes
// become U+FFFD; callers that must reject lossy decodes score the output.
func Decode(data []byte, name string) (string, error) {
	enc, err := Lookup(name)
	if err != nil {
		return "", err
	}
	decoded, _, err := transform.Bytes(enc.NewDecoder(), data)
	if err != nil {
		return "", fmt.Errorf("encoding: decode as %s: %w", name, err)
	}
	return string(decoded), nil
}

func readSample(path string) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, sampleLimit))
	if err != nil {
		return nil, err
	}
	return data, nil
}
