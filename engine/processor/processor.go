// Package processor orchestrates the per-file pipeline: size gating, variant
// classification, disk admission, chunking, and the optional locked deletion
// of the original. Per-file failures produce error results; only run-level
// resource exhaustion stops a directory walk.
package processor

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chunkr/chunkr/engine/binchunk"
	"github.com/chunkr/chunkr/engine/chunker"
	"github.com/chunkr/chunkr/engine/core"
	"github.com/chunkr/chunkr/engine/encoding"
	"github.com/chunkr/chunkr/engine/extract"
	"github.com/chunkr/chunkr/engine/format"
	"github.com/chunkr/chunkr/engine/governor"
	"github.com/chunkr/chunkr/engine/replace"
	"github.com/chunkr/chunkr/engine/tabular"
	"github.com/chunkr/chunkr/pkg/config"
	"github.com/chunkr/chunkr/pkg/logger"
)

// Processor owns the shared components of one run and is safe for concurrent
// ProcessFile calls.
type Processor struct {
	cfg       *config.Config
	detector  *encoding.Detector
	extractor *extract.Extractor
	streamer  *tabular.Streamer
	splitter  *chunker.Splitter
	replacer  *replace.Manager
	pool      *workerPool
	stats     *core.StatTracker
}

// New wires a processor from config. Deletions, when enabled, are restricted
// to paths resolving under allowedBases; pass none to allow any path.
func New(cfg *config.Config, allowedBases ...string) (*Processor, error) {
	detector, err := encoding.NewDetector(cfg.Limits.EncodingCacheSize)
	if err != nil {
		return nil, fmt.Errorf("processor: build detector: %w", err)
	}
	splitter, err := chunker.New(int(cfg.Processing.MaxFileSizeBytes()), cfg.Processing.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("processor: build splitter: %w", err)
	}
	return &Processor{
		cfg:       cfg,
		detector:  detector,
		extractor: extract.New(detector),
		streamer:  tabular.NewStreamer(cfg.Limits.MemoryCeilingMB),
		splitter:  splitter,
		replacer:  replace.NewManager(allowedBases...),
		pool:      newWorkerPool(cfg.Limits.ChunkWorkers, cfg.Limits.ChunkBaseTimeout, cfg.Limits.ChunkMaxTimeout),
		stats:     &core.StatTracker{},
	}, nil
}

// Close releases the chunk worker pool, joining workers for a bounded grace
// period.
func (p *Processor) Close() {
	p.pool.Close()
}

// Stats returns a snapshot of the counters accumulated so far.
func (p *Processor) Stats() core.Stats {
	return p.stats.Snapshot()
}

// ProcessFile runs the full pipeline on one file and always returns a result;
// failures are folded into it rather than returned.
func (p *Processor) ProcessFile(ctx context.Context, path string) *core.Result {
	res, _ := p.processFile(ctx, path)
	return res
}

// processFile additionally surfaces the underlying error so the directory
// walk can distinguish run-level codes from per-file ones.
func (p *Processor) processFile(ctx context.Context, path string) (*core.Result, error) {
	info, err := os.Stat(path)
	if err != nil {
		res := errorResult(fmt.Errorf("processor: stat %q: %w", path, err))
		p.record(ctx, res, 0)
		return res, err
	}
	rec, err := core.NewFileRecord(path, info.Size())
	if err != nil {
		res := errorResult(err)
		p.record(ctx, res, info.Size())
		return res, err
	}
	res, err := p.process(ctx, rec)
	res.SizeMB = rec.SizeMB()
	p.record(ctx, res, rec.Size)
	return res, err
}

func (p *Processor) record(ctx context.Context, res *core.Result, size int64) {
	p.stats.Record(res, size)
	recordFileProcessed(ctx, res, size)
}

func (p *Processor) process(ctx context.Context, rec *core.FileRecord) (*core.Result, error) {
	log := logger.FromContext(ctx)
	// unsupported formats are skipped before any content inspection
	if !format.IsSupportedFormat(rec.Path, &p.cfg.Processing) {
		return &core.Result{Status: core.StatusSkipped, Reason: "unsupported format"}, nil
	}
	if !format.NeedsSplitting(rec.Size, &p.cfg.Processing) {
		return &core.Result{Status: core.StatusNoProcessingNeeded}, nil
	}
	rec.Variant = format.Classify(rec.Path)
	maxBytes := p.cfg.Processing.MaxFileSizeBytes()
	if err := governor.CheckDisk(filepath.Dir(rec.Path), rec.Size, rec.Variant, maxBytes); err != nil {
		return errorResult(err), err
	}
	log.Info("Splitting file",
		"path", rec.Path, "variant", rec.Variant, "size_mb", fmt.Sprintf("%.1f", rec.SizeMB()))
	outputs, err := p.split(ctx, rec, int(maxBytes))
	if err != nil {
		// chunks flushed before the failure are kept; the original is never
		// touched on an aborted split
		res := errorResult(err)
		res.Chunks = len(outputs)
		res.OutputFiles = outputs
		return res, err
	}
	res := &core.Result{Status: core.StatusSplit, Chunks: len(outputs), OutputFiles: outputs}
	if p.cfg.Processing.DeleteOriginal && len(outputs) > 0 {
		deleted, derr := p.replacer.ReplaceOriginal(ctx, rec.Path, outputs)
		res.OriginalDeleted = deleted
		if derr != nil {
			// a held lock or failed validation keeps the original; the split
			// itself still succeeded
			log.Warn("Original kept after failed deletion attempt", "path", rec.Path, "error", derr)
			res.Reason = derr.Error()
		}
	}
	return res, nil
}

func (p *Processor) split(ctx context.Context, rec *core.FileRecord, maxBytes int) ([]string, error) {
	switch rec.Variant {
	case core.VariantBinary:
		logger.FromContext(ctx).Debug("Routing binary file to block chunking",
			"path", rec.Path, "mime", format.SniffMIME(readHead(rec.Path)))
		writer := newChunkWriter(ctx, rec.Path, rec.Ext)
		_, err := binchunk.ChunkFile(ctx, rec.Path, maxBytes, writer.write)
		return writer.outputs, err
	case core.VariantTabular:
		writer := newChunkWriter(ctx, rec.Path, rec.Ext)
		_, err := p.streamer.ChunkFile(ctx, rec.Path, maxBytes, writer.write)
		return writer.outputs, err
	case core.VariantTextLike:
		if p.streamer.ShouldStream(rec.Size) {
			writer := newChunkWriter(ctx, rec.Path, rec.Ext)
			_, err := p.streamer.ChunkLines(ctx, rec.Path, maxBytes, writer.write)
			return writer.outputs, err
		}
		return p.splitText(ctx, rec, maxBytes, rec.Ext)
	case core.VariantDocument:
		// extracted document text is plain UTF-8, so parts carry .txt
		return p.splitText(ctx, rec, maxBytes, ".txt")
	default:
		return nil, core.NewError(nil, core.CodeUnsupportedFormat,
			"no processing strategy for variant", map[string]any{"variant": rec.Variant})
	}
}

func (p *Processor) splitText(ctx context.Context, rec *core.FileRecord, maxBytes int, suffix string) ([]string, error) {
	text, err := p.extractor.Extract(ctx, rec)
	if err != nil {
		return nil, err
	}
	hint := "plain"
	if p.cfg.Processing.PreserveStructure {
		hint = format.FormatHint(rec.Ext)
	}
	pieces, err := p.pool.chunkWithTimeout(ctx, p.splitter, text, hint, maxBytes)
	if err != nil {
		return nil, err
	}
	writer := newChunkWriter(ctx, rec.Path, suffix)
	for _, piece := range pieces {
		if piece.Oversized {
			logger.FromContext(ctx).Warn("Indivisible token exceeds chunk budget",
				"path", rec.Path, "bytes", len(piece.Text))
		}
		if err := writer.write(piece.Index+1, []byte(piece.Text)); err != nil {
			return writer.outputs, err
		}
	}
	return writer.outputs, nil
}

// chunkWriter persists ordered chunks as {stem}_part{N}{suffix} next to the
// original and tracks what it wrote.
type chunkWriter struct {
	ctx     context.Context
	dir     string
	stem    string
	suffix  string
	outputs []string
}

func newChunkWriter(ctx context.Context, original, suffix string) *chunkWriter {
	base := filepath.Base(original)
	return &chunkWriter{
		ctx:    ctx,
		dir:    filepath.Dir(original),
		stem:   strings.TrimSuffix(base, filepath.Ext(base)),
		suffix: suffix,
	}
}

func (w *chunkWriter) write(index int, data []byte) error {
	path := filepath.Join(w.dir, fmt.Sprintf("%s_part%d%s", w.stem, index, w.suffix))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("processor: write chunk %q: %w", path, err)
	}
	w.outputs = append(w.outputs, path)
	recordChunkCreated(w.ctx, int64(len(data)))
	return nil
}

// readHead returns up to the first 512 bytes of the file for MIME sniffing.
// Sniffing is diagnostic only, so read failures yield an empty head.
func readHead(path string) []byte {
	file, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer file.Close()
	buf := make([]byte, 512)
	n, _ := io.ReadFull(file, buf)
	return buf[:n]
}

func errorResult(err error) *core.Result {
	return &core.Result{Status: core.StatusError, Error: err.Error()}
}
