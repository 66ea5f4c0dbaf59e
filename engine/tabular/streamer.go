// Package tabular chunks row-oriented data under a fixed memory budget. The
// loop is built to terminate on adversarial input: batch halving, stalled
// progress detection, and hard caps on iterations, chunks, and malformed rows
// all bound the work to O(row count).
package tabular

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chunkr/chunkr/engine/core"
	"github.com/chunkr/chunkr/pkg/logger"
)

const (
	// HardRoutingMultiple forces files larger than this multiple of the
	// memory ceiling onto the streaming path, never the in-memory chunker.
	HardRoutingMultiple = 4

	// usableMemoryFraction of the ceiling feeds the row-batch budget; the
	// rest is reserved for buffers and the runtime. At the default 512MB
	// ceiling this leaves roughly 140MB usable.
	usableMemoryFraction = 0.27

	sampleRowLimit        = 1000
	stallLimit            = 3
	halveAttempts         = 10
	maxChunksPerFile      = 100000
	maxConsecutiveBadRows = 100
	maxWindowRows         = 65536
)

// WriteFunc receives each serialized chunk in order; index starts at 1.
type WriteFunc func(index int, data []byte) error

// Streamer chunks tabular and oversized text files with bounded memory.
type Streamer struct {
	memoryCeiling int64
}

func NewStreamer(memoryCeilingMB int) *Streamer {
	if memoryCeilingMB <= 0 {
		memoryCeilingMB = 512
	}
	return &Streamer{memoryCeiling: int64(memoryCeilingMB) * 1024 * 1024}
}

// ShouldStream reports whether a file is too large for any in-memory path.
func (s *Streamer) ShouldStream(size int64) bool {
	return size > HardRoutingMultiple*s.memoryCeiling
}

// ChunkFile streams a delimited file into row-batch chunks, re-emitting the
// header row at the top of every chunk.
func (s *Streamer) ChunkFile(ctx context.Context, path string, maxBytes int, write WriteFunc) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("tabular: open %q: %w", path, err)
	}
	defer file.Close()
	delimiter := ','
	if strings.EqualFold(filepath.Ext(path), ".tsv") {
		delimiter = '\t'
	}
	reader := newCSVRowReader(file, delimiter)
	header, err := reader.ReadRow()
	if err == io.EOF {
		return 0, nil
	}
	if err != nil {
		return 0, core.NewError(err, core.CodeMalformedInput,
			"unreadable header row", map[string]any{"path": path})
	}
	if len(header) > maxBytes {
		return 0, core.NewError(nil, core.CodeMalformedInput,
			"header row alone exceeds the chunk byte budget", map[string]any{"path": path})
	}
	return s.run(ctx, path, reader, header, maxBytes, write)
}

// ChunkLines streams an oversized text-like file line by line. No header is
// carried; the file is simply too large for the in-memory text chunker.
func (s *Streamer) ChunkLines(ctx context.Context, path string, maxBytes int, write WriteFunc) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("tabular: open %q: %w", path, err)
	}
	defer file.Close()
	return s.run(ctx, path, newLineRowReader(file, maxBytes), nil, maxBytes, write)
}

type runState struct {
	pending      [][]byte
	pendingBytes int64
	rowsConsumed int
	chunks       int
	iterations   int
	stalled      int
	halvings     int
	badStreak    int
	window       int
	windowBase   int
	eof          bool
}

// position is the output progress measure: rows written out plus chunks
// emitted. Iterations that only reshape the batch window do not advance it.
func (st *runState) position() int {
	return st.rowsConsumed + st.chunks
}

// recoverWindow ends a halving episode once the stream advanced again, so a
// single fat row never leaves the batch window shrunk for the rest of the
// file.
func (st *runState) recoverWindow() {
	st.halvings = 0
	st.window = st.windowBase
}

func (s *Streamer) run(
	ctx context.Context,
	path string,
	reader rowReader,
	header []byte,
	maxBytes int,
	write WriteFunc,
) (int, error) {
	log := logger.FromContext(ctx)
	st := &runState{}
	if err := s.sample(reader, st, path, maxBytes); err != nil {
		return 0, err
	}
	buffer := bytes.NewBuffer(nil)
	buffer.Write(header)

	emit := func(data []byte) error {
		st.chunks++
		return write(st.chunks, data)
	}
	flushBuffer := func() error {
		data := make([]byte, buffer.Len())
		copy(data, buffer.Bytes())
		if err := emit(data); err != nil {
			return err
		}
		buffer.Reset()
		buffer.Write(header)
		return nil
	}

	for {
		st.iterations++
		if err := s.checkCaps(ctx, st, path); err != nil {
			return st.chunks, err
		}
		if err := s.refill(reader, st, path); err != nil {
			return st.chunks, err
		}
		if len(st.pending) == 0 && st.eof {
			if buffer.Len() > len(header) {
				if err := flushBuffer(); err != nil {
					return st.chunks, err
				}
			}
			return st.chunks, nil
		}
		position := st.position()
		batch, batchLen := takeBatch(st)
		switch {
		case buffer.Len()+batchLen <= maxBytes:
			for _, row := range batch {
				buffer.Write(row)
			}
			consumeBatch(st, len(batch))
			st.recoverWindow()
		case buffer.Len() > len(header):
			if err := flushBuffer(); err != nil {
				return st.chunks, err
			}
		case st.window > 1 && st.halvings < halveAttempts:
			st.window /= 2
			st.halvings++
		default:
			// a single row wider than the budget: skip forward by the
			// guaranteed minimum instead of retrying forever
			log.Warn("Emitting oversized row chunk",
				"path", path, "row_bytes", len(st.pending[0]), "max_bytes", maxBytes)
			oversized := append(append([]byte(nil), header...), st.pending[0]...)
			if err := emit(oversized); err != nil {
				return st.chunks, err
			}
			consumeBatch(st, 1)
			st.recoverWindow()
		}
		if st.position() > position {
			st.stalled = 0
			continue
		}
		st.stalled++
		if st.stalled >= stallLimit {
			if err := s.forceJump(st, header, emit, log, path); err != nil {
				return st.chunks, err
			}
			st.stalled = 0
		}
	}
}

// sample reads the first rows to estimate per-row footprint. The batch
// window targets the chunk byte budget, capped by the usable slice of the
// memory ceiling so pending rows never approach the ceiling.
func (s *Streamer) sample(reader rowReader, st *runState, path string, maxBytes int) error {
	for len(st.pending) < sampleRowLimit {
		row, err := reader.ReadRow()
		if err == io.EOF {
			st.eof = true
			break
		}
		if err == errBadRow {
			st.badStreak++
			if st.badStreak > maxConsecutiveBadRows {
				return core.NewError(nil, core.CodeMalformedInput,
					"malformed row tolerance exceeded while sampling", map[string]any{"path": path})
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("tabular: sample %q: %w", path, err)
		}
		st.badStreak = 0
		st.pending = append(st.pending, row)
		st.pendingBytes += int64(len(row))
	}
	avgRow := int64(1)
	if len(st.pending) > 0 {
		avgRow = st.pendingBytes / int64(len(st.pending))
		if avgRow < 1 {
			avgRow = 1
		}
	}
	usable := int64(float64(s.memoryCeiling) * usableMemoryFraction)
	window := usable / avgRow
	if chunkRows := int64(maxBytes) / avgRow; chunkRows < window {
		window = chunkRows
	}
	if window < 1 {
		window = 1
	}
	if window > maxWindowRows {
		window = maxWindowRows
	}
	st.window = int(window)
	st.windowBase = st.window
	return nil
}

func (s *Streamer) checkCaps(ctx context.Context, st *runState, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if st.chunks >= maxChunksPerFile {
		return core.NewError(nil, core.CodeMalformedInput,
			"chunk cap exceeded", map[string]any{"path": path, "chunks": st.chunks})
	}
	if st.iterations > 30*(st.rowsConsumed+st.chunks)+10000 {
		return core.NewError(nil, core.CodeMalformedInput,
			"iteration cap exceeded without progress", map[string]any{"path": path})
	}
	return nil
}

func (s *Streamer) refill(reader rowReader, st *runState, path string) error {
	for !st.eof && len(st.pending) < st.window {
		row, err := reader.ReadRow()
		if err == io.EOF {
			st.eof = true
			return nil
		}
		if err == errBadRow {
			st.badStreak++
			if st.badStreak > maxConsecutiveBadRows {
				return core.NewError(nil, core.CodeMalformedInput,
					"malformed row tolerance exceeded", map[string]any{"path": path})
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("tabular: read %q: %w", path, err)
		}
		st.badStreak = 0
		st.pending = append(st.pending, row)
		st.pendingBytes += int64(len(row))
	}
	return nil
}

// forceJump emits one full batch width in a single chunk so the stream is
// guaranteed to move forward even when normal accumulation cannot.
func (s *Streamer) forceJump(
	st *runState,
	header []byte,
	emit func([]byte) error,
	log logger.Logger,
	path string,
) error {
	jump := st.windowBase
	if jump > len(st.pending) {
		jump = len(st.pending)
	}
	if jump == 0 {
		return nil
	}
	log.Warn("Forcing forward jump after stalled progress",
		"path", path, "rows", jump)
	data := append([]byte(nil), header...)
	for _, row := range st.pending[:jump] {
		data = append(data, row...)
	}
	if err := emit(data); err != nil {
		return err
	}
	consumeBatch(st, jump)
	st.recoverWindow()
	return nil
}

func takeBatch(st *runState) ([][]byte, int) {
	n := st.window
	if n > len(st.pending) {
		n = len(st.pending)
	}
	batch := st.pending[:n]
	total := 0
	for _, row := range batch {
		total += len(row)
	}
	return batch, total
}

func consumeBatch(st *runState, n int) {
	for _, row := range st.pending[:n] {
		st.pendingBytes -= int64(len(row))
	}
	st.pending = st.pending[n:]
	st.rowsConsumed += n
}
