package tabular

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chunkr/chunkr/engine/core"
	"github.com/chunkr/chunkr/pkg/logger"
)

// quietCtx silences the oversized-row and forced-jump warnings these
// suites provoke on purpose.
func quietCtx() context.Context {
	return logger.ContextWithLogger(context.Background(), logger.NewDiscardLogger())
}

func writeCSV(t *testing.T, name string, rows []string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(rows, "\n")+"\n"), 0o644))
	return path
}

func collectChunks(t *testing.T, s *Streamer, path string, maxBytes int) ([]string, error) {
	t.Helper()
	var chunks []string
	_, err := s.ChunkFile(quietCtx(), path, maxBytes, func(_ int, data []byte) error {
		chunks = append(chunks, string(data))
		return nil
	})
	return chunks, err
}

func TestChunkFile(t *testing.T) {
	t.Run("ShouldPreserveHeaderInEveryChunk", func(t *testing.T) {
		rows := []string{"id,name,score"}
		for i := 0; i < 500; i++ {
			rows = append(rows, fmt.Sprintf("%d,user%d,%d", i, i, i*3))
		}
		path := writeCSV(t, "data.csv", rows)
		chunks, err := collectChunks(t, NewStreamer(1), path, 512)
		require.NoError(t, err)
		require.Greater(t, len(chunks), 1)
		for _, chunk := range chunks {
			assert.True(t, strings.HasPrefix(chunk, "id,name,score\n"))
			assert.LessOrEqual(t, len(chunk), 512)
		}
	})
	t.Run("ShouldPreserveEveryRowExactlyOnce", func(t *testing.T) {
		rows := []string{"a,b"}
		for i := 0; i < 200; i++ {
			rows = append(rows, fmt.Sprintf("%d,%d", i, i*i))
		}
		path := writeCSV(t, "roundtrip.csv", rows)
		chunks, err := collectChunks(t, NewStreamer(1), path, 256)
		require.NoError(t, err)
		var dataRows []string
		for _, chunk := range chunks {
			lines := strings.Split(strings.TrimSuffix(chunk, "\n"), "\n")
			require.Equal(t, "a,b", lines[0])
			dataRows = append(dataRows, lines[1:]...)
		}
		require.Len(t, dataRows, 200)
		for i, row := range dataRows {
			assert.Equal(t, fmt.Sprintf("%d,%d", i, i*i), row)
		}
	})
	t.Run("ShouldTerminateOnAdversariallyOversizedRows", func(t *testing.T) {
		// single rows near (and beyond) the byte ceiling
		rows := []string{"payload"}
		for i := 0; i < 20; i++ {
			rows = append(rows, strings.Repeat("x", 900))
		}
		path := writeCSV(t, "adversarial.csv", rows)
		chunks, err := collectChunks(t, NewStreamer(1), path, 512)
		require.NoError(t, err)
		// every oversized row must still come out, one chunk each
		assert.GreaterOrEqual(t, len(chunks), 20)
	})
	t.Run("ShouldForceJumpWhenBatchReshapingStalls", func(t *testing.T) {
		// the window is sized from the tiny sampled rows, so the fat tail
		// rows keep the batch oversized through three halvings in a row
		rows := []string{"h"}
		for i := 0; i < 1100; i++ {
			rows = append(rows, fmt.Sprintf("r%d", i))
		}
		for i := 0; i < 3; i++ {
			rows = append(rows, fmt.Sprintf("fat%d%s", i, strings.Repeat("x", 2000)))
		}
		path := writeCSV(t, "stall.csv", rows)
		chunks, err := collectChunks(t, NewStreamer(1), path, 600)
		require.NoError(t, err)
		// the forced jump emits the blocked batch as one oversized chunk
		// instead of halving forever; all fat rows travel together in it
		var jumped string
		for _, chunk := range chunks {
			if strings.Contains(chunk, "fat0") {
				jumped = chunk
			}
		}
		require.NotEmpty(t, jumped)
		assert.Greater(t, len(jumped), 600)
		assert.Contains(t, jumped, "fat1")
		assert.Contains(t, jumped, "fat2")
		// round-trip: every row still comes out exactly once
		total := 0
		for _, chunk := range chunks {
			total += strings.Count(chunk, "\n") - 1 // minus the header line
		}
		assert.Equal(t, 1103, total)
	})
	t.Run("ShouldFailWhenHeaderExceedsBudget", func(t *testing.T) {
		path := writeCSV(t, "hdr.csv", []string{strings.Repeat("h", 600), "x"})
		_, err := collectChunks(t, NewStreamer(1), path, 512)
		require.Error(t, err)
		assert.True(t, core.IsCode(err, core.CodeMalformedInput))
	})
	t.Run("ShouldHandleEmptyFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "empty.csv")
		require.NoError(t, os.WriteFile(path, nil, 0o644))
		chunks, err := collectChunks(t, NewStreamer(1), path, 512)
		require.NoError(t, err)
		assert.Empty(t, chunks)
	})
	t.Run("ShouldUseTabDelimiterForTSV", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "data.tsv")
		body := "a\tb\n1\t2\n3\t4\n"
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
		var chunks []string
		_, err := NewStreamer(1).ChunkFile(context.Background(), path, 1024, func(_ int, data []byte) error {
			chunks = append(chunks, string(data))
			return nil
		})
		require.NoError(t, err)
		require.Len(t, chunks, 1)
		assert.Contains(t, chunks[0], "a\tb\n")
	})
	t.Run("ShouldStopOnCanceledContext", func(t *testing.T) {
		rows := []string{"h"}
		for i := 0; i < 100; i++ {
			rows = append(rows, fmt.Sprintf("%d", i))
		}
		path := writeCSV(t, "cancel.csv", rows)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := NewStreamer(1).ChunkFile(ctx, path, 64, func(int, []byte) error { return nil })
		require.Error(t, err)
	})
}

func TestRunStateWindow(t *testing.T) {
	t.Run("ShouldRecoverWindowAfterHalvingEpisode", func(t *testing.T) {
		st := &runState{window: 9, windowBase: 73, halvings: 3}
		st.recoverWindow()
		assert.Equal(t, 73, st.window)
		assert.Equal(t, 0, st.halvings)
	})
}

func TestBoundedMemory(t *testing.T) {
	t.Run("ShouldStayWellUnderFileSizeWhileStreaming", func(t *testing.T) {
		// a file many times the configured ceiling: holding it in memory
		// would show up as heap growth on the order of the file size
		path := filepath.Join(t.TempDir(), "huge.csv")
		file, err := os.Create(path)
		require.NoError(t, err)
		w := bufio.NewWriter(file)
		_, err = w.WriteString("id,payload\n")
		require.NoError(t, err)
		const rowCount = 300000
		for i := 0; i < rowCount; i++ {
			_, err = fmt.Fprintf(w, "%d,%s\n", i, strings.Repeat("p", 64))
			require.NoError(t, err)
		}
		require.NoError(t, w.Flush())
		require.NoError(t, file.Close())
		info, err := os.Stat(path)
		require.NoError(t, err)
		require.Greater(t, info.Size(), int64(20*1024*1024))

		runtime.GC()
		var base runtime.MemStats
		runtime.ReadMemStats(&base)
		var peak uint64
		count, err := NewStreamer(1).ChunkFile(quietCtx(), path, 64*1024, func(_ int, data []byte) error {
			assert.LessOrEqual(t, len(data), 64*1024)
			var now runtime.MemStats
			runtime.ReadMemStats(&now)
			if now.HeapAlloc > peak {
				peak = now.HeapAlloc
			}
			return nil
		})
		require.NoError(t, err)
		assert.Greater(t, count, 100)
		growth := int64(peak) - int64(base.HeapAlloc)
		assert.Less(t, growth, int64(info.Size()/2),
			"heap grew by %d bytes while streaming a %d byte file", growth, info.Size())
	})
}

func TestChunkLines(t *testing.T) {
	t.Run("ShouldStreamPlainTextByLines", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "big.log")
		var b strings.Builder
		for i := 0; i < 1000; i++ {
			fmt.Fprintf(&b, "log line number %d with some padding text\n", i)
		}
		require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
		var total int
		count, err := NewStreamer(1).ChunkLines(context.Background(), path, 2048, func(_ int, data []byte) error {
			total += len(data)
			assert.LessOrEqual(t, len(data), 2048)
			return nil
		})
		require.NoError(t, err)
		assert.Greater(t, count, 1)
		assert.Equal(t, b.Len(), total)
	})
}

func TestShouldStream(t *testing.T) {
	t.Run("ShouldRouteFilesAboveHardMultiple", func(t *testing.T) {
		s := NewStreamer(1) // 1MB ceiling
		assert.False(t, s.ShouldStream(4*1024*1024))
		assert.True(t, s.ShouldStream(4*1024*1024+1))
	})
}
