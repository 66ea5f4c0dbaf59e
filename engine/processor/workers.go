package processor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/semaphore"

	"github.com/chunkr/chunkr/engine/chunker"
	"github.com/chunkr/chunkr/pkg/logger"
)

const (
	// charsPerTimeoutStep adds one second of budget per this many characters.
	charsPerTimeoutStep = 100000
	closeGracePeriod    = 2 * time.Second
)

// workerPool bounds concurrent chunking and converts stalls on adversarial
// input into a truncated fallback instead of blocking the caller. Workers
// that outlive their timeout are abandoned, never force-killed; their
// semaphore slot frees when they finish.
type workerPool struct {
	sem         *semaphore.Weighted
	wg          sync.WaitGroup
	shutdown    atomic.Bool
	baseTimeout time.Duration
	maxTimeout  time.Duration
}

func newWorkerPool(workers int, baseTimeout, maxTimeout time.Duration) *workerPool {
	if workers <= 0 {
		workers = 5
	}
	return &workerPool{
		sem:         semaphore.NewWeighted(int64(workers)),
		baseTimeout: baseTimeout,
		maxTimeout:  maxTimeout,
	}
}

type splitResult struct {
	pieces []chunker.Piece
	err    error
}

// chunkWithTimeout runs the splitter under the pool's concurrency bound with
// a size-proportional deadline. On timeout the worker is abandoned and a
// conservative truncated chunk is returned instead.
func (w *workerPool) chunkWithTimeout(
	ctx context.Context,
	splitter *chunker.Splitter,
	text string,
	hint string,
	maxBytes int,
) ([]chunker.Piece, error) {
	if w.shutdown.Load() {
		return nil, fmt.Errorf("processor: worker pool is shut down")
	}
	if err := w.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("processor: acquire chunk worker: %w", err)
	}
	resultCh := make(chan splitResult, 1)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer w.sem.Release(1)
		pieces, err := splitter.Split(text, hint)
		resultCh <- splitResult{pieces: pieces, err: err}
	}()

	timeout := w.timeoutFor(text)
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case res := <-resultCh:
		return res.pieces, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		logger.FromContext(ctx).Warn("Chunking timed out, emitting truncated fallback",
			"chars", utf8.RuneCountInString(text), "timeout", timeout)
		return []chunker.Piece{{Index: 0, Text: truncateToBytes(text, maxBytes), Oversized: false}}, nil
	}
}

// timeoutFor scales the deadline with character count, not byte length, so
// multi-byte text does not get an inflated budget.
func (w *workerPool) timeoutFor(text string) time.Duration {
	timeout := w.baseTimeout + time.Duration(utf8.RuneCountInString(text)/charsPerTimeoutStep)*time.Second
	if timeout > w.maxTimeout {
		timeout = w.maxTimeout
	}
	return timeout
}

// Close sets the shutdown flag and joins workers for a bounded grace period;
// stragglers are abandoned. The flag is reset so the pool can be reused by
// tests that cycle lifecycles.
func (w *workerPool) Close() {
	w.shutdown.Store(true)
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(closeGracePeriod):
	}
	w.shutdown.Store(false)
}

// truncateToBytes cuts text at the last rune boundary within maxBytes.
func truncateToBytes(text string, maxBytes int) string {
	if len(text) <= maxBytes {
		return text
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}
