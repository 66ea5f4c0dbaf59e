// Package governor gates processing on disk space and run-level budgets.
// Estimates are deliberately pessimistic: refusing a file is recoverable,
// running the disk out mid-write is not.
package governor

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/chunkr/chunkr/engine/core"
	"github.com/chunkr/chunkr/pkg/config"
)

const (
	fsOverheadFactor = 0.15
	bufferFactor     = 0.30
	minBufferBytes   = 500 * 1024 * 1024
)

// formatMultiplier is the worst-case output-to-input size ratio per variant.
// Document extraction can inflate (text normalized to UTF-8 plus per-chunk
// headers); binary splitting is byte-neutral.
func formatMultiplier(variant core.Variant) float64 {
	switch variant {
	case core.VariantDocument:
		return 2.0
	case core.VariantTabular:
		return 1.5
	case core.VariantTextLike:
		return 1.3
	default:
		return 1.0
	}
}

// EstimateWorstCase computes the byte estimate used by the disk check:
// base = size × multiplier, plus filesystem overhead, plus the larger of the
// fixed minimum buffer or a share of the base.
func EstimateWorstCase(size int64, variant core.Variant, maxBytes int64) int64 {
	chunkCount := size/maxBytes + 1
	base := float64(size) * formatMultiplier(variant)
	// per-chunk overhead dominates for tiny budgets: one fs block each
	base += float64(chunkCount) * 4096
	estimate := base * (1 + fsOverheadFactor)
	buffer := base * bufferFactor
	if buffer < minBufferBytes {
		buffer = minBufferBytes
	}
	return int64(estimate + buffer)
}

// statfs is swapped in tests to simulate scarce disk space.
var statfs = func(path string) (free int64, err error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, err
	}
	return int64(st.Bavail) * st.Bsize, nil
}

// CheckDisk refuses processing when the worst-case estimate exceeds the free
// space available at dir.
func CheckDisk(dir string, size int64, variant core.Variant, maxBytes int64) error {
	free, err := statfs(dir)
	if err != nil {
		return fmt.Errorf("governor: statfs %q: %w", dir, err)
	}
	needed := EstimateWorstCase(size, variant, maxBytes)
	if needed > free {
		return core.NewError(nil, core.CodeResourceExhausted,
			"insufficient disk space for worst-case chunk output",
			map[string]any{"dir": dir, "needed": needed, "free": free})
	}
	return nil
}

// Budget enforces the run-level ceilings. The walk consults it before each
// file and stops early, never mid-file, once a ceiling is reached.
type Budget struct {
	mu         sync.Mutex
	maxBytes   int64
	maxFiles   int
	usedBytes  int64
	filesCount int
}

func NewBudget(cfg *config.ProcessingConfig) *Budget {
	return &Budget{
		maxBytes: cfg.MaxTotalSizeBytes(),
		maxFiles: cfg.MaxFilesPerRun,
	}
}

// Admit reserves room for one file, or reports which ceiling was hit.
func (b *Budget) Admit(size int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.filesCount+1 > b.maxFiles {
		return core.NewError(nil, core.CodeResourceExhausted,
			"file count ceiling reached", map[string]any{"max_files": b.maxFiles})
	}
	if b.usedBytes+size > b.maxBytes {
		return core.NewError(nil, core.CodeResourceExhausted,
			"total size ceiling reached", map[string]any{"max_bytes": b.maxBytes})
	}
	b.filesCount++
	b.usedBytes += size
	return nil
}
