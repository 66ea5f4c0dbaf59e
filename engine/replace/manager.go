// Package replace deletes an original file only after every declared chunk
// independently validates, under a filesystem lock that excludes concurrent
// deletions of the same file across processes. Writes always precede the
// destructive delete, so a failure at any point leaves either the original
// or a complete validated chunk set.
package replace

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/chunkr/chunkr/engine/core"
	"github.com/chunkr/chunkr/pkg/logger"
)

const lockSuffix = ".delete.lock"

// Manager validates chunk sets and performs locked deletions.
type Manager struct {
	allowedBases []string
}

// NewManager restricts deletions to paths resolving under the given bases.
func NewManager(allowedBases ...string) *Manager {
	return &Manager{allowedBases: allowedBases}
}

type chunkState struct {
	size  int64
	mtime time.Time
}

// ReplaceOriginal deletes original once every chunk passes validation twice:
// once up front and once, size and mtime unchanged, immediately before the
// delete. A held lock is a non-fatal conflict; the caller keeps both the
// original and the chunks.
func (m *Manager) ReplaceOriginal(ctx context.Context, original string, chunkPaths []string) (deleted bool, err error) {
	resolved, err := ResolvePath(original, m.allowedBases)
	if err != nil {
		return false, err
	}
	if len(chunkPaths) == 0 {
		return false, fmt.Errorf("replace: no chunks declared for %q", resolved)
	}
	states, err := validateChunks(chunkPaths)
	if err != nil {
		return false, err
	}

	lockPath := resolved + lockSuffix
	lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return false, core.NewError(nil, core.CodeConcurrencyConflict,
				"deletion already in flight", map[string]any{"path": resolved})
		}
		return false, fmt.Errorf("replace: create lock %q: %w", lockPath, err)
	}
	// the artifact records which run holds it; useful when cleaning up stale locks
	fmt.Fprintf(lockFile, "owner=%s\n", uuid.NewString())
	lockFile.Close()

	guard := flock.New(lockPath)
	defer func() {
		if unlockErr := guard.Unlock(); unlockErr != nil {
			logger.FromContext(ctx).Warn("Failed to release delete lock", "path", lockPath, "error", unlockErr)
		}
		if removeErr := os.Remove(lockPath); removeErr != nil && !os.IsNotExist(removeErr) {
			logger.FromContext(ctx).Warn("Failed to remove lock artifact", "path", lockPath, "error", removeErr)
		}
	}()
	locked, err := guard.TryLock()
	if err != nil {
		return false, fmt.Errorf("replace: flock %q: %w", lockPath, err)
	}
	if !locked {
		return false, core.NewError(nil, core.CodeConcurrencyConflict,
			"advisory lock held by another process", map[string]any{"path": resolved})
	}

	// re-validate immediately before the destructive step: a chunk mutated
	// since the first pass means a concurrent writer is racing us
	if err := revalidateChunks(chunkPaths, states); err != nil {
		return false, err
	}
	if err := os.Remove(resolved); err != nil {
		return false, fmt.Errorf("replace: delete original %q: %w", resolved, err)
	}
	logger.FromContext(ctx).Debug("Original deleted after chunk validation",
		"path", resolved, "chunks", len(chunkPaths))
	return true, nil
}

// validateChunks verifies each chunk exists, is non-empty, and is readable,
// recording size and mtime for the pre-delete recheck.
func validateChunks(paths []string) (map[string]chunkState, error) {
	states := make(map[string]chunkState, len(paths))
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("replace: chunk missing %q: %w", path, err)
		}
		if info.Size() == 0 {
			return nil, fmt.Errorf("replace: chunk empty %q", path)
		}
		if err := testRead(path); err != nil {
			return nil, fmt.Errorf("replace: chunk unreadable %q: %w", path, err)
		}
		states[path] = chunkState{size: info.Size(), mtime: info.ModTime()}
	}
	return states, nil
}

func revalidateChunks(paths []string, states map[string]chunkState) error {
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("replace: chunk vanished before delete %q: %w", path, err)
		}
		prev := states[path]
		if info.Size() != prev.size || !info.ModTime().Equal(prev.mtime) {
			return fmt.Errorf("replace: chunk %q changed between validation and delete", path)
		}
	}
	return nil
}

func testRead(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()
	buf := make([]byte, 1)
	if _, err := file.Read(buf); err != nil && err != io.EOF {
		return err
	}
	return nil
}
