package replace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/chunkr/chunkr/engine/core"
)

// maxResolveDepth bounds symlink resolution.
const maxResolveDepth = 20

type inodeKey struct {
	dev uint64
	ino uint64
}

// ResolvePath resolves symlinks iteratively, tracking visited (device, inode)
// pairs to detect cycles, and rejects any path that normalizes outside the
// allowed base directories.
func ResolvePath(path string, allowedBases []string) (string, error) {
	current, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("replace: absolutize %q: %w", path, err)
	}
	visited := make(map[inodeKey]struct{})
	for depth := 0; ; depth++ {
		if depth >= maxResolveDepth {
			return "", core.NewError(nil, core.CodeSymlinkLoop,
				"symlink resolution depth exceeded", map[string]any{"path": path, "depth": depth})
		}
		info, err := os.Lstat(current)
		if err != nil {
			return "", fmt.Errorf("replace: lstat %q: %w", current, err)
		}
		if info.Mode()&os.ModeSymlink == 0 {
			break
		}
		if stat, ok := info.Sys().(*syscall.Stat_t); ok {
			key := inodeKey{dev: uint64(stat.Dev), ino: stat.Ino}
			if _, seen := visited[key]; seen {
				return "", core.NewError(nil, core.CodeSymlinkLoop,
					"cyclic symlink chain", map[string]any{"path": path})
			}
			visited[key] = struct{}{}
		}
		target, err := os.Readlink(current)
		if err != nil {
			return "", fmt.Errorf("replace: readlink %q: %w", current, err)
		}
		if !filepath.IsAbs(target) {
			target = filepath.Join(filepath.Dir(current), target)
		}
		current = filepath.Clean(target)
	}
	// normalize symlinked parent directories so base comparison is stable
	if parent, err := filepath.EvalSymlinks(filepath.Dir(current)); err == nil {
		current = filepath.Join(parent, filepath.Base(current))
	}
	if err := checkWithinBases(current, allowedBases); err != nil {
		return "", err
	}
	return current, nil
}

func checkWithinBases(resolved string, allowedBases []string) error {
	if len(allowedBases) == 0 {
		return nil
	}
	for _, base := range allowedBases {
		absBase, err := filepath.Abs(base)
		if err != nil {
			continue
		}
		if realBase, err := filepath.EvalSymlinks(absBase); err == nil {
			absBase = realBase
		}
		rel, err := filepath.Rel(absBase, resolved)
		if err != nil {
			continue
		}
		if rel == "." || (!strings.HasPrefix(rel, ".."+string(os.PathSeparator)) && rel != "..") {
			return nil
		}
	}
	return core.NewError(nil, core.CodePathTraversal,
		"path resolves outside allowed base directories",
		map[string]any{"resolved": resolved})
}
