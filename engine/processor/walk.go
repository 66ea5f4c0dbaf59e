package processor

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/chunkr/chunkr/engine/core"
	"github.com/chunkr/chunkr/engine/format"
	"github.com/chunkr/chunkr/engine/governor"
	"github.com/chunkr/chunkr/pkg/logger"
)

// Process walks dir and runs the pipeline on every matching file. The file
// list is snapshotted up front so chunks written during the run are never
// picked up as inputs. Run-level resource exhaustion stops the walk early
// and preserves results gathered so far.
func (p *Processor) Process(ctx context.Context, dir string, recursive bool) (*core.RunSummary, error) {
	log := logger.FromContext(ctx)
	paths, err := p.collectFiles(dir, recursive)
	if err != nil {
		return nil, err
	}
	log.Info("Starting directory run", "dir", dir, "files", len(paths), "recursive", recursive)

	budget := governor.NewBudget(&p.cfg.Processing)
	results := make(map[string]*core.Result, len(paths))
	for _, path := range paths {
		if ctx.Err() != nil {
			break
		}
		info, err := os.Stat(path)
		if err != nil {
			results[path] = errorResult(fmt.Errorf("processor: stat %q: %w", path, err))
			continue
		}
		// only files the pipeline will actually process draw down the budget
		if format.IsSupportedFormat(path, &p.cfg.Processing) {
			if err := budget.Admit(info.Size()); err != nil {
				log.Warn("Run budget exhausted, stopping early", "path", path, "error", err)
				break
			}
		}
		res, err := p.processFile(ctx, path)
		results[path] = res
		if core.IsCode(err, core.CodeResourceExhausted) {
			log.Warn("Disk headroom exhausted, stopping early", "path", path)
			break
		}
	}
	return &core.RunSummary{
		Config:         p.cfg.Processing.Snapshot(),
		Statistics:     p.stats.Snapshot(),
		ProcessedFiles: results,
	}, nil
}

// collectFiles gathers candidate paths, honoring recursion and the configured
// include patterns (matched against the slash-normalized path relative to dir).
func (p *Processor) collectFiles(dir string, recursive bool) ([]string, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("processor: absolutize %q: %w", dir, err)
	}
	var paths []string
	err = filepath.WalkDir(root, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if entry.IsDir() {
			if !recursive && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if !entry.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if !p.matchesIncludes(filepath.ToSlash(rel)) {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("processor: walk %q: %w", dir, err)
	}
	sort.Strings(paths)
	return paths, nil
}

func (p *Processor) matchesIncludes(rel string) bool {
	patterns := p.cfg.Processing.IncludePatterns
	if len(patterns) == 0 {
		return true
	}
	for _, pattern := range patterns {
		if ok, err := doublestar.Match(pattern, rel); err == nil && ok {
			return true
		}
	}
	return false
}
