package core

import (
	"path/filepath"
	"strings"
	"sync"
)

// -----------------------------------------------------------------------------
// File Variant
// -----------------------------------------------------------------------------

// Variant is the closed set of processing strategies. A file is classified
// exactly once; all downstream branching keys off the variant.
type Variant string

const (
	VariantTextLike Variant = "text_like"
	VariantTabular  Variant = "tabular"
	VariantDocument Variant = "document"
	VariantBinary   Variant = "binary"
)

// -----------------------------------------------------------------------------
// Processing Status
// -----------------------------------------------------------------------------

type Status string

const (
	StatusNoProcessingNeeded Status = "no_processing_needed"
	StatusSplit              Status = "split"
	StatusSkipped            Status = "skipped"
	StatusError              Status = "error"
)

// -----------------------------------------------------------------------------
// File Record
// -----------------------------------------------------------------------------

// FileRecord describes one input file for the duration of a ProcessFile call.
type FileRecord struct {
	Path     string
	Size     int64
	Ext      string
	Variant  Variant
	Encoding string // cached detection result, empty until detected
}

// NewFileRecord builds a record with a normalized absolute path and extension.
func NewFileRecord(path string, size int64) (*FileRecord, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	return &FileRecord{
		Path: abs,
		Size: size,
		Ext:  strings.ToLower(filepath.Ext(abs)),
	}, nil
}

// SizeMB returns the file size in megabytes.
func (r *FileRecord) SizeMB() float64 {
	return float64(r.Size) / (1024 * 1024)
}

// -----------------------------------------------------------------------------
// Result
// -----------------------------------------------------------------------------

// Result is the outcome of processing a single file.
type Result struct {
	Status          Status   `json:"status"              yaml:"status"`
	SizeMB          float64  `json:"size_mb,omitempty"   yaml:"size_mb,omitempty"`
	Chunks          int      `json:"chunks,omitempty"    yaml:"chunks,omitempty"`
	OutputFiles     []string `json:"output_files,omitempty" yaml:"output_files,omitempty"`
	OriginalDeleted bool     `json:"original_deleted,omitempty" yaml:"original_deleted,omitempty"`
	Reason          string   `json:"reason,omitempty"    yaml:"reason,omitempty"`
	Error           string   `json:"error,omitempty"     yaml:"error,omitempty"`
}

// -----------------------------------------------------------------------------
// Run Summary & Statistics
// -----------------------------------------------------------------------------

// Stats aggregates counters across one directory run.
type Stats struct {
	FilesProcessed     int   `json:"files_processed"      yaml:"files_processed"`
	FilesSplit         int   `json:"files_split"          yaml:"files_split"`
	ChunksCreated      int   `json:"chunks_created"       yaml:"chunks_created"`
	TotalSizeProcessed int64 `json:"total_size_processed" yaml:"total_size_processed"`
}

// StatTracker guards run statistics behind a dedicated lock.
type StatTracker struct {
	mu    sync.Mutex
	stats Stats
}

// Record folds one file result into the running totals.
func (t *StatTracker) Record(res *Result, size int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.FilesProcessed++
	t.stats.TotalSizeProcessed += size
	if res.Status == StatusSplit {
		t.stats.FilesSplit++
		t.stats.ChunksCreated += res.Chunks
	}
}

// Snapshot returns a copy of the current counters.
func (t *StatTracker) Snapshot() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

// RunSummary is the aggregate returned by a directory walk.
type RunSummary struct {
	Config         map[string]any     `json:"config"          yaml:"config"`
	Statistics     Stats              `json:"statistics"      yaml:"statistics"`
	ProcessedFiles map[string]*Result `json:"processed_files" yaml:"processed_files"`
}
