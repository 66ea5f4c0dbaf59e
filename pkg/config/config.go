package config

import (
	"fmt"
	"time"
)

// Config is the full runtime configuration. It is loaded once per run and
// treated as immutable afterwards.
type Config struct {
	Processing ProcessingConfig `koanf:"processing" validate:"required"`
	Limits     LimitsConfig     `koanf:"limits"     validate:"required"`
	Log        LogConfig        `koanf:"log"`
}

// ProcessingConfig controls the per-file chunking decisions.
type ProcessingConfig struct {
	// MaxFileSizeMB is the split threshold; files strictly above it are chunked.
	MaxFileSizeMB float64 `koanf:"max_file_size_mb" validate:"gt=0"           env:"PROCESSING_MAX_FILE_SIZE_MB"`
	// ChunkOverlap is the character overlap carried between adjacent text chunks.
	ChunkOverlap int `koanf:"chunk_overlap" validate:"min=0" env:"PROCESSING_CHUNK_OVERLAP"`
	// PreserveStructure keeps structural splitters engaged even for plain hints.
	PreserveStructure bool `koanf:"preserve_structure" env:"PROCESSING_PRESERVE_STRUCTURE"`
	// DeleteOriginal removes the source file once every chunk validates.
	DeleteOriginal bool `koanf:"delete_original" env:"PROCESSING_DELETE_ORIGINAL"`
	// SupportedFormats is the extension allow-list (leading dot, lower case).
	SupportedFormats []string `koanf:"supported_formats" validate:"min=1" env:"PROCESSING_SUPPORTED_FORMATS"`
	// MaxTotalSizeGB caps the cumulative bytes a single run may process.
	MaxTotalSizeGB float64 `koanf:"max_total_size_gb" validate:"gt=0" env:"PROCESSING_MAX_TOTAL_SIZE_GB"`
	// MaxFilesPerRun caps how many files a single run may process.
	MaxFilesPerRun int `koanf:"max_files_per_run" validate:"gt=0" env:"PROCESSING_MAX_FILES_PER_RUN"`
	// IncludePatterns optionally restricts the directory walk to matching globs.
	IncludePatterns []string `koanf:"include_patterns" env:"PROCESSING_INCLUDE_PATTERNS"`
}

// LimitsConfig bounds memory and concurrency for the chunking engine.
type LimitsConfig struct {
	// MemoryCeilingMB is the ceiling the tabular streamer budgets against.
	MemoryCeilingMB int `koanf:"memory_ceiling_mb" validate:"gt=0" env:"LIMITS_MEMORY_CEILING_MB"`
	// ChunkWorkers bounds concurrent chunking operations.
	ChunkWorkers int `koanf:"chunk_workers" validate:"gt=0" env:"LIMITS_CHUNK_WORKERS"`
	// ChunkBaseTimeout is the floor of the per-invocation chunking timeout.
	ChunkBaseTimeout time.Duration `koanf:"chunk_base_timeout" validate:"gt=0" env:"LIMITS_CHUNK_BASE_TIMEOUT"`
	// ChunkMaxTimeout caps the size-proportional chunking timeout.
	ChunkMaxTimeout time.Duration `koanf:"chunk_max_timeout" validate:"gt=0" env:"LIMITS_CHUNK_MAX_TIMEOUT"`
	// EncodingCacheSize bounds the per-processor encoding LRU.
	EncodingCacheSize int `koanf:"encoding_cache_size" validate:"gt=0" env:"LIMITS_ENCODING_CACHE_SIZE"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	Level string `koanf:"level" validate:"omitempty,oneof=debug info warn error" env:"LOG_LEVEL"`
	JSON  bool   `koanf:"json"  env:"LOG_JSON"`
}

// Default returns the baseline configuration every run starts from.
func Default() *Config {
	return &Config{
		Processing: ProcessingConfig{
			MaxFileSizeMB:     10,
			ChunkOverlap:      100,
			PreserveStructure: true,
			DeleteOriginal:    false,
			SupportedFormats: []string{
				".txt", ".md", ".markdown", ".rst", ".log",
				".csv", ".tsv",
				".pdf", ".html", ".htm", ".xml",
				".json", ".yaml", ".yml", ".toml", ".ini",
				".go", ".py", ".js", ".ts", ".java", ".c", ".cpp", ".h", ".rs", ".rb", ".sh", ".sql",
				".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tiff",
			},
			MaxTotalSizeGB: 10,
			MaxFilesPerRun: 1000,
		},
		Limits: LimitsConfig{
			MemoryCeilingMB:   512,
			ChunkWorkers:      5,
			ChunkBaseTimeout:  5 * time.Second,
			ChunkMaxTimeout:   30 * time.Second,
			EncodingCacheSize: 1000,
		},
		Log: LogConfig{Level: "info"},
	}
}

// MaxFileSizeBytes converts the MB threshold to bytes with the 1-byte safety
// margin applied by the size gate.
func (p *ProcessingConfig) MaxFileSizeBytes() int64 {
	return int64(p.MaxFileSizeMB*1024*1024) - 1
}

// MaxTotalSizeBytes converts the run budget to bytes.
func (p *ProcessingConfig) MaxTotalSizeBytes() int64 {
	return int64(p.MaxTotalSizeGB * 1024 * 1024 * 1024)
}

// Snapshot returns the subset of processing options echoed in run summaries.
func (p *ProcessingConfig) Snapshot() map[string]any {
	return map[string]any{
		"max_file_size_mb":   p.MaxFileSizeMB,
		"chunk_overlap":      p.ChunkOverlap,
		"preserve_structure": p.PreserveStructure,
		"delete_original":    p.DeleteOriginal,
		"supported_formats":  append([]string(nil), p.SupportedFormats...),
		"max_total_size_gb":  p.MaxTotalSizeGB,
		"max_files_per_run":  p.MaxFilesPerRun,
	}
}

func (c *Config) validateSemantics() error {
	if c.Limits.ChunkMaxTimeout < c.Limits.ChunkBaseTimeout {
		return fmt.Errorf("config: chunk_max_timeout %s must be >= chunk_base_timeout %s",
			c.Limits.ChunkMaxTimeout, c.Limits.ChunkBaseTimeout)
	}
	maxBytes := c.Processing.MaxFileSizeBytes()
	if maxBytes <= 0 {
		return fmt.Errorf("config: max_file_size_mb %.3f is below the 1-byte safety margin", c.Processing.MaxFileSizeMB)
	}
	if int64(c.Processing.ChunkOverlap) >= maxBytes {
		return fmt.Errorf("config: chunk_overlap %d must be smaller than the chunk byte budget %d",
			c.Processing.ChunkOverlap, maxBytes)
	}
	return nil
}
