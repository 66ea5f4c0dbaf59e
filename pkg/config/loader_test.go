package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chunkr/chunkr/engine/core"
)

func TestLoad(t *testing.T) {
	t.Run("ShouldLoadDefaultsWithoutFile", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		assert.InDelta(t, 10.0, cfg.Processing.MaxFileSizeMB, 0.001)
		assert.Equal(t, 5, cfg.Limits.ChunkWorkers)
		assert.Contains(t, cfg.Processing.SupportedFormats, ".txt")
	})
	t.Run("ShouldApplyYAMLFileOverDefaults", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "chunkr.yaml")
		body := "processing:\n  max_file_size_mb: 2.5\n  delete_original: true\nlog:\n  level: debug\n"
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.InDelta(t, 2.5, cfg.Processing.MaxFileSizeMB, 0.001)
		assert.True(t, cfg.Processing.DeleteOriginal)
		assert.Equal(t, "debug", cfg.Log.Level)
		// untouched keys keep defaults
		assert.Equal(t, 1000, cfg.Processing.MaxFilesPerRun)
	})
	t.Run("ShouldApplyEnvOverFile", func(t *testing.T) {
		t.Setenv("CHUNKR_PROCESSING_MAX_FILE_SIZE_MB", "1")
		t.Setenv("CHUNKR_LIMITS_CHUNK_WORKERS", "2")
		cfg, err := Load("")
		require.NoError(t, err)
		assert.InDelta(t, 1.0, cfg.Processing.MaxFileSizeMB, 0.001)
		assert.Equal(t, 2, cfg.Limits.ChunkWorkers)
	})
	t.Run("ShouldSplitListEnvValues", func(t *testing.T) {
		t.Setenv("CHUNKR_PROCESSING_SUPPORTED_FORMATS", "txt, md,csv")
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, []string{".txt", ".md", ".csv"}, cfg.Processing.SupportedFormats)
	})
	t.Run("ShouldRejectInvalidValues", func(t *testing.T) {
		t.Setenv("CHUNKR_PROCESSING_MAX_FILE_SIZE_MB", "-3")
		_, err := Load("")
		require.Error(t, err)
		assert.True(t, core.IsCode(err, core.CodeConfigInvalid))
	})
	t.Run("ShouldRejectOverlapLargerThanBudget", func(t *testing.T) {
		t.Setenv("CHUNKR_PROCESSING_MAX_FILE_SIZE_MB", "0.0001")
		t.Setenv("CHUNKR_PROCESSING_CHUNK_OVERLAP", "5000")
		_, err := Load("")
		require.Error(t, err)
		assert.True(t, core.IsCode(err, core.CodeConfigInvalid))
	})
}
