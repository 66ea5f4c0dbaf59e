package governor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chunkr/chunkr/engine/core"
	"github.com/chunkr/chunkr/pkg/config"
)

func TestEstimateWorstCase(t *testing.T) {
	t.Run("ShouldAlwaysIncludeMinimumBuffer", func(t *testing.T) {
		estimate := EstimateWorstCase(1024, core.VariantTextLike, 512)
		assert.Greater(t, estimate, int64(minBufferBytes))
	})
	t.Run("ShouldScaleWithVariantMultiplier", func(t *testing.T) {
		doc := EstimateWorstCase(1<<30, core.VariantDocument, 1<<20)
		bin := EstimateWorstCase(1<<30, core.VariantBinary, 1<<20)
		assert.Greater(t, doc, bin)
	})
	t.Run("ShouldStayLinearInFileSize", func(t *testing.T) {
		// chunk count must never compound with the size multiplier: a 200MB
		// tabular file at a 2MB budget produces ~300MB of output, not ~30GB
		size := int64(200 << 20)
		estimate := EstimateWorstCase(size, core.VariantTabular, 2<<20)
		assert.Greater(t, estimate, size)
		assert.Less(t, estimate, 2*size+int64(minBufferBytes))
	})
}

func TestCheckDisk(t *testing.T) {
	t.Run("ShouldRefuseWhenFreeSpaceInsufficient", func(t *testing.T) {
		orig := statfs
		statfs = func(string) (int64, error) { return 1024, nil }
		defer func() { statfs = orig }()
		err := CheckDisk(t.TempDir(), 1<<20, core.VariantTextLike, 1<<19)
		require.Error(t, err)
		assert.True(t, core.IsCode(err, core.CodeResourceExhausted))
	})
	t.Run("ShouldAdmitWhenPlentyOfSpace", func(t *testing.T) {
		orig := statfs
		statfs = func(string) (int64, error) { return 1 << 40, nil }
		defer func() { statfs = orig }()
		require.NoError(t, CheckDisk(t.TempDir(), 1<<20, core.VariantTextLike, 1<<19))
	})
}

func TestBudget(t *testing.T) {
	t.Run("ShouldStopAtFileCeiling", func(t *testing.T) {
		cfg := config.Default().Processing
		cfg.MaxFilesPerRun = 2
		b := NewBudget(&cfg)
		require.NoError(t, b.Admit(10))
		require.NoError(t, b.Admit(10))
		err := b.Admit(10)
		require.Error(t, err)
		assert.True(t, core.IsCode(err, core.CodeResourceExhausted))
	})
	t.Run("ShouldStopAtSizeCeiling", func(t *testing.T) {
		cfg := config.Default().Processing
		cfg.MaxTotalSizeGB = 0.000001 // ~1KB
		b := NewBudget(&cfg)
		err := b.Admit(10 * 1024)
		require.Error(t, err)
	})
}
