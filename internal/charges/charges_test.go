package charges

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeServiceCharge(t *testing.T) {
	tests := []struct {
		name     string
		fare     int64
		expected int64
	}{
		{"half rounds up", 100, 2},
		{"smallest fare", 10, 0},
		{"first tier upper bound", 500, 8},
		{"second tier lower bound", 501, 6},
		{"second tier upper bound", 1000, 12},
		{"third tier", 1500, 15},
		{"third tier upper bound", 2000, 20},
		{"fourth tier", 3000, 24},
		{"ceiling", 150000, 1200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ComputeServiceCharge(tt.fare))
		})
	}
}

func TestComputeServiceCharge_HalfCasesUseExactArithmetic(t *testing.T) {
	// 300 * 1.5% is exactly 4.5
	assert.Equal(t, int64(5), ComputeServiceCharge(300))
	assert.Equal(t, int64(9), ComputeServiceCharge(750))
	assert.Equal(t, int64(4), ComputeServiceCharge(250))
	assert.Equal(t, int64(17), ComputeServiceCharge(2125))
	assert.Equal(t, int64(15), ComputeServiceCharge(1450))
}

func TestTierPercent(t *testing.T) {
	assert.True(t, TierPercent(500).Equal(decimal.RequireFromString("1.5")))
	assert.True(t, TierPercent(501).Equal(decimal.RequireFromString("1.2")))
	assert.True(t, TierPercent(2001).Equal(decimal.RequireFromString("0.8")))
}

func TestComputeSplit(t *testing.T) {
	ten := decimal.NewFromInt(10)

	t.Run("single unit charge stays with owner", func(t *testing.T) {
		split, err := ComputeSplit(1, ten)
		require.NoError(t, err)
		assert.Equal(t, Split{OwnerShare: 1, PlatformShare: 0}, split)
	})

	t.Run("regular split", func(t *testing.T) {
		split, err := ComputeSplit(24, ten)
		require.NoError(t, err)
		assert.Equal(t, int64(2), split.PlatformShare)
		assert.Equal(t, int64(22), split.OwnerShare)
	})

	t.Run("owner keeps one unit at full platform share", func(t *testing.T) {
		split, err := ComputeSplit(5, decimal.NewFromInt(100))
		require.NoError(t, err)
		assert.Equal(t, Split{OwnerShare: 1, PlatformShare: 4}, split)
	})

	t.Run("platform share rounds half up", func(t *testing.T) {
		split, err := ComputeSplit(15, ten)
		require.NoError(t, err)
		assert.Equal(t, int64(2), split.PlatformShare)
		assert.Equal(t, int64(13), split.OwnerShare)
	})

	t.Run("zero percent", func(t *testing.T) {
		split, err := ComputeSplit(12, decimal.Zero)
		require.NoError(t, err)
		assert.Equal(t, Split{OwnerShare: 12, PlatformShare: 0}, split)
	})

	t.Run("invalid charge", func(t *testing.T) {
		_, err := ComputeSplit(0, ten)
		assert.ErrorIs(t, err, ErrInvalidCharge)
	})

	t.Run("invalid percentage", func(t *testing.T) {
		_, err := ComputeSplit(10, decimal.NewFromInt(101))
		assert.ErrorIs(t, err, ErrInvalidPercentage)

		_, err = ComputeSplit(10, decimal.NewFromInt(-1))
		assert.ErrorIs(t, err, ErrInvalidPercentage)
	})
}

func TestComputeSplit_SharesAlwaysSumToCharge(t *testing.T) {
	percents := []string{"0", "2.5", "10", "33.3", "50", "99.9", "100"}
	for charge := int64(1); charge <= 1200; charge++ {
		for _, p := range percents {
			split, err := ComputeSplit(charge, decimal.RequireFromString(p))
			require.NoError(t, err)
			assert.Equal(t, charge, split.OwnerShare+split.PlatformShare, "charge=%d percent=%s", charge, p)
			assert.GreaterOrEqual(t, split.PlatformShare, int64(0))
			if charge > 1 {
				assert.GreaterOrEqual(t, split.OwnerShare, int64(1))
			}
		}
	}
}
