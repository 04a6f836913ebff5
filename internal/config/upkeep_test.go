package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultUpkeepDefaultsAreValid(t *testing.T) {
	assert.NoError(t, validateUpkeepDefaults(DefaultUpkeepDefaults()))
}

func TestValidateUpkeepDefaults(t *testing.T) {
	base := DefaultUpkeepDefaults()

	negCost := base
	negCost.CostPerChunk = -1
	assert.Error(t, validateUpkeepDefaults(negCost))

	badDiscount := base
	badDiscount.DiscountPercent = 101
	assert.Error(t, validateUpkeepDefaults(badDiscount))

	zeroInterval := base
	zeroInterval.IntervalHours = 0
	assert.Error(t, validateUpkeepDefaults(zeroInterval))

	minOverInterval := base
	minOverInterval.MinIntervalHours = base.IntervalHours + 1
	assert.Error(t, validateUpkeepDefaults(minOverInterval))

	negGrace := base
	negGrace.GraceDays = -1
	assert.Error(t, validateUpkeepDefaults(negGrace))
}

func TestStaticHolderServesFixedDefaults(t *testing.T) {
	defaults := DefaultUpkeepDefaults()
	defaults.CostPerChunk = 99

	holder := NewStaticUpkeepDefaultsHolder(defaults)
	assert.Equal(t, int64(99), holder.Get().CostPerChunk)
}
