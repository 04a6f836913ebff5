package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// UpkeepConfig holds the per-claim billing knobs. A row is created lazily
// from the server-wide defaults on first access and overridden per claim
// afterwards.
type UpkeepConfig struct {
	ID      snowflake.ID `gorm:"primaryKey"`
	ClaimID snowflake.ID `gorm:"not null;uniqueIndex:ux_claim_upkeep_configs_claim"`
	// CostPerChunk is the upkeep charge per owned chunk, in minor units.
	CostPerChunk int64 `gorm:"not null"`
	// DiscountPercent reduces the computed upkeep cost, 0..100.
	DiscountPercent int `gorm:"not null"`
	// GraceDays is how long this claim keeps its chunks while insolvent.
	GraceDays int `gorm:"not null"`
	// AutoUnclaim releases chunks when the grace period expires.
	AutoUnclaim bool `gorm:"not null"`
	// NotificationsSent counts insolvency warnings emitted for the current
	// grace period. Reset when the claim recovers.
	NotificationsSent int       `gorm:"not null;default:0"`
	CreatedAt         time.Time `gorm:"not null"`
	UpdatedAt         time.Time `gorm:"not null"`
}

// TableName sets the database table name.
func (UpkeepConfig) TableName() string { return "claim_upkeep_configs" }

// EffectiveCost is the upkeep charge for a claim owning the given number of
// chunks, after the discount. Never negative.
func (c UpkeepConfig) EffectiveCost(chunks int64) int64 {
	if chunks <= 0 {
		return 0
	}
	gross := c.CostPerChunk * chunks
	discount := c.DiscountPercent
	if discount <= 0 {
		return gross
	}
	if discount >= 100 {
		return 0
	}
	return gross - gross*int64(discount)/100
}

// GracePeriod returns GraceDays as a duration.
func (c UpkeepConfig) GracePeriod() time.Duration {
	return time.Duration(c.GraceDays) * 24 * time.Hour
}

// Patch is a partial per-claim override. Nil fields keep the stored value.
type Patch struct {
	CostPerChunk    *int64
	DiscountPercent *int
	GraceDays       *int
	AutoUnclaim     *bool
}

var (
	ErrInvalidClaim    = errors.New("invalid_claim_id")
	ErrInvalidDiscount = errors.New("invalid_discount_percent")
	ErrInvalidCost     = errors.New("invalid_cost_per_chunk")
	ErrInvalidGrace    = errors.New("invalid_grace_days")
	ErrConfigNotFound  = errors.New("upkeep_config_not_found")
)
