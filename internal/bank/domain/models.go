package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// UpkeepState is the billing state derived from a bank row.
type UpkeepState string

const (
	UpkeepStateNotDue UpkeepState = "not_due"
	UpkeepStateDue    UpkeepState = "due"
	UpkeepStateGrace  UpkeepState = "grace"
)

// ClaimBank is the per-claim ledger row. Once created it is never saved
// whole: every mutation is field-scoped or condition-gated so concurrent
// writers cannot resurrect cleared billing state.
type ClaimBank struct {
	ClaimID               snowflake.ID `gorm:"primaryKey;column:claim_id"`
	Balance               int64        `gorm:"not null;default:0"`
	MinimumBalanceWarning int64        `gorm:"not null;default:0"`
	LastUpkeepPayment     *time.Time
	NextUpkeepDue         *time.Time `gorm:"index"`
	GracePeriodStart      *time.Time `gorm:"index"`
	CreatedAt             time.Time  `gorm:"not null"`
	UpdatedAt             time.Time  `gorm:"not null"`
}

// TableName sets the database table name.
func (ClaimBank) TableName() string { return "claim_banks" }

// State derives the upkeep state machine position at the given instant.
// GracePeriodStart and a due, unpaid charge together mean "insolvent since
// T", so grace dominates due-ness here.
func (b *ClaimBank) State(now time.Time) UpkeepState {
	if b.GracePeriodStart != nil {
		return UpkeepStateGrace
	}
	if b.NextUpkeepDue != nil && !now.Before(*b.NextUpkeepDue) {
		return UpkeepStateDue
	}
	return UpkeepStateNotDue
}

// InGraceLongerThan reports whether the claim has been insolvent for at
// least d as of now.
func (b *ClaimBank) InGraceLongerThan(now time.Time, d time.Duration) bool {
	if b.GracePeriodStart == nil {
		return false
	}
	return !now.Before(b.GracePeriodStart.Add(d))
}
