package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/claimward/pkg/db/pagination"
	"gorm.io/gorm"
)

// Repository executes the conditional single-row mutations the ledger is
// built on. Every method takes the connection handle so callers can route
// statements through an open transaction scope.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, bank *ClaimBank) error
	Get(ctx context.Context, db *gorm.DB, claimID snowflake.ID) (*ClaimBank, error)

	// AddBalance unconditionally increments balance. Returns false when the
	// bank row does not exist.
	AddBalance(ctx context.Context, db *gorm.DB, claimID snowflake.ID, amount int64, now time.Time) (bool, error)
	// DeductBalance decrements balance only while balance >= amount.
	DeductBalance(ctx context.Context, db *gorm.DB, claimID snowflake.ID, amount int64, now time.Time) (bool, error)
	// SetNextUpkeepDue updates the schedule field and nothing else.
	SetNextUpkeepDue(ctx context.Context, db *gorm.DB, claimID snowflake.ID, when time.Time, now time.Time) error
	// SetMinimumBalanceWarning updates the advisory threshold and nothing else.
	SetMinimumBalanceWarning(ctx context.Context, db *gorm.DB, claimID snowflake.ID, threshold int64, now time.Time) error

	// ChargeUpkeep applies the fused billing mutation: decrement balance,
	// stamp the payment, advance the schedule and clear grace, all gated on
	// sufficient balance, due-ness, and the payedBefore dedup bound.
	ChargeUpkeep(ctx context.Context, db *gorm.DB, claimID snowflake.ID, cost int64, now, nextDue, paidBefore time.Time) (bool, error)
	// RecoverFromGrace is the same mutation gated on an open grace period
	// instead of due-ness.
	RecoverFromGrace(ctx context.Context, db *gorm.DB, claimID snowflake.ID, cost int64, now, nextDue, paidBefore time.Time) (bool, error)
	// ClearGrace closes the grace period and re-schedules the next charge
	// without touching balance, gated on balance already covering cost.
	ClearGrace(ctx context.Context, db *gorm.DB, claimID snowflake.ID, cost int64, nextDue, now time.Time) (bool, error)
	// MarkGracePeriod opens the grace period for a due, unpaid, underfunded
	// claim. Set-once: an already-open grace period is left untouched.
	MarkGracePeriod(ctx context.Context, db *gorm.DB, claimID snowflake.ID, cost int64, now time.Time) (bool, error)

	ScanDue(ctx context.Context, db *gorm.DB, now time.Time, page pagination.Page) ([]*ClaimBank, error)
	ScanInGrace(ctx context.Context, db *gorm.DB, page pagination.Page) ([]*ClaimBank, error)
}
