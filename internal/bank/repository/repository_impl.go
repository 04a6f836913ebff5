package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/claimward/internal/bank/domain"
	"github.com/smallbiznis/claimward/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, bank *domain.ClaimBank) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO claim_banks (
			claim_id, balance, minimum_balance_warning,
			last_upkeep_payment, next_upkeep_due, grace_period_start,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		bank.ClaimID,
		bank.Balance,
		bank.MinimumBalanceWarning,
		bank.LastUpkeepPayment,
		bank.NextUpkeepDue,
		bank.GracePeriodStart,
		bank.CreatedAt,
		bank.UpdatedAt,
	).Error
}

func (r *repo) Get(ctx context.Context, db *gorm.DB, claimID snowflake.ID) (*domain.ClaimBank, error) {
	var bank domain.ClaimBank
	err := db.WithContext(ctx).
		Where("claim_id = ?", claimID).
		First(&bank).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &bank, nil
}

func (r *repo) AddBalance(ctx context.Context, db *gorm.DB, claimID snowflake.ID, amount int64, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE claim_banks
		 SET balance = balance + ?, updated_at = ?
		 WHERE claim_id = ?`,
		amount,
		now,
		claimID,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) DeductBalance(ctx context.Context, db *gorm.DB, claimID snowflake.ID, amount int64, now time.Time) (bool, error) {
	// Fused check-and-write: two racing withdrawals cannot both observe a
	// sufficient balance.
	result := db.WithContext(ctx).Exec(
		`UPDATE claim_banks
		 SET balance = balance - ?, updated_at = ?
		 WHERE claim_id = ? AND balance >= ?`,
		amount,
		now,
		claimID,
		amount,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) SetNextUpkeepDue(ctx context.Context, db *gorm.DB, claimID snowflake.ID, when time.Time, now time.Time) error {
	result := db.WithContext(ctx).Exec(
		`UPDATE claim_banks
		 SET next_upkeep_due = ?, updated_at = ?
		 WHERE claim_id = ?`,
		when,
		now,
		claimID,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrBankNotFound
	}
	return nil
}

func (r *repo) SetMinimumBalanceWarning(ctx context.Context, db *gorm.DB, claimID snowflake.ID, threshold int64, now time.Time) error {
	result := db.WithContext(ctx).Exec(
		`UPDATE claim_banks
		 SET minimum_balance_warning = ?, updated_at = ?
		 WHERE claim_id = ?`,
		threshold,
		now,
		claimID,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrBankNotFound
	}
	return nil
}

func (r *repo) ChargeUpkeep(ctx context.Context, db *gorm.DB, claimID snowflake.ID, cost int64, now, nextDue, paidBefore time.Time) (bool, error) {
	// The paidBefore bound is the dedup guard: a claim paid inside the
	// current window is never charged again, even if a stale writer reset
	// next_upkeep_due backward or restored an old grace_period_start.
	result := db.WithContext(ctx).Exec(
		`UPDATE claim_banks
		 SET balance = balance - ?,
		     last_upkeep_payment = ?,
		     next_upkeep_due = ?,
		     grace_period_start = NULL,
		     updated_at = ?
		 WHERE claim_id = ?
		   AND balance >= ?
		   AND next_upkeep_due IS NOT NULL
		   AND next_upkeep_due <= ?
		   AND (last_upkeep_payment IS NULL OR last_upkeep_payment <= ?)`,
		cost,
		now,
		nextDue,
		now,
		claimID,
		cost,
		now,
		paidBefore,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) RecoverFromGrace(ctx context.Context, db *gorm.DB, claimID snowflake.ID, cost int64, now, nextDue, paidBefore time.Time) (bool, error) {
	// Gated on the open grace period rather than due-ness so recovery and
	// the normal billing pass cannot both fire for one insolvency episode.
	result := db.WithContext(ctx).Exec(
		`UPDATE claim_banks
		 SET balance = balance - ?,
		     last_upkeep_payment = ?,
		     next_upkeep_due = ?,
		     grace_period_start = NULL,
		     updated_at = ?
		 WHERE claim_id = ?
		   AND balance >= ?
		   AND grace_period_start IS NOT NULL
		   AND (last_upkeep_payment IS NULL OR last_upkeep_payment <= ?)`,
		cost,
		now,
		nextDue,
		now,
		claimID,
		cost,
		paidBefore,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) ClearGrace(ctx context.Context, db *gorm.DB, claimID snowflake.ID, cost int64, nextDue, now time.Time) (bool, error) {
	// Self-healing step, not a billing event: balance is never touched.
	result := db.WithContext(ctx).Exec(
		`UPDATE claim_banks
		 SET grace_period_start = NULL,
		     next_upkeep_due = ?,
		     updated_at = ?
		 WHERE claim_id = ?
		   AND grace_period_start IS NOT NULL
		   AND balance >= ?`,
		nextDue,
		now,
		claimID,
		cost,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) MarkGracePeriod(ctx context.Context, db *gorm.DB, claimID snowflake.ID, cost int64, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE claim_banks
		 SET grace_period_start = COALESCE(grace_period_start, ?),
		     updated_at = ?
		 WHERE claim_id = ?
		   AND grace_period_start IS NULL
		   AND balance < ?
		   AND next_upkeep_due IS NOT NULL
		   AND next_upkeep_due <= ?`,
		now,
		now,
		claimID,
		cost,
		now,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) ScanDue(ctx context.Context, db *gorm.DB, now time.Time, page pagination.Page) ([]*domain.ClaimBank, error) {
	var banks []*domain.ClaimBank
	stmt := db.WithContext(ctx).
		Where("next_upkeep_due IS NOT NULL AND next_upkeep_due <= ?", now).
		Where("grace_period_start IS NULL").
		Order("next_upkeep_due ASC, claim_id ASC")
	if page.Bounded() {
		stmt = stmt.Offset(page.Offset).Limit(page.Size)
	}
	if err := stmt.Find(&banks).Error; err != nil {
		return nil, err
	}
	return banks, nil
}

func (r *repo) ScanInGrace(ctx context.Context, db *gorm.DB, page pagination.Page) ([]*domain.ClaimBank, error) {
	var banks []*domain.ClaimBank
	stmt := db.WithContext(ctx).
		Where("grace_period_start IS NOT NULL").
		Order("grace_period_start ASC, claim_id ASC")
	if page.Bounded() {
		stmt = stmt.Offset(page.Offset).Limit(page.Size)
	}
	if err := stmt.Find(&banks).Error; err != nil {
		return nil, err
	}
	return banks, nil
}
