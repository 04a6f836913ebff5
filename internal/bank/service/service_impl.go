package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/claimward/internal/bank/domain"
	"github.com/smallbiznis/claimward/internal/clock"
	obsmetrics "github.com/smallbiznis/claimward/internal/observability/metrics"
	"github.com/smallbiznis/claimward/internal/txn"
	"github.com/smallbiznis/claimward/pkg/db"
	"github.com/smallbiznis/claimward/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	repo  domain.Repository
}

func NewService(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("bank.service"),
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) handle(ctx context.Context) *gorm.DB {
	return txn.Handle(ctx, s.db)
}

func (s *Service) GetOrCreateBank(ctx context.Context, claimID snowflake.ID) (*domain.ClaimBank, error) {
	if claimID == 0 {
		return nil, domain.ErrInvalidClaim
	}

	conn := s.handle(ctx)
	bank, err := s.repo.Get(ctx, conn, claimID)
	if err != nil {
		return nil, err
	}
	if bank != nil {
		return bank, nil
	}

	now := s.clock.Now()
	fresh := &domain.ClaimBank{
		ClaimID:   claimID,
		Balance:   0,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Insert(ctx, conn, fresh); err != nil {
		// Lost the insert race; the winner's row is authoritative.
		if db.IsDuplicateKeyErr(err) {
			return s.repo.Get(ctx, conn, claimID)
		}
		return nil, fmt.Errorf("create claim bank: %w", err)
	}
	return fresh, nil
}

func (s *Service) GetBank(ctx context.Context, claimID snowflake.ID) (*domain.ClaimBank, error) {
	if claimID == 0 {
		return nil, domain.ErrInvalidClaim
	}
	bank, err := s.repo.Get(ctx, s.handle(ctx), claimID)
	if err != nil {
		return nil, err
	}
	if bank == nil {
		return nil, domain.ErrBankNotFound
	}
	return bank, nil
}

func (s *Service) Deposit(ctx context.Context, claimID snowflake.ID, amount int64) error {
	if claimID == 0 {
		return domain.ErrInvalidClaim
	}
	if amount < 0 {
		return domain.ErrInvalidAmount
	}
	if amount == 0 {
		return nil
	}

	applied, err := s.repo.AddBalance(ctx, s.handle(ctx), claimID, amount, s.clock.Now())
	if err != nil {
		return err
	}
	if !applied {
		return domain.ErrBankNotFound
	}
	return nil
}

func (s *Service) Withdraw(ctx context.Context, claimID snowflake.ID, amount int64) (bool, error) {
	if claimID == 0 {
		return false, domain.ErrInvalidClaim
	}
	if amount < 0 {
		return false, domain.ErrInvalidAmount
	}
	if amount == 0 {
		return true, nil
	}

	return s.repo.DeductBalance(ctx, s.handle(ctx), claimID, amount, s.clock.Now())
}

func (s *Service) UpdateNextUpkeepDue(ctx context.Context, claimID snowflake.ID, when time.Time) error {
	if claimID == 0 {
		return domain.ErrInvalidClaim
	}
	return s.repo.SetNextUpkeepDue(ctx, s.handle(ctx), claimID, when.UTC(), s.clock.Now())
}

func (s *Service) SetMinimumBalanceWarning(ctx context.Context, claimID snowflake.ID, threshold int64) error {
	if claimID == 0 {
		return domain.ErrInvalidClaim
	}
	if threshold < 0 {
		return domain.ErrInvalidAmount
	}
	return s.repo.SetMinimumBalanceWarning(ctx, s.handle(ctx), claimID, threshold, s.clock.Now())
}

func (s *Service) ChargeUpkeep(ctx context.Context, claimID snowflake.ID, cost int64, nextDue time.Time, minInterval time.Duration) (bool, error) {
	if claimID == 0 {
		return false, domain.ErrInvalidClaim
	}
	if cost < 0 {
		return false, domain.ErrInvalidAmount
	}

	now := s.clock.Now()
	applied, err := s.repo.ChargeUpkeep(ctx, s.handle(ctx), claimID, cost, now, nextDue.UTC(), now.Add(-minInterval))
	if err != nil {
		return false, err
	}
	if applied {
		s.log.Debug("upkeep charged",
			zap.String("claim_id", claimID.String()),
			zap.Int64("cost", cost),
			zap.Time("next_due", nextDue),
		)
		obsmetrics.Engine().IncChargeOutcome(obsmetrics.ChargeOutcomeApplied)
	}
	return applied, nil
}

func (s *Service) RecoverFromGrace(ctx context.Context, claimID snowflake.ID, cost int64, nextDue time.Time, minInterval time.Duration) (bool, error) {
	if claimID == 0 {
		return false, domain.ErrInvalidClaim
	}
	if cost < 0 {
		return false, domain.ErrInvalidAmount
	}

	now := s.clock.Now()
	applied, err := s.repo.RecoverFromGrace(ctx, s.handle(ctx), claimID, cost, now, nextDue.UTC(), now.Add(-minInterval))
	if err != nil {
		return false, err
	}
	if applied {
		s.log.Info("claim recovered from grace",
			zap.String("claim_id", claimID.String()),
			zap.Int64("cost", cost),
		)
		obsmetrics.Engine().IncGraceTransition(obsmetrics.GraceTransitionRecovered)
	}
	return applied, nil
}

func (s *Service) ClearGraceIfFunded(ctx context.Context, claimID snowflake.ID, cost int64, interval time.Duration) (bool, error) {
	if claimID == 0 {
		return false, domain.ErrInvalidClaim
	}
	if cost < 0 {
		return false, domain.ErrInvalidAmount
	}

	now := s.clock.Now()
	cleared, err := s.repo.ClearGrace(ctx, s.handle(ctx), claimID, cost, now.Add(interval), now)
	if err != nil {
		return false, err
	}
	if cleared {
		s.log.Info("grace cleared without charge",
			zap.String("claim_id", claimID.String()),
		)
		obsmetrics.Engine().IncGraceTransition(obsmetrics.GraceTransitionCleared)
	}
	return cleared, nil
}

func (s *Service) MarkGracePeriod(ctx context.Context, claimID snowflake.ID, cost int64) (bool, error) {
	if claimID == 0 {
		return false, domain.ErrInvalidClaim
	}

	marked, err := s.repo.MarkGracePeriod(ctx, s.handle(ctx), claimID, cost, s.clock.Now())
	if err != nil {
		return false, err
	}
	if marked {
		s.log.Warn("claim entered grace period",
			zap.String("claim_id", claimID.String()),
			zap.Int64("cost", cost),
		)
		obsmetrics.Engine().IncGraceTransition(obsmetrics.GraceTransitionEntered)
	}
	return marked, nil
}

func (s *Service) ScanDue(ctx context.Context, page pagination.Page) ([]*domain.ClaimBank, error) {
	return s.repo.ScanDue(ctx, s.handle(ctx), s.clock.Now(), page)
}

func (s *Service) ScanInGrace(ctx context.Context, page pagination.Page) ([]*domain.ClaimBank, error) {
	return s.repo.ScanInGrace(ctx, s.handle(ctx), page)
}
