// Package upkeep drives the per-claim billing state machine. Claims move
// NOT_DUE -> DUE on the schedule stored in their bank row, DUE -> PAID via a
// single conditional charge, and DUE -> GRACE when underfunded. Grace ends
// by recovery (a late charge), by replenishment (no charge), or by expiry
// (forfeiture of every owned chunk).
package upkeep

import (
	"context"
	"time"

	bankdomain "github.com/smallbiznis/claimward/internal/bank/domain"
	claimdomain "github.com/smallbiznis/claimward/internal/claim/domain"
	"github.com/smallbiznis/claimward/internal/clock"
	"github.com/smallbiznis/claimward/internal/config"
	"github.com/smallbiznis/claimward/internal/observability/metrics"
	settingsdomain "github.com/smallbiznis/claimward/internal/settings/domain"
	transferdomain "github.com/smallbiznis/claimward/internal/transfer/domain"
	"github.com/smallbiznis/claimward/internal/txn"
	"github.com/smallbiznis/claimward/internal/upkeep/guard"
	"github.com/smallbiznis/claimward/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Clock     clock.Clock
	Defaults  *config.UpkeepDefaultsHolder
	Banks     bankdomain.Service
	Chunks    claimdomain.Repository
	Settings  settingsdomain.Service
	Transfers transferdomain.Service
}

// Engine runs the billing jobs. Each job pages over a bank scan and applies
// conditional mutations; a failed page aborts the pass and the next tick
// retries from the top.
type Engine struct {
	db        *gorm.DB
	log       *zap.Logger
	clock     clock.Clock
	defaults  *config.UpkeepDefaultsHolder
	banks     bankdomain.Service
	chunks    claimdomain.Repository
	settings  settingsdomain.Service
	transfers transferdomain.Service
	metrics   *metrics.EngineMetrics
}

func NewEngine(p Params) *Engine {
	return &Engine{
		db:        p.DB,
		log:       p.Log.Named("upkeep.engine"),
		clock:     p.Clock,
		defaults:  p.Defaults,
		banks:     p.Banks,
		chunks:    p.Chunks,
		settings:  p.Settings,
		transfers: p.Transfers,
		metrics:   metrics.Engine(),
	}
}

func (e *Engine) interval() time.Duration {
	return time.Duration(e.defaults.Get().IntervalHours) * time.Hour
}

func (e *Engine) minInterval() time.Duration {
	return time.Duration(e.defaults.Get().MinIntervalHours) * time.Hour
}

// costFor resolves the claim's effective upkeep cost from its config row and
// current chunk count.
func (e *Engine) costFor(ctx context.Context, bank *bankdomain.ClaimBank) (settingsdomain.UpkeepConfig, int64, error) {
	cfg, err := e.settings.GetForClaim(ctx, bank.ClaimID)
	if err != nil {
		return settingsdomain.UpkeepConfig{}, 0, err
	}
	chunks, err := e.chunks.CountByClaim(ctx, txn.Handle(ctx, e.db), bank.ClaimID)
	if err != nil {
		return settingsdomain.UpkeepConfig{}, 0, err
	}
	return cfg, cfg.EffectiveCost(chunks), nil
}

// ChargeDue charges every due, solvent claim. Underfunded claims are left
// for the grace sweep. Returns the number of rows examined.
func (e *Engine) ChargeDue(ctx context.Context, batch int) (int, error) {
	processed := 0
	for page := (pagination.Page{Offset: 0, Size: batch}); ; page = page.Next() {
		banks, err := e.banks.ScanDue(ctx, page)
		if err != nil {
			return processed, err
		}
		if len(banks) == 0 {
			return processed, nil
		}
		for _, bank := range banks {
			if err := ctx.Err(); err != nil {
				return processed, err
			}
			if err := e.chargeOne(ctx, bank); err != nil {
				return processed, err
			}
			processed++
		}
		if !page.Bounded() || len(banks) < page.Size {
			return processed, nil
		}
	}
}

func (e *Engine) chargeOne(ctx context.Context, bank *bankdomain.ClaimBank) error {
	_, cost, err := e.costFor(ctx, bank)
	if err != nil {
		return err
	}
	now := e.clock.Now()
	applied, err := e.banks.ChargeUpkeep(ctx, bank.ClaimID, cost, now.Add(e.interval()), e.minInterval())
	if err != nil {
		return err
	}
	if applied {
		e.log.Debug("charged upkeep",
			zap.String("claim_id", bank.ClaimID.String()),
			zap.Int64("cost", cost),
		)
		return nil
	}

	switch guard.CanCharge(bank, cost, now, e.minInterval()) {
	case guard.ErrInsufficientFunds:
		e.metrics.IncChargeOutcome(metrics.ChargeOutcomeInsufficient)
		e.log.Info("upkeep charge skipped, insufficient funds",
			zap.String("claim_id", bank.ClaimID.String()),
			zap.Int64("balance", bank.Balance),
			zap.Int64("cost", cost),
		)
	default:
		// The row changed between scan and charge. Another pass or a
		// concurrent charge already settled it.
		e.metrics.IncChargeOutcome(metrics.ChargeOutcomeDedupNoop)
	}
	return nil
}

// SweepGrace moves due, unpaid, underfunded claims into the grace period and
// records an insolvency warning per entry.
func (e *Engine) SweepGrace(ctx context.Context, batch int) (int, error) {
	processed := 0
	for page := (pagination.Page{Offset: 0, Size: batch}); ; page = page.Next() {
		banks, err := e.banks.ScanDue(ctx, page)
		if err != nil {
			return processed, err
		}
		if len(banks) == 0 {
			return processed, nil
		}
		for _, bank := range banks {
			if err := ctx.Err(); err != nil {
				return processed, err
			}
			if err := e.sweepOne(ctx, bank); err != nil {
				return processed, err
			}
			processed++
		}
		if !page.Bounded() || len(banks) < page.Size {
			return processed, nil
		}
	}
}

func (e *Engine) sweepOne(ctx context.Context, bank *bankdomain.ClaimBank) error {
	_, cost, err := e.costFor(ctx, bank)
	if err != nil {
		return err
	}
	now := e.clock.Now()
	if !guard.ShouldEnterGrace(bank, cost, now) {
		return nil
	}
	marked, err := e.banks.MarkGracePeriod(ctx, bank.ClaimID, cost)
	if err != nil {
		return err
	}
	if !marked {
		return nil
	}
	if err := e.settings.IncrementNotifications(ctx, bank.ClaimID); err != nil {
		return err
	}
	e.log.Warn("claim entered grace period",
		zap.String("claim_id", bank.ClaimID.String()),
		zap.Int64("balance", bank.Balance),
		zap.Int64("cost", cost),
	)
	return nil
}

// Recover settles claims in grace whose balance covers the cost again:
// still-due claims pay a late charge, already-rescheduled claims just leave
// grace without paying.
func (e *Engine) Recover(ctx context.Context, batch int) (int, error) {
	processed := 0
	for page := (pagination.Page{Offset: 0, Size: batch}); ; page = page.Next() {
		banks, err := e.banks.ScanInGrace(ctx, page)
		if err != nil {
			return processed, err
		}
		if len(banks) == 0 {
			return processed, nil
		}
		for _, bank := range banks {
			if err := ctx.Err(); err != nil {
				return processed, err
			}
			if err := e.recoverOne(ctx, bank); err != nil {
				return processed, err
			}
			processed++
		}
		if !page.Bounded() || len(banks) < page.Size {
			return processed, nil
		}
	}
}

func (e *Engine) recoverOne(ctx context.Context, bank *bankdomain.ClaimBank) error {
	_, cost, err := e.costFor(ctx, bank)
	if err != nil {
		return err
	}
	if bank.Balance < cost {
		return nil
	}

	now := e.clock.Now()
	stillDue := bank.NextUpkeepDue != nil && !bank.NextUpkeepDue.After(now)

	var (
		applied    bool
		transition string
	)
	if stillDue {
		applied, err = e.banks.RecoverFromGrace(ctx, bank.ClaimID, cost, now.Add(e.interval()), e.minInterval())
		transition = "recovered"
	} else {
		applied, err = e.banks.ClearGraceIfFunded(ctx, bank.ClaimID, cost, e.interval())
		transition = "cleared"
	}
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}

	if err := e.settings.ResetNotifications(ctx, bank.ClaimID); err != nil {
		return err
	}
	e.log.Info("claim left grace period",
		zap.String("claim_id", bank.ClaimID.String()),
		zap.String("transition", transition),
	)
	return nil
}

// Expire forfeits every chunk of claims whose grace period ran out, where
// auto-unclaim is enabled for the claim.
func (e *Engine) Expire(ctx context.Context, batch int) (int, error) {
	processed := 0
	for page := (pagination.Page{Offset: 0, Size: batch}); ; page = page.Next() {
		banks, err := e.banks.ScanInGrace(ctx, page)
		if err != nil {
			return processed, err
		}
		if len(banks) == 0 {
			return processed, nil
		}
		for _, bank := range banks {
			if err := ctx.Err(); err != nil {
				return processed, err
			}
			if err := e.expireOne(ctx, bank); err != nil {
				return processed, err
			}
			processed++
		}
		if !page.Bounded() || len(banks) < page.Size {
			return processed, nil
		}
	}
}

func (e *Engine) expireOne(ctx context.Context, bank *bankdomain.ClaimBank) error {
	cfg, err := e.settings.GetForClaim(ctx, bank.ClaimID)
	if err != nil {
		return err
	}
	if !cfg.AutoUnclaim {
		return nil
	}
	now := e.clock.Now()
	if !guard.GraceExpired(bank, cfg.GracePeriod(), now) {
		return nil
	}

	released, err := e.transfers.ForfeitChunks(ctx, bank.ClaimID)
	if err != nil {
		return err
	}

	// A forfeited claim owns nothing, so zero cost clears its grace and
	// pushes the schedule forward in one guarded step.
	if _, err := e.banks.ClearGraceIfFunded(ctx, bank.ClaimID, 0, e.interval()); err != nil {
		return err
	}
	if err := e.settings.ResetNotifications(ctx, bank.ClaimID); err != nil {
		return err
	}

	e.metrics.IncGraceTransition(metrics.GraceTransitionExpired)
	e.log.Warn("grace period expired, chunks forfeited",
		zap.String("claim_id", bank.ClaimID.String()),
		zap.Int("chunks_released", released),
	)
	return nil
}
