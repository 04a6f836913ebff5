package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/claimward/internal/cache"
	"github.com/smallbiznis/claimward/internal/clock"
	"github.com/smallbiznis/claimward/internal/config"
	"github.com/smallbiznis/claimward/internal/settings/domain"
	"github.com/smallbiznis/claimward/internal/txn"
	"github.com/smallbiznis/claimward/pkg/db"
	"github.com/smallbiznis/claimward/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Defaults *config.UpkeepDefaultsHolder
	Cache    cache.UpkeepConfigCache
	Store    repository.Repository[domain.UpkeepConfig]
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	defaults *config.UpkeepDefaultsHolder
	cache    cache.UpkeepConfigCache
	store    repository.Repository[domain.UpkeepConfig]
}

func NewService(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("settings.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		defaults: p.Defaults,
		cache:    p.Cache,
		store:    p.Store,
	}
}

// handle routes through the transaction scope bound to ctx, if any.
func (s *Service) handle(ctx context.Context) repository.Repository[domain.UpkeepConfig] {
	return s.store.WithTrx(txn.Handle(ctx, s.db))
}

// cachePut refreshes the read-through cache. Under a live scope the row is
// not durable yet and may roll back, so the entry is dropped instead.
func (s *Service) cachePut(ctx context.Context, claimID snowflake.ID, cfg domain.UpkeepConfig) {
	if txn.InScope(ctx) {
		s.cache.Invalidate(claimID)
		return
	}
	s.cache.Set(claimID, cfg)
}

func (s *Service) GetForClaim(ctx context.Context, claimID snowflake.ID) (domain.UpkeepConfig, error) {
	if claimID == 0 {
		return domain.UpkeepConfig{}, domain.ErrInvalidClaim
	}
	if cfg, ok := s.cache.Get(claimID); ok {
		return cfg, nil
	}

	store := s.handle(ctx)
	existing, err := store.FindOne(ctx, &domain.UpkeepConfig{ClaimID: claimID})
	if err != nil {
		return domain.UpkeepConfig{}, err
	}
	if existing != nil {
		s.cachePut(ctx, claimID, *existing)
		return *existing, nil
	}

	defaults := s.defaults.Get()
	now := s.clock.Now()
	cfg := domain.UpkeepConfig{
		ID:              s.genID.Generate(),
		ClaimID:         claimID,
		CostPerChunk:    defaults.CostPerChunk,
		DiscountPercent: defaults.DiscountPercent,
		GraceDays:       defaults.GraceDays,
		AutoUnclaim:     defaults.AutoUnclaim,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := store.Create(ctx, &cfg); err != nil {
		if db.IsDuplicateKeyErr(err) {
			// Lost the insert race; the winner's row is authoritative.
			existing, ferr := store.FindOne(ctx, &domain.UpkeepConfig{ClaimID: claimID})
			if ferr != nil {
				return domain.UpkeepConfig{}, ferr
			}
			if existing != nil {
				s.cachePut(ctx, claimID, *existing)
				return *existing, nil
			}
		}
		return domain.UpkeepConfig{}, err
	}

	s.log.Info("created upkeep config from defaults",
		zap.String("claim_id", claimID.String()),
		zap.Int64("cost_per_chunk", cfg.CostPerChunk),
	)
	s.cachePut(ctx, claimID, cfg)
	return cfg, nil
}

func (s *Service) Update(ctx context.Context, claimID snowflake.ID, patch domain.Patch) (domain.UpkeepConfig, error) {
	current, err := s.GetForClaim(ctx, claimID)
	if err != nil {
		return domain.UpkeepConfig{}, err
	}

	values := map[string]any{"updated_at": s.clock.Now()}
	if patch.CostPerChunk != nil {
		if *patch.CostPerChunk < 0 {
			return domain.UpkeepConfig{}, domain.ErrInvalidCost
		}
		values["cost_per_chunk"] = *patch.CostPerChunk
	}
	if patch.DiscountPercent != nil {
		if *patch.DiscountPercent < 0 || *patch.DiscountPercent > 100 {
			return domain.UpkeepConfig{}, domain.ErrInvalidDiscount
		}
		values["discount_percent"] = *patch.DiscountPercent
	}
	if patch.GraceDays != nil {
		if *patch.GraceDays < 0 {
			return domain.UpkeepConfig{}, domain.ErrInvalidGrace
		}
		values["grace_days"] = *patch.GraceDays
	}
	if patch.AutoUnclaim != nil {
		values["auto_unclaim"] = *patch.AutoUnclaim
	}

	store := s.handle(ctx)
	if err := store.Update(ctx, current.ID.String(), values); err != nil {
		return domain.UpkeepConfig{}, err
	}
	s.cache.Invalidate(claimID)

	updated, err := store.FindOne(ctx, &domain.UpkeepConfig{ClaimID: claimID})
	if err != nil {
		return domain.UpkeepConfig{}, err
	}
	if updated == nil {
		return domain.UpkeepConfig{}, domain.ErrConfigNotFound
	}
	s.cachePut(ctx, claimID, *updated)
	return *updated, nil
}

func (s *Service) IncrementNotifications(ctx context.Context, claimID snowflake.ID) error {
	return s.bumpNotifications(ctx, claimID, gorm.Expr("notifications_sent + 1"))
}

func (s *Service) ResetNotifications(ctx context.Context, claimID snowflake.ID) error {
	return s.bumpNotifications(ctx, claimID, 0)
}

func (s *Service) bumpNotifications(ctx context.Context, claimID snowflake.ID, value any) error {
	current, err := s.GetForClaim(ctx, claimID)
	if err != nil {
		return err
	}
	if err := s.handle(ctx).Update(ctx, current.ID.String(), map[string]any{
		"notifications_sent": value,
		"updated_at":         s.clock.Now(),
	}); err != nil {
		return err
	}
	s.cache.Invalidate(claimID)
	return nil
}
