package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/claimward/internal/cache"
	"github.com/smallbiznis/claimward/internal/clock"
	"github.com/smallbiznis/claimward/internal/config"
	"github.com/smallbiznis/claimward/internal/settings/domain"
	"github.com/smallbiznis/claimward/internal/txn"
	"github.com/smallbiznis/claimward/pkg/repository"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupSettingsService(t *testing.T, defaults config.UpkeepDefaults) (domain.Service, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&domain.UpkeepConfig{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	svc := NewService(Params{
		DB:       conn,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    clock.NewFakeClock(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)),
		Defaults: config.NewStaticUpkeepDefaultsHolder(defaults),
		Cache:    cache.NewUpkeepConfigCache(),
		Store:    repository.ProvideStore[domain.UpkeepConfig](conn),
	})
	return svc, conn
}

func TestGetForClaimCreatesFromDefaults(t *testing.T) {
	defaults := config.DefaultUpkeepDefaults()
	defaults.CostPerChunk = 40
	defaults.GraceDays = 3
	svc, conn := setupSettingsService(t, defaults)
	ctx := context.Background()

	cfg, err := svc.GetForClaim(ctx, 10)
	assert.NoError(t, err)
	assert.Equal(t, snowflake.ID(10), cfg.ClaimID)
	assert.Equal(t, int64(40), cfg.CostPerChunk)
	assert.Equal(t, 3, cfg.GraceDays)
	assert.NotZero(t, cfg.ID)

	var count int64
	assert.NoError(t, conn.Model(&domain.UpkeepConfig{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	// The second read is served without creating another row.
	again, err := svc.GetForClaim(ctx, 10)
	assert.NoError(t, err)
	assert.Equal(t, cfg.ID, again.ID)

	assert.NoError(t, conn.Model(&domain.UpkeepConfig{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestGetForClaimRejectsZeroClaim(t *testing.T) {
	svc, _ := setupSettingsService(t, config.DefaultUpkeepDefaults())

	_, err := svc.GetForClaim(context.Background(), 0)
	assert.ErrorIs(t, err, domain.ErrInvalidClaim)
}

func TestUpdateAppliesPatchAndInvalidatesCache(t *testing.T) {
	svc, _ := setupSettingsService(t, config.DefaultUpkeepDefaults())
	ctx := context.Background()

	_, err := svc.GetForClaim(ctx, 20)
	assert.NoError(t, err)

	cost := int64(75)
	discount := 15
	updated, err := svc.Update(ctx, 20, domain.Patch{CostPerChunk: &cost, DiscountPercent: &discount})
	assert.NoError(t, err)
	assert.Equal(t, int64(75), updated.CostPerChunk)
	assert.Equal(t, 15, updated.DiscountPercent)

	// Reads after the update observe the new values.
	cfg, err := svc.GetForClaim(ctx, 20)
	assert.NoError(t, err)
	assert.Equal(t, int64(75), cfg.CostPerChunk)
}

func TestUpdateValidatesPatch(t *testing.T) {
	svc, _ := setupSettingsService(t, config.DefaultUpkeepDefaults())
	ctx := context.Background()

	negCost := int64(-1)
	_, err := svc.Update(ctx, 21, domain.Patch{CostPerChunk: &negCost})
	assert.ErrorIs(t, err, domain.ErrInvalidCost)

	badDiscount := 150
	_, err = svc.Update(ctx, 21, domain.Patch{DiscountPercent: &badDiscount})
	assert.ErrorIs(t, err, domain.ErrInvalidDiscount)

	negGrace := -1
	_, err = svc.Update(ctx, 21, domain.Patch{GraceDays: &negGrace})
	assert.ErrorIs(t, err, domain.ErrInvalidGrace)
}

func TestRolledBackScopeDoesNotPoisonCache(t *testing.T) {
	svc, conn := setupSettingsService(t, config.DefaultUpkeepDefaults())
	coordinator := txn.NewCoordinator(txn.Params{DB: conn, Log: zap.NewNop()})
	ctx := context.Background()
	boom := errors.New("boom")

	seeded, err := svc.GetForClaim(ctx, 40)
	assert.NoError(t, err)

	cost := int64(99)
	err = coordinator.RunInTransaction(ctx, func(ctx context.Context) error {
		updated, err := svc.Update(ctx, 40, domain.Patch{CostPerChunk: &cost})
		if err != nil {
			return err
		}
		assert.Equal(t, int64(99), updated.CostPerChunk)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	// The rolled-back patch must not survive in the read-through cache.
	cfg, err := svc.GetForClaim(ctx, 40)
	assert.NoError(t, err)
	assert.Equal(t, seeded.CostPerChunk, cfg.CostPerChunk)
}

func TestRolledBackScopeDoesNotCachePhantomConfig(t *testing.T) {
	svc, conn := setupSettingsService(t, config.DefaultUpkeepDefaults())
	coordinator := txn.NewCoordinator(txn.Params{DB: conn, Log: zap.NewNop()})
	ctx := context.Background()
	boom := errors.New("boom")

	err := coordinator.RunInTransaction(ctx, func(ctx context.Context) error {
		if _, err := svc.GetForClaim(ctx, 41); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	var count int64
	assert.NoError(t, conn.Model(&domain.UpkeepConfig{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)

	// A later read recreates the row instead of serving the phantom entry.
	cfg, err := svc.GetForClaim(ctx, 41)
	assert.NoError(t, err)
	assert.Equal(t, snowflake.ID(41), cfg.ClaimID)

	assert.NoError(t, conn.Model(&domain.UpkeepConfig{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestNotificationCounterRoundTrip(t *testing.T) {
	svc, _ := setupSettingsService(t, config.DefaultUpkeepDefaults())
	ctx := context.Background()

	assert.NoError(t, svc.IncrementNotifications(ctx, 30))
	assert.NoError(t, svc.IncrementNotifications(ctx, 30))

	cfg, err := svc.GetForClaim(ctx, 30)
	assert.NoError(t, err)
	assert.Equal(t, 2, cfg.NotificationsSent)

	assert.NoError(t, svc.ResetNotifications(ctx, 30))
	cfg, err = svc.GetForClaim(ctx, 30)
	assert.NoError(t, err)
	assert.Equal(t, 0, cfg.NotificationsSent)
}

func TestEffectiveCost(t *testing.T) {
	cfg := domain.UpkeepConfig{CostPerChunk: 25, DiscountPercent: 20}
	assert.Equal(t, int64(0), cfg.EffectiveCost(0))
	assert.Equal(t, int64(20), cfg.EffectiveCost(1))
	assert.Equal(t, int64(200), cfg.EffectiveCost(10))

	full := domain.UpkeepConfig{CostPerChunk: 25, DiscountPercent: 100}
	assert.Equal(t, int64(0), full.EffectiveCost(10))

	none := domain.UpkeepConfig{CostPerChunk: 25}
	assert.Equal(t, int64(250), none.EffectiveCost(10))
}
