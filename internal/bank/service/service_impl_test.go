package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/claimward/internal/bank/domain"
	"github.com/smallbiznis/claimward/internal/bank/repository"
	"github.com/smallbiznis/claimward/internal/clock"
	"github.com/smallbiznis/claimward/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupBankService(t *testing.T, fake *clock.FakeClock) (domain.Service, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&domain.ClaimBank{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// One connection serializes writers so sqlite never returns busy errors.
	sqlDB.SetMaxOpenConns(1)

	svc := NewService(Params{
		DB:    conn,
		Log:   zap.NewNop(),
		Clock: fake,
		Repo:  repository.Provide(),
	})
	return svc, conn
}

func TestGetOrCreateBankIsIdempotent(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	svc, _ := setupBankService(t, fake)
	ctx := context.Background()

	first, err := svc.GetOrCreateBank(ctx, 100)
	assert.NoError(t, err)
	assert.Equal(t, snowflake.ID(100), first.ClaimID)
	assert.Equal(t, int64(0), first.Balance)

	assert.NoError(t, svc.Deposit(ctx, 100, 500))

	again, err := svc.GetOrCreateBank(ctx, 100)
	assert.NoError(t, err)
	assert.Equal(t, int64(500), again.Balance)
}

func TestGetOrCreateBankRejectsZeroClaim(t *testing.T) {
	fake := clock.NewFakeClock(time.Now().UTC())
	svc, _ := setupBankService(t, fake)

	_, err := svc.GetOrCreateBank(context.Background(), 0)
	assert.ErrorIs(t, err, domain.ErrInvalidClaim)
}

func TestDepositRejectsNegativeAmount(t *testing.T) {
	fake := clock.NewFakeClock(time.Now().UTC())
	svc, _ := setupBankService(t, fake)
	ctx := context.Background()

	_, err := svc.GetOrCreateBank(ctx, 101)
	assert.NoError(t, err)

	assert.ErrorIs(t, svc.Deposit(ctx, 101, -5), domain.ErrInvalidAmount)
	assert.ErrorIs(t, svc.Deposit(ctx, 0, 5), domain.ErrInvalidClaim)
}

func TestDepositUnknownClaimReturnsNotFound(t *testing.T) {
	fake := clock.NewFakeClock(time.Now().UTC())
	svc, _ := setupBankService(t, fake)

	assert.ErrorIs(t, svc.Deposit(context.Background(), 999, 5), domain.ErrBankNotFound)
}

func TestConcurrentWithdrawalsNeverOverdraw(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	svc, _ := setupBankService(t, fake)
	ctx := context.Background()

	_, err := svc.GetOrCreateBank(ctx, 200)
	assert.NoError(t, err)
	assert.NoError(t, svc.Deposit(ctx, 200, 100))

	const workers = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := svc.Withdraw(ctx, 200, 10)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, applied)

	bank, err := svc.GetBank(ctx, 200)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), bank.Balance)
}

func TestChargeUpkeepDoubleTickChargesOnce(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	fake := clock.NewFakeClock(now)
	svc, _ := setupBankService(t, fake)
	ctx := context.Background()

	_, err := svc.GetOrCreateBank(ctx, 300)
	assert.NoError(t, err)
	assert.NoError(t, svc.Deposit(ctx, 300, 200))
	assert.NoError(t, svc.UpdateNextUpkeepDue(ctx, 300, now.Add(-time.Minute)))

	nextDue := now.Add(24 * time.Hour)
	minInterval := 20 * time.Hour

	applied, err := svc.ChargeUpkeep(ctx, 300, 50, nextDue, minInterval)
	assert.NoError(t, err)
	assert.True(t, applied)

	// A crashed scheduler replays the tick: the dedup window absorbs it,
	// even against a stale schedule row.
	assert.NoError(t, svc.UpdateNextUpkeepDue(ctx, 300, now.Add(-time.Minute)))
	applied, err = svc.ChargeUpkeep(ctx, 300, 50, nextDue, minInterval)
	assert.NoError(t, err)
	assert.False(t, applied)

	bank, err := svc.GetBank(ctx, 300)
	assert.NoError(t, err)
	assert.Equal(t, int64(150), bank.Balance)

	// Once the window passes the next cycle charges normally.
	fake.Advance(21 * time.Hour)
	applied, err = svc.ChargeUpkeep(ctx, 300, 50, fake.Now().Add(24*time.Hour), minInterval)
	assert.NoError(t, err)
	assert.True(t, applied)

	bank, err = svc.GetBank(ctx, 300)
	assert.NoError(t, err)
	assert.Equal(t, int64(100), bank.Balance)
}

func TestInsolventClaimEntersGraceAndRecovers(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	fake := clock.NewFakeClock(now)
	svc, _ := setupBankService(t, fake)
	ctx := context.Background()

	_, err := svc.GetOrCreateBank(ctx, 400)
	assert.NoError(t, err)
	assert.NoError(t, svc.Deposit(ctx, 400, 10))
	assert.NoError(t, svc.UpdateNextUpkeepDue(ctx, 400, now.Add(-time.Minute)))

	minInterval := 20 * time.Hour

	// Underfunded: the charge refuses, the sweep opens the grace period.
	applied, err := svc.ChargeUpkeep(ctx, 400, 50, now.Add(24*time.Hour), minInterval)
	assert.NoError(t, err)
	assert.False(t, applied)

	marked, err := svc.MarkGracePeriod(ctx, 400, 50)
	assert.NoError(t, err)
	assert.True(t, marked)

	bank, err := svc.GetBank(ctx, 400)
	assert.NoError(t, err)
	assert.Equal(t, domain.UpkeepStateGrace, bank.State(fake.Now()))

	// The owner tops up; recovery charges the missed cycle and closes grace.
	assert.NoError(t, svc.Deposit(ctx, 400, 90))
	fake.Advance(time.Hour)

	recovered, err := svc.RecoverFromGrace(ctx, 400, 50, fake.Now().Add(24*time.Hour), minInterval)
	assert.NoError(t, err)
	assert.True(t, recovered)

	bank, err = svc.GetBank(ctx, 400)
	assert.NoError(t, err)
	assert.Equal(t, int64(50), bank.Balance)
	assert.Nil(t, bank.GracePeriodStart)
	assert.Equal(t, domain.UpkeepStateNotDue, bank.State(fake.Now()))
}

func TestClearGraceIfFundedLeavesBalanceAlone(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	fake := clock.NewFakeClock(now)
	svc, _ := setupBankService(t, fake)
	ctx := context.Background()

	_, err := svc.GetOrCreateBank(ctx, 500)
	assert.NoError(t, err)
	assert.NoError(t, svc.UpdateNextUpkeepDue(ctx, 500, now.Add(-time.Minute)))

	marked, err := svc.MarkGracePeriod(ctx, 500, 50)
	assert.NoError(t, err)
	assert.True(t, marked)

	assert.NoError(t, svc.Deposit(ctx, 500, 80))

	cleared, err := svc.ClearGraceIfFunded(ctx, 500, 50, 24*time.Hour)
	assert.NoError(t, err)
	assert.True(t, cleared)

	bank, err := svc.GetBank(ctx, 500)
	assert.NoError(t, err)
	assert.Equal(t, int64(80), bank.Balance)
	assert.Nil(t, bank.GracePeriodStart)
}

func TestScanDueReturnsOnlyDueClaims(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	fake := clock.NewFakeClock(now)
	svc, _ := setupBankService(t, fake)
	ctx := context.Background()

	for claimID, due := range map[snowflake.ID]time.Duration{
		601: -time.Hour,
		602: -2 * time.Hour,
		603: time.Hour,
	} {
		_, err := svc.GetOrCreateBank(ctx, claimID)
		assert.NoError(t, err)
		assert.NoError(t, svc.UpdateNextUpkeepDue(ctx, claimID, now.Add(due)))
	}

	banks, err := svc.ScanDue(ctx, pagination.Page{Size: 10})
	assert.NoError(t, err)
	if assert.Len(t, banks, 2) {
		assert.Equal(t, snowflake.ID(602), banks[0].ClaimID)
		assert.Equal(t, snowflake.ID(601), banks[1].ClaimID)
	}
}
