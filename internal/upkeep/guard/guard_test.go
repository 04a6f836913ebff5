package guard

import (
	"testing"
	"time"

	bankdomain "github.com/smallbiznis/claimward/internal/bank/domain"
	"github.com/stretchr/testify/assert"
)

func bankRow(balance int64, due, paid, grace *time.Time) *bankdomain.ClaimBank {
	return &bankdomain.ClaimBank{
		ClaimID:           1,
		Balance:           balance,
		NextUpkeepDue:     due,
		LastUpkeepPayment: paid,
		GracePeriodStart:  grace,
	}
}

func TestCanCharge(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	recent := now.Add(-time.Hour)
	old := now.Add(-30 * time.Hour)
	minInterval := 20 * time.Hour

	assert.NoError(t, CanCharge(bankRow(100, &past, nil, nil), 50, now, minInterval))
	assert.NoError(t, CanCharge(bankRow(100, &past, &old, nil), 50, now, minInterval))

	assert.ErrorIs(t, CanCharge(bankRow(100, &past, nil, &past), 50, now, minInterval), ErrInGrace)
	assert.ErrorIs(t, CanCharge(bankRow(100, &future, nil, nil), 50, now, minInterval), ErrNotDue)
	assert.ErrorIs(t, CanCharge(bankRow(100, nil, nil, nil), 50, now, minInterval), ErrNotDue)
	assert.ErrorIs(t, CanCharge(bankRow(100, &past, &recent, nil), 50, now, minInterval), ErrRecentlyCharged)
	assert.ErrorIs(t, CanCharge(bankRow(10, &past, nil, nil), 50, now, minInterval), ErrInsufficientFunds)
}

func TestChargedWithin(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	recent := now.Add(-time.Hour)

	assert.True(t, ChargedWithin(bankRow(0, nil, &recent, nil), now, 20*time.Hour))
	assert.False(t, ChargedWithin(bankRow(0, nil, &recent, nil), now, 30*time.Minute))
	assert.False(t, ChargedWithin(bankRow(0, nil, nil, nil), now, 20*time.Hour))
	assert.False(t, ChargedWithin(bankRow(0, nil, &recent, nil), now, 0))
}

func TestShouldEnterGrace(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	assert.True(t, ShouldEnterGrace(bankRow(10, &past, nil, nil), 50, now))
	assert.False(t, ShouldEnterGrace(bankRow(100, &past, nil, nil), 50, now))
	assert.False(t, ShouldEnterGrace(bankRow(10, &future, nil, nil), 50, now))
	assert.False(t, ShouldEnterGrace(bankRow(10, nil, nil, nil), 50, now))
	assert.False(t, ShouldEnterGrace(bankRow(10, &past, nil, &past), 50, now))
}

func TestGraceExpired(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	weekAgo := now.Add(-8 * 24 * time.Hour)
	yesterday := now.Add(-24 * time.Hour)
	grace := 7 * 24 * time.Hour

	assert.True(t, GraceExpired(bankRow(0, nil, nil, &weekAgo), grace, now))
	assert.False(t, GraceExpired(bankRow(0, nil, nil, &yesterday), grace, now))
	assert.False(t, GraceExpired(bankRow(0, nil, nil, nil), grace, now))
}
