// Package guard holds the pure upkeep preconditions. Repositories enforce
// the same conditions inside their UPDATE guards; these helpers exist so
// callers can classify an outcome without another round trip.
package guard

import (
	"errors"
	"time"

	bankdomain "github.com/smallbiznis/claimward/internal/bank/domain"
)

var (
	ErrNotDue            = errors.New("upkeep_not_due")
	ErrInGrace           = errors.New("claim_in_grace")
	ErrRecentlyCharged   = errors.New("charged_within_min_interval")
	ErrInsufficientFunds = errors.New("insufficient_funds")
)

// CanCharge reports why a regular upkeep charge would not apply to the bank
// row as read. A nil error means every precondition held at read time; the
// conditional UPDATE remains the arbiter under concurrency.
func CanCharge(bank *bankdomain.ClaimBank, cost int64, now time.Time, minInterval time.Duration) error {
	if bank.GracePeriodStart != nil {
		return ErrInGrace
	}
	if bank.NextUpkeepDue == nil || bank.NextUpkeepDue.After(now) {
		return ErrNotDue
	}
	if ChargedWithin(bank, now, minInterval) {
		return ErrRecentlyCharged
	}
	if bank.Balance < cost {
		return ErrInsufficientFunds
	}
	return nil
}

// ChargedWithin reports whether the last successful charge falls inside the
// dedup window ending at now.
func ChargedWithin(bank *bankdomain.ClaimBank, now time.Time, minInterval time.Duration) bool {
	if bank.LastUpkeepPayment == nil || minInterval <= 0 {
		return false
	}
	return bank.LastUpkeepPayment.After(now.Add(-minInterval))
}

// ShouldEnterGrace reports whether a due, unpaid claim is underfunded and
// belongs in the grace period.
func ShouldEnterGrace(bank *bankdomain.ClaimBank, cost int64, now time.Time) bool {
	if bank.GracePeriodStart != nil {
		return false
	}
	if bank.NextUpkeepDue == nil || bank.NextUpkeepDue.After(now) {
		return false
	}
	return bank.Balance < cost
}

// GraceExpired reports whether the claim has been in grace for at least the
// configured period.
func GraceExpired(bank *bankdomain.ClaimBank, grace time.Duration, now time.Time) bool {
	return bank.InGraceLongerThan(now, grace)
}
