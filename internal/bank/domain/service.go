package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/claimward/pkg/db/pagination"
)

// Service is the ledger store surface exposed to commands, the upkeep engine
// and the transfer coordinator.
type Service interface {
	GetOrCreateBank(ctx context.Context, claimID snowflake.ID) (*ClaimBank, error)
	GetBank(ctx context.Context, claimID snowflake.ID) (*ClaimBank, error)

	Deposit(ctx context.Context, claimID snowflake.ID, amount int64) error
	Withdraw(ctx context.Context, claimID snowflake.ID, amount int64) (bool, error)
	UpdateNextUpkeepDue(ctx context.Context, claimID snowflake.ID, when time.Time) error
	SetMinimumBalanceWarning(ctx context.Context, claimID snowflake.ID, threshold int64) error

	ChargeUpkeep(ctx context.Context, claimID snowflake.ID, cost int64, nextDue time.Time, minInterval time.Duration) (bool, error)
	RecoverFromGrace(ctx context.Context, claimID snowflake.ID, cost int64, nextDue time.Time, minInterval time.Duration) (bool, error)
	ClearGraceIfFunded(ctx context.Context, claimID snowflake.ID, cost int64, interval time.Duration) (bool, error)
	MarkGracePeriod(ctx context.Context, claimID snowflake.ID, cost int64) (bool, error)

	ScanDue(ctx context.Context, page pagination.Page) ([]*ClaimBank, error)
	ScanInGrace(ctx context.Context, page pagination.Page) ([]*ClaimBank, error)
}
