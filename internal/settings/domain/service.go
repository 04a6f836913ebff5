package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	// GetForClaim returns the claim's upkeep config, creating it from the
	// current server defaults when no row exists yet.
	GetForClaim(ctx context.Context, claimID snowflake.ID) (UpkeepConfig, error)
	// Update applies a partial per-claim override and invalidates the cache.
	Update(ctx context.Context, claimID snowflake.ID, patch Patch) (UpkeepConfig, error)
	// IncrementNotifications bumps the insolvency-warning counter.
	IncrementNotifications(ctx context.Context, claimID snowflake.ID) error
	// ResetNotifications zeroes the counter after a claim recovers.
	ResetNotifications(ctx context.Context, claimID snowflake.ID) error
}
