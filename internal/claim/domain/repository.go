package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository stores chunk ownership rows. Methods take the connection handle
// so they participate in the caller's transaction scope.
type Repository interface {
	// Owner returns the ownership row for a coordinate, or nil when the
	// chunk is unclaimed.
	Owner(ctx context.Context, db *gorm.DB, ref ChunkRef) (*ChunkClaim, error)
	ListByClaim(ctx context.Context, db *gorm.DB, claimID snowflake.ID) ([]*ChunkClaim, error)
	CountByClaim(ctx context.Context, db *gorm.DB, claimID snowflake.ID) (int64, error)

	Insert(ctx context.Context, db *gorm.DB, chunk *ChunkClaim) error
	// Repoint moves the row to toClaim only while it still belongs to
	// fromClaim, guarding against a racing unclaim or transfer.
	Repoint(ctx context.Context, db *gorm.DB, ref ChunkRef, fromClaim, toClaim snowflake.ID, now time.Time) (bool, error)
	// Release deletes the row only while it still belongs to claimID.
	Release(ctx context.Context, db *gorm.DB, ref ChunkRef, claimID snowflake.ID) (bool, error)
}
