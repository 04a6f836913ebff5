package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
)

// ChunkRef addresses one claimed chunk coordinate.
type ChunkRef struct {
	World string
	X     int32
	Z     int32
}

func (c ChunkRef) String() string {
	return fmt.Sprintf("%s:%d,%d", c.World, c.X, c.Z)
}

// ChunkClaim records which claim owns a chunk. A coordinate belongs to at
// most one claim at a time, enforced by the composite unique index. On a
// claim-to-claim transfer the row is re-pointed, never deleted and
// recreated, so its identity survives for history linkage.
type ChunkClaim struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	World     string       `gorm:"type:text;not null;uniqueIndex:ux_chunk_claims_coord,priority:1"`
	X         int32        `gorm:"not null;uniqueIndex:ux_chunk_claims_coord,priority:2"`
	Z         int32        `gorm:"not null;uniqueIndex:ux_chunk_claims_coord,priority:3"`
	ClaimID   snowflake.ID `gorm:"not null;index"`
	OwnerID   snowflake.ID `gorm:"not null"`
	CreatedAt time.Time    `gorm:"not null"`
	UpdatedAt time.Time    `gorm:"not null"`
}

// TableName sets the database table name.
func (ChunkClaim) TableName() string { return "chunk_claims" }

func (c ChunkClaim) Ref() ChunkRef {
	return ChunkRef{World: c.World, X: c.X, Z: c.Z}
}

var (
	ErrInvalidChunk       = errors.New("invalid_chunk")
	ErrChunkAlreadyOwned  = errors.New("chunk_already_owned")
	ErrChunkNotClaimed    = errors.New("chunk_not_claimed")
	ErrChunkOwnerMismatch = errors.New("chunk_owner_mismatch")
)
