package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/claimward/pkg/db/pagination"
	"gorm.io/datatypes"
)

// TransferKind classifies a chunk ownership fact.
type TransferKind string

const (
	// TransferKindTransfer is a claim-to-claim ownership move.
	TransferKindTransfer TransferKind = "transfer"
	// TransferKindUnclaim is a voluntary release back to the wild.
	TransferKindUnclaim TransferKind = "unclaim"
	// TransferKindUpkeepLoss is a release forced by grace-period expiry; the
	// auto-unclaim collaborator consumes these facts.
	TransferKindUpkeepLoss TransferKind = "upkeep_loss"
)

// ChunkTransfer is an append-only fact describing one chunk changing hands.
// Rows are never updated after insertion.
type ChunkTransfer struct {
	ID          snowflake.ID `gorm:"primaryKey"`
	World       string       `gorm:"type:text;not null;index:ix_chunk_transfers_coord,priority:1"`
	X           int32        `gorm:"not null;index:ix_chunk_transfers_coord,priority:2"`
	Z           int32        `gorm:"not null;index:ix_chunk_transfers_coord,priority:3"`
	Kind        TransferKind `gorm:"type:text;not null;index"`
	FromClaimID *snowflake.ID
	ToClaimID   *snowflake.ID
	FromOwnerID *snowflake.ID
	ToOwnerID   *snowflake.ID
	Metadata    datatypes.JSON
	CreatedAt   time.Time `gorm:"not null;index"`
}

// TableName sets the database table name.
func (ChunkTransfer) TableName() string { return "chunk_transfers" }

type ListRequest struct {
	pagination.Pagination
	World   string
	Kind    TransferKind
	ClaimID *snowflake.ID
	StartAt *time.Time
	EndAt   *time.Time
}

type ListResponse struct {
	pagination.PageInfo
	Transfers []ChunkTransfer `json:"transfers"`
}

var (
	ErrInvalidKind      = errors.New("invalid_transfer_kind")
	ErrInvalidPageToken = errors.New("invalid_page_token")
	ErrInvalidTimeRange = errors.New("invalid_time_range")
)
