package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// ListCursor is a decoded keyset position: facts strictly older than
// (CreatedAt, ID) in descending order.
type ListCursor struct {
	CreatedAt time.Time
	ID        snowflake.ID
}

type ListFilter struct {
	World   string
	Kind    TransferKind
	ClaimID *snowflake.ID
	StartAt *time.Time
	EndAt   *time.Time
	Cursor  *ListCursor
	Limit   int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, fact *ChunkTransfer) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*ChunkTransfer, error)
}
