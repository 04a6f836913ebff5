package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// Fact is the input for one appended transfer record.
type Fact struct {
	World       string
	X           int32
	Z           int32
	Kind        TransferKind
	FromClaimID *snowflake.ID
	ToClaimID   *snowflake.ID
	FromOwnerID *snowflake.ID
	ToOwnerID   *snowflake.ID
	Metadata    map[string]any
}

type Service interface {
	// Append writes one fact. Inside a transaction scope the fact commits
	// or rolls back together with the mutations it describes.
	Append(ctx context.Context, fact Fact) error
	List(ctx context.Context, req ListRequest) (ListResponse, error)
}
