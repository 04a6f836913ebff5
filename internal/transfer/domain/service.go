package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	claimdomain "github.com/smallbiznis/claimward/internal/claim/domain"
)

// Service moves chunk ownership between claims atomically. Every batch
// commits whole or leaves no observable effect.
type Service interface {
	// ClaimChunks records fresh ownership of unclaimed chunks.
	ClaimChunks(ctx context.Context, chunks []claimdomain.ChunkRef, claimID, ownerID snowflake.ID) error
	// TransferChunks re-points every chunk from one claim to another. A
	// chunk owned by anyone other than fromClaimID aborts the whole batch.
	TransferChunks(ctx context.Context, chunks []claimdomain.ChunkRef, fromClaimID, toClaimID snowflake.ID) error
	// UnclaimChunks releases chunks back to the wild.
	UnclaimChunks(ctx context.Context, chunks []claimdomain.ChunkRef, claimID snowflake.ID) error
	// ForfeitChunks releases every chunk a claim owns after its grace
	// period expires, recording upkeep-loss facts for each.
	ForfeitChunks(ctx context.Context, claimID snowflake.ID) (int, error)
}

var (
	ErrEmptyBatch    = errors.New("empty_chunk_batch")
	ErrSameClaim     = errors.New("same_claim_transfer")
	ErrInvalidClaim  = errors.New("invalid_claim_id")
	ErrInvalidTarget = errors.New("invalid_target_claim")
)
