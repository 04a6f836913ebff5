package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	claimdomain "github.com/smallbiznis/claimward/internal/claim/domain"
	"github.com/smallbiznis/claimward/internal/clock"
	"github.com/smallbiznis/claimward/internal/observability/metrics"
	"github.com/smallbiznis/claimward/internal/transfer/domain"
	logdomain "github.com/smallbiznis/claimward/internal/transferlog/domain"
	"github.com/smallbiznis/claimward/internal/txn"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Coordinator *txn.Coordinator
	Chunks      claimdomain.Repository
	Facts       logdomain.Service
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	coordinator *txn.Coordinator
	chunks      claimdomain.Repository
	facts       logdomain.Service
	metrics     *metrics.EngineMetrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("transfer.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		coordinator: p.Coordinator,
		chunks:      p.Chunks,
		facts:       p.Facts,
		metrics:     metrics.Engine(),
	}
}

func (s *Service) ClaimChunks(ctx context.Context, chunks []claimdomain.ChunkRef, claimID, ownerID snowflake.ID) error {
	if len(chunks) == 0 {
		return domain.ErrEmptyBatch
	}
	if claimID == 0 || ownerID == 0 {
		return domain.ErrInvalidClaim
	}

	err := s.coordinator.RunInTransaction(ctx, func(ctx context.Context) error {
		handle := txn.Handle(ctx, s.db)
		now := s.clock.Now()
		for _, ref := range chunks {
			current, err := s.chunks.Owner(ctx, handle, ref)
			if err != nil {
				return err
			}
			if current != nil {
				s.log.Warn("claim batch hit owned chunk",
					zap.String("chunk", ref.String()),
					zap.String("owner_claim_id", current.ClaimID.String()),
				)
				return claimdomain.ErrChunkAlreadyOwned
			}
			row := &claimdomain.ChunkClaim{
				ID:        s.genID.Generate(),
				World:     ref.World,
				X:         ref.X,
				Z:         ref.Z,
				ClaimID:   claimID,
				OwnerID:   ownerID,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := s.chunks.Insert(ctx, handle, row); err != nil {
				return err
			}
			if err := s.facts.Append(ctx, logdomain.Fact{
				World:     ref.World,
				X:         ref.X,
				Z:         ref.Z,
				Kind:      logdomain.TransferKindTransfer,
				ToClaimID: &claimID,
				ToOwnerID: &ownerID,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	s.observeBatch(err, len(chunks))
	return err
}

func (s *Service) TransferChunks(ctx context.Context, chunks []claimdomain.ChunkRef, fromClaimID, toClaimID snowflake.ID) error {
	if len(chunks) == 0 {
		return domain.ErrEmptyBatch
	}
	if fromClaimID == 0 {
		return domain.ErrInvalidClaim
	}
	if toClaimID == 0 {
		return domain.ErrInvalidTarget
	}
	if fromClaimID == toClaimID {
		return domain.ErrSameClaim
	}

	err := s.coordinator.RunInTransaction(ctx, func(ctx context.Context) error {
		handle := txn.Handle(ctx, s.db)
		now := s.clock.Now()
		for _, ref := range chunks {
			current, err := s.chunks.Owner(ctx, handle, ref)
			if err != nil {
				return err
			}
			if current == nil {
				return claimdomain.ErrChunkNotClaimed
			}
			if current.ClaimID != fromClaimID {
				s.log.Warn("transfer batch hit foreign chunk",
					zap.String("chunk", ref.String()),
					zap.String("expected_claim_id", fromClaimID.String()),
					zap.String("actual_claim_id", current.ClaimID.String()),
				)
				return claimdomain.ErrChunkOwnerMismatch
			}
			applied, err := s.chunks.Repoint(ctx, handle, ref, fromClaimID, toClaimID, now)
			if err != nil {
				return err
			}
			if !applied {
				return claimdomain.ErrChunkOwnerMismatch
			}
			if err := s.facts.Append(ctx, logdomain.Fact{
				World:       ref.World,
				X:           ref.X,
				Z:           ref.Z,
				Kind:        logdomain.TransferKindTransfer,
				FromClaimID: &fromClaimID,
				ToClaimID:   &toClaimID,
				FromOwnerID: ptr(current.OwnerID),
			}); err != nil {
				return err
			}
		}
		return nil
	})
	s.observeBatch(err, len(chunks))
	return err
}

func (s *Service) UnclaimChunks(ctx context.Context, chunks []claimdomain.ChunkRef, claimID snowflake.ID) error {
	if len(chunks) == 0 {
		return domain.ErrEmptyBatch
	}
	if claimID == 0 {
		return domain.ErrInvalidClaim
	}

	err := s.coordinator.RunInTransaction(ctx, func(ctx context.Context) error {
		handle := txn.Handle(ctx, s.db)
		for _, ref := range chunks {
			current, err := s.chunks.Owner(ctx, handle, ref)
			if err != nil {
				return err
			}
			if current == nil {
				return claimdomain.ErrChunkNotClaimed
			}
			if current.ClaimID != claimID {
				return claimdomain.ErrChunkOwnerMismatch
			}
			applied, err := s.chunks.Release(ctx, handle, ref, claimID)
			if err != nil {
				return err
			}
			if !applied {
				return claimdomain.ErrChunkOwnerMismatch
			}
			if err := s.facts.Append(ctx, logdomain.Fact{
				World:       ref.World,
				X:           ref.X,
				Z:           ref.Z,
				Kind:        logdomain.TransferKindUnclaim,
				FromClaimID: &claimID,
				FromOwnerID: ptr(current.OwnerID),
			}); err != nil {
				return err
			}
		}
		return nil
	})
	s.observeBatch(err, len(chunks))
	return err
}

func (s *Service) ForfeitChunks(ctx context.Context, claimID snowflake.ID) (int, error) {
	if claimID == 0 {
		return 0, domain.ErrInvalidClaim
	}

	released := 0
	err := s.coordinator.RunInTransaction(ctx, func(ctx context.Context) error {
		handle := txn.Handle(ctx, s.db)
		rows, err := s.chunks.ListByClaim(ctx, handle, claimID)
		if err != nil {
			return err
		}
		for _, row := range rows {
			applied, err := s.chunks.Release(ctx, handle, row.Ref(), claimID)
			if err != nil {
				return err
			}
			if !applied {
				// Re-pointed since the list; it no longer belongs here.
				continue
			}
			if err := s.facts.Append(ctx, logdomain.Fact{
				World:       row.World,
				X:           row.X,
				Z:           row.Z,
				Kind:        logdomain.TransferKindUpkeepLoss,
				FromClaimID: &claimID,
				FromOwnerID: ptr(row.OwnerID),
				Metadata:    map[string]any{"reason": "grace_period_expired"},
			}); err != nil {
				return err
			}
			released++
		}
		return nil
	})
	if err != nil {
		s.observeBatch(err, 0)
		return 0, err
	}
	s.observeBatch(nil, released)
	return released, nil
}

func (s *Service) observeBatch(err error, chunks int) {
	if err != nil {
		s.metrics.IncTransferBatch(metrics.TransferOutcomeRolledBack)
		return
	}
	s.metrics.IncTransferBatch(metrics.TransferOutcomeCommitted)
	s.metrics.AddChunksMoved(chunks)
}

func ptr[T any](v T) *T { return &v }
