package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/claimward/internal/clock"
	"github.com/smallbiznis/claimward/internal/transferlog/domain"
	"github.com/smallbiznis/claimward/internal/txn"
	"github.com/smallbiznis/claimward/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func NewService(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("transferlog.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Append(ctx context.Context, fact domain.Fact) error {
	switch fact.Kind {
	case domain.TransferKindTransfer, domain.TransferKindUnclaim, domain.TransferKindUpkeepLoss:
	default:
		return domain.ErrInvalidKind
	}

	var metadata datatypes.JSON
	if len(fact.Metadata) > 0 {
		raw, err := json.Marshal(fact.Metadata)
		if err != nil {
			return fmt.Errorf("encode transfer metadata: %w", err)
		}
		metadata = datatypes.JSON(raw)
	}

	row := &domain.ChunkTransfer{
		ID:          s.genID.Generate(),
		World:       fact.World,
		X:           fact.X,
		Z:           fact.Z,
		Kind:        fact.Kind,
		FromClaimID: fact.FromClaimID,
		ToClaimID:   fact.ToClaimID,
		FromOwnerID: fact.FromOwnerID,
		ToOwnerID:   fact.ToOwnerID,
		Metadata:    metadata,
		CreatedAt:   s.clock.Now(),
	}
	return s.repo.Insert(ctx, txn.Handle(ctx, s.db), row)
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	if req.StartAt != nil && req.EndAt != nil && req.EndAt.Before(*req.StartAt) {
		return domain.ListResponse{}, domain.ErrInvalidTimeRange
	}

	limit := req.PageSize
	if limit <= 0 {
		limit = 50
	}

	filter := domain.ListFilter{
		World:   req.World,
		Kind:    req.Kind,
		ClaimID: req.ClaimID,
		StartAt: req.StartAt,
		EndAt:   req.EndAt,
		Limit:   limit,
	}
	if req.PageToken != "" {
		cursor, err := decodeListCursor(req.PageToken)
		if err != nil {
			return domain.ListResponse{}, domain.ErrInvalidPageToken
		}
		filter.Cursor = cursor
	}

	facts, err := s.repo.List(ctx, txn.Handle(ctx, s.db), filter)
	if err != nil {
		return domain.ListResponse{}, err
	}

	resp := domain.ListResponse{}
	hasMore := len(facts) > limit
	if hasMore {
		facts = facts[:limit]
	}
	for _, fact := range facts {
		resp.Transfers = append(resp.Transfers, *fact)
	}
	resp.HasMore = hasMore
	if hasMore && len(facts) > 0 {
		last := facts[len(facts)-1]
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        last.ID.String(),
			CreatedAt: last.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return domain.ListResponse{}, err
		}
		resp.NextPageToken = token
	}
	return resp, nil
}

func decodeListCursor(token string) (*domain.ListCursor, error) {
	raw, err := pagination.DecodeCursor(token)
	if err != nil {
		return nil, err
	}
	at, err := time.Parse(time.RFC3339Nano, raw.CreatedAt)
	if err != nil {
		return nil, err
	}
	id, err := snowflake.ParseString(raw.ID)
	if err != nil {
		return nil, err
	}
	return &domain.ListCursor{CreatedAt: at.UTC(), ID: id}, nil
}
