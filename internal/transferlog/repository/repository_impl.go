package repository

import (
	"context"
	"strings"

	"github.com/smallbiznis/claimward/internal/transferlog/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, fact *domain.ChunkTransfer) error {
	if fact == nil {
		return nil
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO chunk_transfers (
			id, world, x, z, kind,
			from_claim_id, to_claim_id, from_owner_id, to_owner_id,
			metadata, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		fact.ID,
		fact.World,
		fact.X,
		fact.Z,
		fact.Kind,
		fact.FromClaimID,
		fact.ToClaimID,
		fact.FromOwnerID,
		fact.ToOwnerID,
		fact.Metadata,
		fact.CreatedAt,
	).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.ChunkTransfer, error) {
	var facts []*domain.ChunkTransfer
	stmt := db.WithContext(ctx).Model(&domain.ChunkTransfer{})

	if world := strings.TrimSpace(filter.World); world != "" {
		stmt = stmt.Where("world = ?", world)
	}
	if filter.Kind != "" {
		stmt = stmt.Where("kind = ?", filter.Kind)
	}
	if filter.ClaimID != nil {
		stmt = stmt.Where("from_claim_id = ? OR to_claim_id = ?", *filter.ClaimID, *filter.ClaimID)
	}
	if filter.StartAt != nil {
		stmt = stmt.Where("created_at >= ?", filter.StartAt.UTC())
	}
	if filter.EndAt != nil {
		stmt = stmt.Where("created_at <= ?", filter.EndAt.UTC())
	}
	if filter.Cursor != nil {
		stmt = stmt.Where("(created_at < ?) OR (created_at = ? AND id < ?)",
			filter.Cursor.CreatedAt,
			filter.Cursor.CreatedAt,
			filter.Cursor.ID,
		)
	}

	stmt = stmt.Order("created_at desc, id desc")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit + 1)
	}

	if err := stmt.Find(&facts).Error; err != nil {
		return nil, err
	}
	return facts, nil
}
