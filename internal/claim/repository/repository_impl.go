package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/claimward/internal/claim/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Owner(ctx context.Context, db *gorm.DB, ref domain.ChunkRef) (*domain.ChunkClaim, error) {
	var chunk domain.ChunkClaim
	err := db.WithContext(ctx).
		Where("world = ? AND x = ? AND z = ?", ref.World, ref.X, ref.Z).
		First(&chunk).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &chunk, nil
}

func (r *repo) ListByClaim(ctx context.Context, db *gorm.DB, claimID snowflake.ID) ([]*domain.ChunkClaim, error) {
	var chunks []*domain.ChunkClaim
	err := db.WithContext(ctx).
		Where("claim_id = ?", claimID).
		Order("world ASC, x ASC, z ASC").
		Find(&chunks).Error
	if err != nil {
		return nil, err
	}
	return chunks, nil
}

func (r *repo) CountByClaim(ctx context.Context, db *gorm.DB, claimID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.ChunkClaim{}).
		Where("claim_id = ?", claimID).
		Count(&count).Error
	return count, err
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, chunk *domain.ChunkClaim) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO chunk_claims (
			id, world, x, z, claim_id, owner_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		chunk.ID,
		chunk.World,
		chunk.X,
		chunk.Z,
		chunk.ClaimID,
		chunk.OwnerID,
		chunk.CreatedAt,
		chunk.UpdatedAt,
	).Error
}

func (r *repo) Repoint(ctx context.Context, db *gorm.DB, ref domain.ChunkRef, fromClaim, toClaim snowflake.ID, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE chunk_claims
		 SET claim_id = ?, updated_at = ?
		 WHERE world = ? AND x = ? AND z = ? AND claim_id = ?`,
		toClaim,
		now,
		ref.World,
		ref.X,
		ref.Z,
		fromClaim,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) Release(ctx context.Context, db *gorm.DB, ref domain.ChunkRef, claimID snowflake.ID) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`DELETE FROM chunk_claims
		 WHERE world = ? AND x = ? AND z = ? AND claim_id = ?`,
		ref.World,
		ref.X,
		ref.Z,
		claimID,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
