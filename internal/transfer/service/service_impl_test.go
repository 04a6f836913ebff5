package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	claimdomain "github.com/smallbiznis/claimward/internal/claim/domain"
	claimrepo "github.com/smallbiznis/claimward/internal/claim/repository"
	"github.com/smallbiznis/claimward/internal/clock"
	transferdomain "github.com/smallbiznis/claimward/internal/transfer/domain"
	logdomain "github.com/smallbiznis/claimward/internal/transferlog/domain"
	logrepo "github.com/smallbiznis/claimward/internal/transferlog/repository"
	logservice "github.com/smallbiznis/claimward/internal/transferlog/service"
	"github.com/smallbiznis/claimward/internal/txn"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	svc  transferdomain.Service
	conn *gorm.DB
}

func setupTransferService(t *testing.T) fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&claimdomain.ChunkClaim{}, &logdomain.ChunkTransfer{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	fake := clock.NewFakeClock(time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC))
	log := zap.NewNop()
	coordinator := txn.NewCoordinator(txn.Params{DB: conn, Log: log})

	facts := logservice.NewService(logservice.Params{
		DB:    conn,
		Log:   log,
		GenID: node,
		Clock: fake,
		Repo:  logrepo.Provide(),
	})

	svc := NewService(Params{
		DB:          conn,
		Log:         log,
		GenID:       node,
		Clock:       fake,
		Coordinator: coordinator,
		Chunks:      claimrepo.Provide(),
		Facts:       facts,
	})
	return fixture{svc: svc, conn: conn}
}

func seedChunk(t *testing.T, conn *gorm.DB, id, claimID, ownerID snowflake.ID, ref claimdomain.ChunkRef) {
	t.Helper()
	now := time.Now().UTC()
	row := claimdomain.ChunkClaim{
		ID:        id,
		World:     ref.World,
		X:         ref.X,
		Z:         ref.Z,
		ClaimID:   claimID,
		OwnerID:   ownerID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := conn.Create(&row).Error; err != nil {
		t.Fatalf("seed chunk: %v", err)
	}
}

func countFacts(t *testing.T, conn *gorm.DB) int64 {
	t.Helper()
	var n int64
	if err := conn.Model(&logdomain.ChunkTransfer{}).Count(&n).Error; err != nil {
		t.Fatalf("count facts: %v", err)
	}
	return n
}

func chunkOwner(t *testing.T, conn *gorm.DB, ref claimdomain.ChunkRef) snowflake.ID {
	t.Helper()
	var row claimdomain.ChunkClaim
	err := conn.Where("world = ? AND x = ? AND z = ?", ref.World, ref.X, ref.Z).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0
	}
	if err != nil {
		t.Fatalf("load chunk: %v", err)
	}
	return row.ClaimID
}

func refs(n int) []claimdomain.ChunkRef {
	out := make([]claimdomain.ChunkRef, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, claimdomain.ChunkRef{World: "world", X: int32(i), Z: 0})
	}
	return out
}

func TestTransferChunksMovesWholeBatch(t *testing.T) {
	f := setupTransferService(t)
	chunks := refs(3)
	for i, ref := range chunks {
		seedChunk(t, f.conn, snowflake.ID(i+1), 10, 100, ref)
	}

	err := f.svc.TransferChunks(context.Background(), chunks, 10, 20)
	assert.NoError(t, err)

	for _, ref := range chunks {
		assert.Equal(t, snowflake.ID(20), chunkOwner(t, f.conn, ref))
	}
	assert.Equal(t, int64(3), countFacts(t, f.conn))
}

func TestTransferChunksIsAllOrNothing(t *testing.T) {
	f := setupTransferService(t)
	chunks := refs(3)
	seedChunk(t, f.conn, 1, 10, 100, chunks[0])
	seedChunk(t, f.conn, 2, 10, 100, chunks[1])
	// The third chunk belongs to a different claim.
	seedChunk(t, f.conn, 3, 99, 900, chunks[2])

	err := f.svc.TransferChunks(context.Background(), chunks, 10, 20)
	assert.ErrorIs(t, err, claimdomain.ErrChunkOwnerMismatch)

	// Nothing moved, nothing was logged.
	assert.Equal(t, snowflake.ID(10), chunkOwner(t, f.conn, chunks[0]))
	assert.Equal(t, snowflake.ID(10), chunkOwner(t, f.conn, chunks[1]))
	assert.Equal(t, snowflake.ID(99), chunkOwner(t, f.conn, chunks[2]))
	assert.Equal(t, int64(0), countFacts(t, f.conn))
}

func TestTransferChunksValidation(t *testing.T) {
	f := setupTransferService(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.svc.TransferChunks(ctx, nil, 10, 20), transferdomain.ErrEmptyBatch)
	assert.ErrorIs(t, f.svc.TransferChunks(ctx, refs(1), 0, 20), transferdomain.ErrInvalidClaim)
	assert.ErrorIs(t, f.svc.TransferChunks(ctx, refs(1), 10, 0), transferdomain.ErrInvalidTarget)
	assert.ErrorIs(t, f.svc.TransferChunks(ctx, refs(1), 10, 10), transferdomain.ErrSameClaim)
}

func TestClaimChunksRejectsOwnedChunk(t *testing.T) {
	f := setupTransferService(t)
	chunks := refs(2)
	seedChunk(t, f.conn, 1, 99, 900, chunks[1])

	err := f.svc.ClaimChunks(context.Background(), chunks, 10, 100)
	assert.ErrorIs(t, err, claimdomain.ErrChunkAlreadyOwned)

	// The first chunk's insert rolled back with the batch.
	assert.Equal(t, snowflake.ID(0), chunkOwner(t, f.conn, chunks[0]))
	assert.Equal(t, int64(0), countFacts(t, f.conn))
}

func TestUnclaimChunksWritesFacts(t *testing.T) {
	f := setupTransferService(t)
	chunks := refs(2)
	for i, ref := range chunks {
		seedChunk(t, f.conn, snowflake.ID(i+1), 10, 100, ref)
	}

	err := f.svc.UnclaimChunks(context.Background(), chunks, 10)
	assert.NoError(t, err)

	for _, ref := range chunks {
		assert.Equal(t, snowflake.ID(0), chunkOwner(t, f.conn, ref))
	}

	var facts []logdomain.ChunkTransfer
	assert.NoError(t, f.conn.Find(&facts).Error)
	if assert.Len(t, facts, 2) {
		for _, fact := range facts {
			assert.Equal(t, logdomain.TransferKindUnclaim, fact.Kind)
			if assert.NotNil(t, fact.FromClaimID) {
				assert.Equal(t, snowflake.ID(10), *fact.FromClaimID)
			}
			assert.Nil(t, fact.ToClaimID)
		}
	}
}

func TestForfeitChunksReleasesEverythingWithLossFacts(t *testing.T) {
	f := setupTransferService(t)
	for i := 0; i < 4; i++ {
		seedChunk(t, f.conn, snowflake.ID(i+1), 10, 100, claimdomain.ChunkRef{World: "world", X: int32(i), Z: 2})
	}
	seedChunk(t, f.conn, 5, 20, 200, claimdomain.ChunkRef{World: "world", X: 9, Z: 9})

	released, err := f.svc.ForfeitChunks(context.Background(), 10)
	assert.NoError(t, err)
	assert.Equal(t, 4, released)

	var remaining int64
	assert.NoError(t, f.conn.Model(&claimdomain.ChunkClaim{}).Where("claim_id = ?", 10).Count(&remaining).Error)
	assert.Equal(t, int64(0), remaining)

	// The other claim's chunk is untouched.
	assert.Equal(t, snowflake.ID(20), chunkOwner(t, f.conn, claimdomain.ChunkRef{World: "world", X: 9, Z: 9}))

	var facts []logdomain.ChunkTransfer
	assert.NoError(t, f.conn.Where("kind = ?", logdomain.TransferKindUpkeepLoss).Find(&facts).Error)
	assert.Len(t, facts, 4)
}
