package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	types "github.com/yungbote/promptgallery-backend/internal/domain"
)

// SeedMember inserts a member. A nil familyID starts a new family.
func SeedMember(tb testing.TB, ctx context.Context, tx *gorm.DB, prompt string, familyID uuid.UUID) *types.PromptMember {
	tb.Helper()
	return SeedMemberAt(tb, ctx, tx, prompt, familyID, time.Time{})
}

// SeedMemberAt is SeedMember with an explicit creation time, for ordering-sensitive tests.
func SeedMemberAt(tb testing.TB, ctx context.Context, tx *gorm.DB, prompt string, familyID uuid.UUID, createdAt time.Time) *types.PromptMember {
	tb.Helper()
	m := &types.PromptMember{
		ID:         uuid.New(),
		Title:      "member",
		PromptText: prompt,
		FamilyID:   familyID,
		CreatedAt:  createdAt,
		UpdatedAt:  createdAt,
	}
	if err := tx.WithContext(ctx).Omit("Assets").Create(m).Error; err != nil {
		tb.Fatalf("seed member: %v", err)
	}
	return m
}

func SeedAsset(tb testing.TB, ctx context.Context, tx *gorm.DB, memberID uuid.UUID, hash string, vec []float32) *types.Asset {
	tb.Helper()
	a := &types.Asset{
		ID:          uuid.New(),
		MemberID:    memberID,
		Role:        types.AssetRoleGenerated,
		Kind:        types.AssetKindImage,
		StorageKey:  "test/" + uuid.NewString() + ".png",
		MimeType:    "image/png",
		ContentHash: hash,
	}
	if vec != nil {
		v := pgvector.NewVector(vec)
		a.Embedding = &v
		a.EmbeddingModel = "test"
		a.EmbeddingStatus = types.EmbeddingReady
	}
	if err := tx.WithContext(ctx).Create(a).Error; err != nil {
		tb.Fatalf("seed asset: %v", err)
	}
	return a
}
