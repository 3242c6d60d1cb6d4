package gallery

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/yungbote/promptgallery-backend/internal/data/repos/testutil"
	types "github.com/yungbote/promptgallery-backend/internal/domain"
	"github.com/yungbote/promptgallery-backend/internal/platform/dbctx"
)

func TestAssetRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	repo := NewAssetRepo(db, testutil.Logger(t))
	member := testutil.SeedMember(t, ctx, tx, "a cat on a red sofa", uuid.Nil)

	created, err := repo.Create(dbc, []*types.Asset{{
		MemberID:   member.ID,
		Kind:       types.AssetKindImage,
		StorageKey: "prompts/2024/1/1/abc.png",
	}})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	a := created[0]
	if a.Role != types.AssetRoleGenerated || a.EmbeddingStatus != types.EmbeddingPending {
		t.Fatalf("Create: defaults not applied %+v", a)
	}

	missing, err := repo.ListMissingHash(dbc, uuid.Nil, 10)
	if err != nil || len(missing) != 1 || missing[0].ID != a.ID {
		t.Fatalf("ListMissingHash: got=%+v err=%v", missing, err)
	}

	ok, err := repo.SetContentHash(dbc, a.ID, "h1")
	if err != nil || !ok {
		t.Fatalf("SetContentHash: ok=%v err=%v", ok, err)
	}
	ok, err = repo.SetContentHash(dbc, a.ID, "h2")
	if err != nil || ok {
		t.Fatalf("SetContentHash: hash must be immutable once set, ok=%v err=%v", ok, err)
	}
	dups, err := repo.FindByContentHash(dbc, types.AssetRoleGenerated, "h1")
	if err != nil || len(dups) != 1 {
		t.Fatalf("FindByContentHash: got=%d err=%v", len(dups), err)
	}
	dups, err = repo.FindByContentHash(dbc, types.AssetRoleReference, "h1")
	if err != nil || len(dups) != 0 {
		t.Fatalf("FindByContentHash(other role): got=%d err=%v", len(dups), err)
	}

	need, err := repo.ListMissingEmbedding(dbc, "pixel-v1", false, uuid.Nil, 0)
	if err != nil || len(need) != 1 {
		t.Fatalf("ListMissingEmbedding: got=%d err=%v", len(need), err)
	}
	if err := repo.MarkEmbeddingFailed(dbc, a.ID, "decode failed"); err != nil {
		t.Fatalf("MarkEmbeddingFailed: %v", err)
	}
	need, _ = repo.ListMissingEmbedding(dbc, "pixel-v1", false, uuid.Nil, 0)
	if len(need) != 0 {
		t.Fatalf("ListMissingEmbedding: failed rows should be skipped")
	}
	need, _ = repo.ListMissingEmbedding(dbc, "pixel-v1", true, uuid.Nil, 0)
	if len(need) != 1 {
		t.Fatalf("ListMissingEmbedding(includeFailed): got=%d", len(need))
	}

	if err := repo.SetEmbedding(dbc, a.ID, []float32{0.6, 0.8}, "pixel-v1"); err != nil {
		t.Fatalf("SetEmbedding: %v", err)
	}
	got, err := repo.GetByID(dbc, a.ID)
	if err != nil || got == nil {
		t.Fatalf("GetByID: got=%v err=%v", got, err)
	}
	if got.EmbeddingStatus != types.EmbeddingReady || len(got.Vector()) != 2 {
		t.Fatalf("SetEmbedding: not persisted %+v", got)
	}
}

func TestAssetRepoListVectors(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewAssetRepo(db, testutil.Logger(t))

	member := testutil.SeedMember(t, ctx, tx, "vectors", uuid.Nil)
	a := testutil.SeedAsset(t, ctx, tx, member.ID, "ha", []float32{1, 0, 0})
	b := testutil.SeedAsset(t, ctx, tx, member.ID, "hb", []float32{0, 1, 0})
	testutil.SeedAsset(t, ctx, tx, member.ID, "hc", nil)

	if err := repo.UpdateFields(dbc, b.ID, map[string]interface{}{"is_liked": true}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}

	vecs, err := repo.ListVectors(dbc, VectorFilter{Model: "test"})
	if err != nil {
		t.Fatalf("ListVectors: %v", err)
	}
	if len(vecs) != 2 {
		t.Fatalf("ListVectors: got=%d want=2", len(vecs))
	}
	for _, v := range vecs {
		if v.Embedding == nil || len(v.Embedding.Slice()) != 3 {
			t.Fatalf("ListVectors: embedding not loaded for %s", v.ID)
		}
	}

	vecs, _ = repo.ListVectors(dbc, VectorFilter{Model: "test", LikedOnly: true})
	if len(vecs) != 1 || vecs[0].ID != b.ID {
		t.Fatalf("ListVectors(liked): got=%+v", vecs)
	}
	vecs, _ = repo.ListVectors(dbc, VectorFilter{Model: "test", ExcludeIDs: []uuid.UUID{a.ID}})
	if len(vecs) != 1 || vecs[0].ID != b.ID {
		t.Fatalf("ListVectors(exclude): got=%+v", vecs)
	}
	vecs, _ = repo.ListVectors(dbc, VectorFilter{Model: "other"})
	if len(vecs) != 0 {
		t.Fatalf("ListVectors(other model): got=%d", len(vecs))
	}

	liked, err := repo.ListLiked(dbc, 10, 0)
	if err != nil || len(liked) != 1 {
		t.Fatalf("ListLiked: got=%d err=%v", len(liked), err)
	}

	if err := repo.DeleteByMemberIDs(dbc, []uuid.UUID{member.ID}); err != nil {
		t.Fatalf("DeleteByMemberIDs: %v", err)
	}
	left, _ := repo.GetByMemberIDs(dbc, []uuid.UUID{member.ID})
	if len(left) != 0 {
		t.Fatalf("DeleteByMemberIDs: %d assets remain", len(left))
	}
}

func TestMarkEmbeddingFailedKeepsValidUTF8(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewAssetRepo(db, testutil.Logger(t))

	m := testutil.SeedMember(t, ctx, tx, "a cat on a red sofa", uuid.New())
	a := &types.Asset{MemberID: m.ID, Role: types.AssetRoleGenerated, Kind: types.AssetKindImage, StorageKey: "k.png", ContentHash: "h-utf8"}
	if _, err := repo.Create(dbc, []*types.Asset{a}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// The 3-byte rune straddles the 500-byte limit.
	reason := strings.Repeat("x", 498) + "漢字.png could not be decoded"
	if err := repo.MarkEmbeddingFailed(dbc, a.ID, reason); err != nil {
		t.Fatalf("MarkEmbeddingFailed: %v", err)
	}
	got, err := repo.GetByID(dbc, a.ID)
	if err != nil || got == nil {
		t.Fatalf("GetByID: got=%v err=%v", got, err)
	}
	if got.EmbeddingStatus != types.EmbeddingFailed {
		t.Fatalf("status: got=%q", got.EmbeddingStatus)
	}
	if !utf8.ValidString(got.EmbeddingError) || len(got.EmbeddingError) != 498 {
		t.Fatalf("embedding_error: valid=%v len=%d", utf8.ValidString(got.EmbeddingError), len(got.EmbeddingError))
	}
}

func TestTruncateUTF8(t *testing.T) {
	cases := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"abcdef", 3, "abc"},
		{"aé", 2, "a"},
		{"é", 1, ""},
		{"ab漢", 4, "ab"},
		{"ab漢", 5, "ab漢"},
	}
	for _, tc := range cases {
		if got := truncateUTF8(tc.in, tc.max); got != tc.want {
			t.Fatalf("truncateUTF8(%q, %d): got=%q want=%q", tc.in, tc.max, got, tc.want)
		}
	}
}
