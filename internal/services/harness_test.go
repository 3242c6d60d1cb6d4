package services

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/promptgallery-backend/internal/clustering"
	"github.com/yungbote/promptgallery-backend/internal/data/repos"
	"github.com/yungbote/promptgallery-backend/internal/data/repos/testutil"
	types "github.com/yungbote/promptgallery-backend/internal/domain"
	"github.com/yungbote/promptgallery-backend/internal/platform/storage"
	"github.com/yungbote/promptgallery-backend/internal/similarity"
)

type harness struct {
	db       *gorm.DB
	assets   repos.AssetRepo
	members  repos.PromptMemberRepo
	store    storage.Store
	engine   *clustering.Engine
	embedder similarity.Embedder
	worker   AssetEmbedder

	assetSvc  AssetService
	memberSvc MemberService
	familySvc FamilyService
	backfill  BackfillService
}

type harnessOpt func(*harnessConfig)

type harnessConfig struct {
	embedder  similarity.Embedder
	asset     AssetServiceConfig
	fileDB    bool
	wrapStore func(storage.Store) storage.Store
}

// withFileDB backs the harness with a pooled SQLite file so goroutines can run
// transactions side by side.
func withFileDB() harnessOpt {
	return func(c *harnessConfig) { c.fileDB = true }
}

func withStore(wrap func(storage.Store) storage.Store) harnessOpt {
	return func(c *harnessConfig) { c.wrapStore = wrap }
}

func withEmbedder(e similarity.Embedder) harnessOpt {
	return func(c *harnessConfig) { c.embedder = e }
}

func withDedup(p DedupPolicy) harnessOpt {
	return func(c *harnessConfig) { c.asset.Dedup = p }
}

func newHarness(t *testing.T, opts ...harnessOpt) *harness {
	t.Helper()
	cfg := harnessConfig{
		embedder: similarity.NewExtractor(similarity.NewPixelEncoder(), nil, similarity.ExtractorConfig{}),
		asset:    DefaultAssetServiceConfig(),
	}
	for _, o := range opts {
		o(&cfg)
	}

	log := testutil.Logger(t)
	db := testutil.SQLite(t)
	if cfg.fileDB {
		db = testutil.SQLiteFile(t)
	}
	var store storage.Store
	store, err := storage.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	if cfg.wrapStore != nil {
		store = cfg.wrapStore(store)
	}
	h := &harness{
		db:       db,
		assets:   repos.NewAssetRepo(db, log),
		members:  repos.NewPromptMemberRepo(db, log),
		store:    store,
		embedder: cfg.embedder,
	}
	h.engine = clustering.NewEngine(h.members, clustering.DefaultConfig(), clustering.DefaultSuggestionConfig())
	h.worker = NewAssetEmbedder(db, log, h.assets, store, cfg.embedder)
	dispatch := NewSyncDispatcher(log, h.worker)

	h.assetSvc = NewAssetService(db, log, h.assets, h.members, store, cfg.embedder, dispatch, cfg.asset)
	h.memberSvc = NewMemberService(db, log, h.members, h.assets, h.engine, store)
	h.familySvc = NewFamilyService(db, log, h.members, h.assets, h.engine, 0)
	h.backfill = NewBackfillService(db, log, h.assets, h.members, store, h.worker)
	return h
}

func (h *harness) create(t *testing.T, prompt string) *types.PromptMember {
	t.Helper()
	res, err := h.memberSvc.Create(context.Background(), CreateMemberInput{PromptText: prompt})
	if err != nil {
		t.Fatalf("Create(%q): %v", prompt, err)
	}
	return res.Member
}

func (h *harness) reload(t *testing.T, id uuid.UUID) *types.PromptMember {
	t.Helper()
	var m types.PromptMember
	if err := h.db.Where("id = ?", id).Take(&m).Error; err != nil {
		t.Fatalf("reload member %s: %v", id, err)
	}
	return &m
}

func (h *harness) familyOf(t *testing.T, id uuid.UUID) uuid.UUID {
	t.Helper()
	return h.reload(t, id).FamilyID
}

func (h *harness) countFamily(t *testing.T, fam uuid.UUID) int64 {
	t.Helper()
	var n int64
	if err := h.db.Model(&types.PromptMember{}).Where("family_id = ?", fam).Count(&n).Error; err != nil {
		t.Fatalf("count family: %v", err)
	}
	return n
}

func (h *harness) mainsIn(t *testing.T, fam uuid.UUID) []uuid.UUID {
	t.Helper()
	var ids []uuid.UUID
	if err := h.db.Model(&types.PromptMember{}).
		Where("family_id = ? AND is_main_variant = ?", fam, true).
		Pluck("id", &ids).Error; err != nil {
		t.Fatalf("mains: %v", err)
	}
	return ids
}

// familySnapshot maps every member to its family id.
func (h *harness) familySnapshot(t *testing.T) map[uuid.UUID]uuid.UUID {
	t.Helper()
	var rows []types.PromptMember
	if err := h.db.Select("id", "family_id").Find(&rows).Error; err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	out := make(map[uuid.UUID]uuid.UUID, len(rows))
	for _, r := range rows {
		out[r.ID] = r.FamilyID
	}
	return out
}

func pngBytes(t *testing.T, w, h int, fill func(fx, fy float64) color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, fill(float64(x)/float64(w), float64(y)/float64(h)))
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	return buf.Bytes()
}

func sunset(fx, fy float64) color.RGBA {
	return color.RGBA{R: uint8(255 * fx), G: uint8(200 * fy), B: 90, A: 255}
}

func stripes(fx, fy float64) color.RGBA {
	if int(fx*8)%2 == 0 {
		return color.RGBA{R: 20, G: 220, B: 40, A: 255}
	}
	return color.RGBA{R: 240, G: 240, B: 10, A: 255}
}

// fakeEmbedder returns fixed vectors by source name.
type fakeEmbedder struct {
	vecs map[string][]float32
}

func (f *fakeEmbedder) Model() string { return "test" }

func (f *fakeEmbedder) Embed(ctx context.Context, src similarity.MediaSource) ([]float32, error) {
	v, ok := f.vecs[src.Name()]
	if !ok {
		return nil, &similarity.EmbeddingError{Kind: similarity.KindUndecodable, Err: errors.New("unknown fixture")}
	}
	out := append([]float32(nil), v...)
	return out, nil
}
