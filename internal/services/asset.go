package services

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	dataagg "github.com/yungbote/promptgallery-backend/internal/data/aggregates"
	"github.com/yungbote/promptgallery-backend/internal/data/repos"
	types "github.com/yungbote/promptgallery-backend/internal/domain"
	domainagg "github.com/yungbote/promptgallery-backend/internal/domain/aggregates"
	"github.com/yungbote/promptgallery-backend/internal/observability"
	"github.com/yungbote/promptgallery-backend/internal/platform/dbctx"
	"github.com/yungbote/promptgallery-backend/internal/platform/logger"
	"github.com/yungbote/promptgallery-backend/internal/platform/storage"
	"github.com/yungbote/promptgallery-backend/internal/similarity"
)

type DedupPolicy string

const (
	// DedupReject skips creating a byte-identical asset and reports the existing one.
	DedupReject DedupPolicy = "reject"
	// DedupFlag creates the asset and points duplicate_of_id at the original.
	DedupFlag DedupPolicy = "flag"
)

func ParseDedupPolicy(s string) DedupPolicy {
	if DedupPolicy(strings.ToLower(strings.TrimSpace(s))) == DedupFlag {
		return DedupFlag
	}
	return DedupReject
}

type AssetServiceConfig struct {
	Dedup     DedupPolicy
	Threshold float64
	TopK      int
	// MaxPool caps how many stored vectors a single search loads.
	MaxPool int
}

func DefaultAssetServiceConfig() AssetServiceConfig {
	return AssetServiceConfig{
		Dedup:     DedupReject,
		Threshold: similarity.DefaultThreshold,
		TopK:      similarity.DefaultTopK,
		MaxPool:   20000,
	}
}

type UploadFile struct {
	Name        string
	ContentType string
	Data        []byte
}

type UploadResult struct {
	Name      string       `json:"name"`
	Asset     *types.Asset `json:"asset,omitempty"`
	Duplicate bool         `json:"duplicate"`
	Existing  *types.Asset `json:"existing,omitempty"`
}

type DuplicateCheck struct {
	Name      string       `json:"name"`
	Hash      string       `json:"hash"`
	Duplicate bool         `json:"duplicate"`
	Existing  *types.Asset `json:"existing,omitempty"`
}

type SearchOptions struct {
	TopK      int
	Threshold *float64
	Role      types.AssetRole
	LikedOnly bool
}

type SearchHit struct {
	Asset  *types.Asset `json:"asset"`
	Score  int          `json:"score"`
	Cosine float64      `json:"cosine"`
}

type AssetService interface {
	Upload(ctx context.Context, memberID uuid.UUID, role types.AssetRole, files []UploadFile) ([]UploadResult, error)
	CheckDuplicates(ctx context.Context, role types.AssetRole, files []UploadFile) ([]DuplicateCheck, error)
	SearchByMedia(ctx context.Context, src similarity.MediaSource, opts SearchOptions) ([]SearchHit, error)
	SearchByAsset(ctx context.Context, assetID uuid.UUID, opts SearchOptions) ([]SearchHit, error)
	ToggleLike(ctx context.Context, assetID uuid.UUID) (*types.Asset, error)
	Delete(ctx context.Context, assetID uuid.UUID) error
	ListLiked(ctx context.Context, limit, offset int) ([]*types.Asset, error)
}

type assetService struct {
	db         *gorm.DB
	log        *logger.Logger
	tx         dataagg.TxRunner
	assetRepo  repos.AssetRepo
	memberRepo repos.PromptMemberRepo
	store      storage.Store
	embedder   similarity.Embedder
	dispatch   EmbeddingDispatcher
	cfg        AssetServiceConfig
	now        func() time.Time
}

func NewAssetService(
	db *gorm.DB,
	log *logger.Logger,
	assetRepo repos.AssetRepo,
	memberRepo repos.PromptMemberRepo,
	store storage.Store,
	embedder similarity.Embedder,
	dispatch EmbeddingDispatcher,
	cfg AssetServiceConfig,
) AssetService {
	if cfg.Threshold <= 0 {
		cfg.Threshold = similarity.DefaultThreshold
	}
	if cfg.TopK <= 0 {
		cfg.TopK = similarity.DefaultTopK
	}
	if cfg.Dedup == "" {
		cfg.Dedup = DedupReject
	}
	return &assetService{
		db:         db,
		log:        log.With("service", "AssetService"),
		tx:         dataagg.NewGormTxRunner(db),
		assetRepo:  assetRepo,
		memberRepo: memberRepo,
		store:      store,
		embedder:   embedder,
		dispatch:   dispatch,
		cfg:        cfg,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *assetService) Upload(ctx context.Context, memberID uuid.UUID, role types.AssetRole, files []UploadFile) (out []UploadResult, err error) {
	const op = "asset.upload"
	ctx, span := startSpan(ctx, op, attribute.String("member_id", memberID.String()), attribute.Int("files", len(files)))
	defer func() { endSpan(span, err) }()

	if role == "" {
		role = types.AssetRoleGenerated
	}
	if !role.Valid() {
		return nil, domainagg.Validation(op, "unknown asset role %q", role)
	}
	if len(files) == 0 {
		return nil, domainagg.Validation(op, "no files")
	}
	dbc := dbctx.New(ctx)
	member, err := s.memberRepo.GetByID(dbc, memberID)
	if err != nil {
		return nil, dataagg.MapError(op, err)
	}
	if member == nil {
		return nil, domainagg.NotFound(op, "member %s not found", memberID)
	}

	for _, f := range files {
		if len(f.Data) == 0 {
			return nil, domainagg.Validation(op, "file %q is empty", f.Name)
		}
	}

	// Whatever was persisted gets embedded, even if a later file fails.
	var created []uuid.UUID
	defer func() {
		if s.dispatch != nil && len(created) > 0 {
			s.dispatch.Enqueue(context.WithoutCancel(ctx), created...)
		}
	}()
	out = make([]UploadResult, 0, len(files))
	for _, f := range files {
		res, err := s.uploadOne(ctx, member.ID, role, f)
		if err != nil {
			return out, err
		}
		if res.Asset != nil {
			created = append(created, res.Asset.ID)
		}
		out = append(out, res)
	}
	return out, nil
}

func (s *assetService) uploadOne(ctx context.Context, memberID uuid.UUID, role types.AssetRole, f UploadFile) (UploadResult, error) {
	const op = "asset.upload"
	res := UploadResult{Name: f.Name}
	if len(f.Data) == 0 {
		return res, domainagg.Validation(op, "file %q is empty", f.Name)
	}

	body := bytes.NewReader(f.Data)
	hash, err := similarity.HashSeeker(body)
	if err != nil {
		return res, domainagg.Wrap(domainagg.CodeInternal, op, err)
	}

	var duplicateOf *uuid.UUID
	existing, err := s.assetRepo.FindByContentHash(dbctx.New(ctx), role, hash)
	if err != nil {
		return res, dataagg.MapError(op, err)
	}
	if len(existing) > 0 {
		res.Duplicate = true
		res.Existing = existing[0]
		if s.cfg.Dedup == DedupReject {
			s.log.Info("Duplicate upload rejected", "name", f.Name, "hash", hash, "existing_id", existing[0].ID)
			observability.Current().IncUpload(string(role), "rejected_duplicate")
			return res, nil
		}
		id := existing[0].ID
		duplicateOf = &id
	}

	ext := strings.ToLower(path.Ext(f.Name))
	key := storage.NewKey(role == types.AssetRoleReference, ext, s.now())
	contentType := f.ContentType
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = storage.ContentTypeForKey(key)
	}
	if s.store == nil {
		return res, domainagg.NewError(domainagg.CodeUnavailable, op, "no object store configured", nil)
	}
	// HashSeeker restored the offset, so the same reader is persisted as-is.
	if err := s.store.Put(ctx, key, body, contentType); err != nil {
		return res, domainagg.Wrap(domainagg.CodeUnavailable, op, err)
	}

	kind := types.AssetKindImage
	if similarity.IsVideoName(f.Name) {
		kind = types.AssetKindVideo
	}
	asset := &types.Asset{
		MemberID:      memberID,
		Role:          role,
		Kind:          kind,
		StorageKey:    key,
		OriginalName:  f.Name,
		MimeType:      contentType,
		SizeBytes:     int64(len(f.Data)),
		ContentHash:   hash,
		DuplicateOfID: duplicateOf,
		Metadata:      mediaMetadata(kind, f.Data),
	}
	err = s.tx.InTx(ctx, func(dbc dbctx.Context) error {
		_, err := s.assetRepo.Create(dbc, []*types.Asset{asset})
		return err
	})
	if err != nil {
		if derr := s.store.Delete(context.WithoutCancel(ctx), key); derr != nil {
			s.log.Warn("Orphaned object after failed insert", "key", key, "error", derr)
		}
		return res, dataagg.MapError(op, err)
	}
	res.Asset = asset
	outcome := "created"
	if duplicateOf != nil {
		outcome = "flagged_duplicate"
	}
	observability.Current().IncUpload(string(role), outcome)
	return res, nil
}

func mediaMetadata(kind types.AssetKind, data []byte) datatypes.JSON {
	if kind != types.AssetKindImage {
		return nil
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil
	}
	raw, _ := json.Marshal(map[string]any{
		"width":  cfg.Width,
		"height": cfg.Height,
		"format": format,
	})
	return datatypes.JSON(raw)
}

func (s *assetService) CheckDuplicates(ctx context.Context, role types.AssetRole, files []UploadFile) ([]DuplicateCheck, error) {
	const op = "asset.check_duplicates"
	if role == "" {
		role = types.AssetRoleGenerated
	}
	if !role.Valid() {
		return nil, domainagg.Validation(op, "unknown asset role %q", role)
	}
	out := make([]DuplicateCheck, 0, len(files))
	for _, f := range files {
		hash := similarity.HashBytes(f.Data)
		found, err := s.assetRepo.FindByContentHash(dbctx.New(ctx), role, hash)
		if err != nil {
			return nil, dataagg.MapError(op, err)
		}
		c := DuplicateCheck{Name: f.Name, Hash: hash}
		if len(found) > 0 {
			c.Duplicate = true
			c.Existing = found[0]
		}
		out = append(out, c)
	}
	return out, nil
}

// SearchByMedia fails open: a query that cannot be embedded yields no hits, not an error.
func (s *assetService) SearchByMedia(ctx context.Context, src similarity.MediaSource, opts SearchOptions) (hits []SearchHit, err error) {
	ctx, span := startSpan(ctx, "asset.search_by_media", attribute.String("name", src.Name()))
	defer func() { endSpan(span, err) }()

	if s.embedder == nil {
		s.log.Warn("Similarity search without an embedder")
		return []SearchHit{}, nil
	}
	vec, err := s.embedder.Embed(ctx, src)
	if err != nil {
		s.log.Warn("Query embedding failed", "name", src.Name(), "kind", similarity.KindOf(err), "error", err)
		observability.Current().ObserveSearch("media", "embed_failed", -1)
		return []SearchHit{}, nil
	}
	return s.search(ctx, "media", vec, nil, opts)
}

func (s *assetService) SearchByAsset(ctx context.Context, assetID uuid.UUID, opts SearchOptions) (hits []SearchHit, err error) {
	const op = "asset.search_by_asset"
	ctx, span := startSpan(ctx, op, attribute.String("asset_id", assetID.String()))
	defer func() { endSpan(span, err) }()

	asset, err := s.assetRepo.GetByID(dbctx.New(ctx), assetID)
	if err != nil {
		return nil, dataagg.MapError(op, err)
	}
	if asset == nil {
		return nil, domainagg.NotFound(op, "asset %s not found", assetID)
	}
	if s.embedder == nil {
		return []SearchHit{}, nil
	}

	vec := asset.Vector()
	if len(vec) == 0 || asset.EmbeddingModel != s.embedder.Model() {
		vec, err = s.embedStored(ctx, asset)
		if err != nil {
			s.log.Warn("Stored asset could not be embedded", "asset_id", asset.ID, "kind", similarity.KindOf(err), "error", err)
			observability.Current().ObserveSearch("asset", "embed_failed", -1)
			return []SearchHit{}, nil
		}
	}
	return s.search(ctx, "asset", vec, []uuid.UUID{asset.ID}, opts)
}

func (s *assetService) embedStored(ctx context.Context, asset *types.Asset) ([]float32, error) {
	if s.store == nil {
		return nil, domainagg.NewError(domainagg.CodeUnavailable, "asset.embed", "no object store configured", nil)
	}
	rc, err := s.store.Open(ctx, asset.StorageKey)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(rc); err != nil {
		return nil, err
	}
	return s.embedder.Embed(ctx, similarity.FromBytes(sourceName(asset), buf.Bytes()))
}

func (s *assetService) search(ctx context.Context, source string, query []float32, exclude []uuid.UUID, opts SearchOptions) ([]SearchHit, error) {
	const op = "asset.search"
	dbc := dbctx.New(ctx)
	rows, err := s.assetRepo.ListVectors(dbc, repos.VectorFilter{
		Model:      s.embedder.Model(),
		Role:       opts.Role,
		LikedOnly:  opts.LikedOnly,
		ExcludeIDs: exclude,
		Limit:      s.cfg.MaxPool,
	})
	if err != nil {
		return nil, dataagg.MapError(op, err)
	}
	pool := make([]similarity.Candidate, 0, len(rows))
	for _, r := range rows {
		if r == nil || r.Embedding == nil {
			continue
		}
		pool = append(pool, similarity.Candidate{ID: r.ID, Vector: r.Embedding.Slice()})
	}

	topK := opts.TopK
	if topK <= 0 {
		topK = s.cfg.TopK
	}
	threshold := s.cfg.Threshold
	if opts.Threshold != nil {
		threshold = *opts.Threshold
	}
	matches := similarity.Search(query, pool, topK, threshold)
	if len(matches) == 0 {
		observability.Current().ObserveSearch(source, "empty", len(pool))
		return []SearchHit{}, nil
	}

	ids := make([]uuid.UUID, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m.ID)
	}
	assets, err := s.assetRepo.GetByIDs(dbc, ids)
	if err != nil {
		return nil, dataagg.MapError(op, err)
	}
	byID := make(map[uuid.UUID]*types.Asset, len(assets))
	for _, a := range assets {
		byID[a.ID] = a
	}
	hits := make([]SearchHit, 0, len(matches))
	for _, m := range matches {
		a := byID[m.ID]
		if a == nil {
			continue
		}
		hits = append(hits, SearchHit{Asset: a, Score: m.Score, Cosine: m.Cosine})
	}
	observability.Current().ObserveSearch(source, "hits", len(pool))
	s.log.Debug("Similarity search", "source", source, "pool", len(pool), "hits", len(hits), "threshold", threshold)
	return hits, nil
}

func (s *assetService) ToggleLike(ctx context.Context, assetID uuid.UUID) (*types.Asset, error) {
	const op = "asset.toggle_like"
	var out *types.Asset
	err := s.tx.InTx(ctx, func(dbc dbctx.Context) error {
		a, err := s.assetRepo.GetByID(dbc, assetID)
		if err != nil {
			return err
		}
		if a == nil {
			return domainagg.NotFound(op, "asset %s not found", assetID)
		}
		a.IsLiked = !a.IsLiked
		if err := s.assetRepo.UpdateFields(dbc, a.ID, map[string]interface{}{"is_liked": a.IsLiked}); err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, dataagg.MapError(op, err)
	}
	return out, nil
}

func (s *assetService) Delete(ctx context.Context, assetID uuid.UUID) error {
	const op = "asset.delete"
	var key string
	err := s.tx.InTx(ctx, func(dbc dbctx.Context) error {
		a, err := s.assetRepo.GetByID(dbc, assetID)
		if err != nil {
			return err
		}
		if a == nil {
			return domainagg.NotFound(op, "asset %s not found", assetID)
		}
		key = a.StorageKey
		return s.assetRepo.DeleteByIDs(dbc, []uuid.UUID{a.ID})
	})
	if err != nil {
		return dataagg.MapError(op, err)
	}
	deleteObjects(ctx, s.log, s.store, key)
	return nil
}

func (s *assetService) ListLiked(ctx context.Context, limit, offset int) ([]*types.Asset, error) {
	out, err := s.assetRepo.ListLiked(dbctx.New(ctx), limit, offset)
	if err != nil {
		return nil, dataagg.MapError("asset.list_liked", err)
	}
	return out, nil
}

// deleteObjects removes stored files after the rows are gone. A missing object is fine.
func deleteObjects(ctx context.Context, log *logger.Logger, store storage.Store, keys ...string) {
	if store == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, k := range keys {
		if k == "" {
			continue
		}
		if err := store.Delete(ctx, k); err != nil {
			log.Warn("Stored object delete failed", "key", k, "error", err)
		}
	}
}
