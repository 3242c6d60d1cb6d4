package gallery

import (
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	types "github.com/yungbote/promptgallery-backend/internal/domain"
	"github.com/yungbote/promptgallery-backend/internal/platform/dbctx"
	"github.com/yungbote/promptgallery-backend/internal/platform/logger"
)

// VectorFilter narrows the candidate pool for similarity search.
type VectorFilter struct {
	Model      string
	Role       types.AssetRole
	LikedOnly  bool
	ExcludeIDs []uuid.UUID
	Limit      int
}

type AssetRepo interface {
	Create(dbc dbctx.Context, rows []*types.Asset) ([]*types.Asset, error)

	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Asset, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Asset, error)
	GetByMemberIDs(dbc dbctx.Context, memberIDs []uuid.UUID) ([]*types.Asset, error)
	FindByContentHash(dbc dbctx.Context, role types.AssetRole, hash string) ([]*types.Asset, error)

	// ListMissing* page by id: pass the last id of the previous page as after.
	ListMissingHash(dbc dbctx.Context, after uuid.UUID, limit int) ([]*types.Asset, error)
	ListMissingEmbedding(dbc dbctx.Context, model string, includeFailed bool, after uuid.UUID, limit int) ([]*types.Asset, error)
	ListVectors(dbc dbctx.Context, filter VectorFilter) ([]*types.AssetVector, error)
	ListLiked(dbc dbctx.Context, limit, offset int) ([]*types.Asset, error)

	SetContentHash(dbc dbctx.Context, id uuid.UUID, hash string) (bool, error)
	SetEmbedding(dbc dbctx.Context, id uuid.UUID, vec []float32, model string) error
	MarkEmbeddingFailed(dbc dbctx.Context, id uuid.UUID, reason string) error
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error

	DeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) error
	DeleteByMemberIDs(dbc dbctx.Context, memberIDs []uuid.UUID) error
}

type assetRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAssetRepo(db *gorm.DB, baseLog *logger.Logger) AssetRepo {
	return &assetRepo{db: db, log: baseLog.With("repo", "AssetRepo")}
}

func (r *assetRepo) Create(dbc dbctx.Context, rows []*types.Asset) ([]*types.Asset, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if len(rows) == 0 {
		return []*types.Asset{}, nil
	}
	if err := t.WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *assetRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Asset, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	rows, err := r.GetByIDs(dbc, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (r *assetRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Asset, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.Asset
	if len(ids) == 0 {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *assetRepo) GetByMemberIDs(dbc dbctx.Context, memberIDs []uuid.UUID) ([]*types.Asset, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.Asset
	if len(memberIDs) == 0 {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).
		Where("member_id IN ?", memberIDs).
		Order("member_id ASC, created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *assetRepo) FindByContentHash(dbc dbctx.Context, role types.AssetRole, hash string) ([]*types.Asset, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.Asset
	if hash == "" {
		return out, nil
	}
	q := t.WithContext(dbc.Ctx).Where("content_hash = ?", hash)
	if role != "" {
		q = q.Where("role = ?", role)
	}
	if err := q.Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *assetRepo) ListMissingHash(dbc dbctx.Context, after uuid.UUID, limit int) ([]*types.Asset, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.Asset
	q := t.WithContext(dbc.Ctx).Where("(content_hash = '' OR content_hash IS NULL)")
	if after != uuid.Nil {
		q = q.Where("id > ?", after)
	}
	q = q.Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// ListMissingEmbedding returns assets without a vector from model. Rows already marked
// failed are skipped unless includeFailed is set.
func (r *assetRepo) ListMissingEmbedding(dbc dbctx.Context, model string, includeFailed bool, after uuid.UUID, limit int) ([]*types.Asset, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.Asset
	q := t.WithContext(dbc.Ctx).Where("(embedding IS NULL OR embedding_model <> ?)", model)
	if !includeFailed {
		q = q.Where("embedding_status <> ?", types.EmbeddingFailed)
	}
	if after != uuid.Nil {
		q = q.Where("id > ?", after)
	}
	q = q.Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// ListVectors loads only (id, embedding) so large pools stay cheap; callers hydrate
// the filtered result with GetByIDs.
func (r *assetRepo) ListVectors(dbc dbctx.Context, filter VectorFilter) ([]*types.AssetVector, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.AssetVector
	q := t.WithContext(dbc.Ctx).
		Model(&types.Asset{}).
		Select("id", "embedding").
		Where("embedding IS NOT NULL")
	if filter.Model != "" {
		q = q.Where("embedding_model = ?", filter.Model)
	}
	if filter.Role != "" {
		q = q.Where("role = ?", filter.Role)
	}
	if filter.LikedOnly {
		q = q.Where("is_liked = ?", true)
	}
	if len(filter.ExcludeIDs) > 0 {
		q = q.Where("id NOT IN ?", filter.ExcludeIDs)
	}
	q = q.Order("created_at DESC")
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if err := q.Scan(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *assetRepo) ListLiked(dbc dbctx.Context, limit, offset int) ([]*types.Asset, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.Asset
	q := t.WithContext(dbc.Ctx).
		Where("is_liked = ?", true).
		Order("updated_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// SetContentHash writes the hash only when none is stored yet; it reports whether a
// row changed.
func (r *assetRepo) SetContentHash(dbc dbctx.Context, id uuid.UUID, hash string) (bool, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if id == uuid.Nil || hash == "" {
		return false, nil
	}
	res := t.WithContext(dbc.Ctx).
		Model(&types.Asset{}).
		Where("id = ? AND (content_hash = '' OR content_hash IS NULL)", id).
		Updates(map[string]interface{}{
			"content_hash": hash,
			"updated_at":   time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *assetRepo) SetEmbedding(dbc dbctx.Context, id uuid.UUID, vec []float32, model string) error {
	vector := pgvector.NewVector(vec)
	return r.UpdateFields(dbc, id, map[string]interface{}{
		"embedding":        vector,
		"embedding_model":  model,
		"embedding_status": types.EmbeddingReady,
		"embedding_error":  "",
	})
}

func (r *assetRepo) MarkEmbeddingFailed(dbc dbctx.Context, id uuid.UUID, reason string) error {
	return r.UpdateFields(dbc, id, map[string]interface{}{
		"embedding_status": types.EmbeddingFailed,
		"embedding_error":  truncateUTF8(reason, maxEmbeddingErrorBytes),
	})
}

const maxEmbeddingErrorBytes = 500

// truncateUTF8 cuts s to at most max bytes without splitting a rune.
func truncateUTF8(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func (r *assetRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return t.WithContext(dbc.Ctx).
		Model(&types.Asset{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *assetRepo) DeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if len(ids) == 0 {
		return nil
	}
	return t.WithContext(dbc.Ctx).Where("id IN ?", ids).Delete(&types.Asset{}).Error
}

func (r *assetRepo) DeleteByMemberIDs(dbc dbctx.Context, memberIDs []uuid.UUID) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if len(memberIDs) == 0 {
		return nil
	}
	return t.WithContext(dbc.Ctx).Where("member_id IN ?", memberIDs).Delete(&types.Asset{}).Error
}
