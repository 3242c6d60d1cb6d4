package gallery

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/promptgallery-backend/internal/data/aggregates"
	types "github.com/yungbote/promptgallery-backend/internal/domain"
	"github.com/yungbote/promptgallery-backend/internal/platform/dbctx"
	"github.com/yungbote/promptgallery-backend/internal/platform/logger"
)

type PromptMemberRepo interface {
	Create(dbc dbctx.Context, rows []*types.PromptMember) ([]*types.PromptMember, error)

	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.PromptMember, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.PromptMember, error)
	GetByFamilyIDs(dbc dbctx.Context, familyIDs []uuid.UUID) ([]*types.PromptMember, error)

	// ListRecentForClustering returns the newest limit members as candidates, newest first.
	// Members of excludeFamily are left out when it is non-nil.
	ListRecentForClustering(dbc dbctx.Context, limit int, excludeFamily uuid.UUID) ([]*types.ClusterCandidate, error)
	ListAllForRecluster(dbc dbctx.Context) ([]*types.ClusterCandidate, error)

	ListFamilies(dbc dbctx.Context, query string, limit, offset int) ([]*types.FamilyCount, int64, error)
	CountFamily(dbc dbctx.Context, familyID uuid.UUID) (int64, error)

	// LockMembers row-locks the given members by id and returns them as of the lock
	// (Postgres only). Callers resolve family ids from the result, not from an earlier read.
	LockMembers(dbc dbctx.Context, ids []uuid.UUID) ([]*types.PromptMember, error)
	// LockFamily takes row locks on every member of the family (Postgres only).
	LockFamily(dbc dbctx.Context, familyID uuid.UUID) ([]*types.PromptMember, error)
	ReassignFamilies(dbc dbctx.Context, fromFamilies []uuid.UUID, to uuid.UUID) (int64, error)
	ClearMainInFamilies(dbc dbctx.Context, familyIDs []uuid.UUID) error
	SetFamilyID(dbc dbctx.Context, id uuid.UUID, familyID uuid.UUID, clearMain bool) error
	SetMainVariantFlag(dbc dbctx.Context, id uuid.UUID, main bool) error

	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	Delete(dbc dbctx.Context, id uuid.UUID) error
}

type promptMemberRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPromptMemberRepo(db *gorm.DB, baseLog *logger.Logger) PromptMemberRepo {
	return &promptMemberRepo{db: db, log: baseLog.With("repo", "PromptMemberRepo")}
}

func (r *promptMemberRepo) Create(dbc dbctx.Context, rows []*types.PromptMember) ([]*types.PromptMember, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if len(rows) == 0 {
		return []*types.PromptMember{}, nil
	}
	if err := t.WithContext(dbc.Ctx).Omit("Assets").Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *promptMemberRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.PromptMember, error) {
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

func (r *promptMemberRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.PromptMember, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.PromptMember
	if len(ids) == 0 {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *promptMemberRepo) GetByFamilyIDs(dbc dbctx.Context, familyIDs []uuid.UUID) ([]*types.PromptMember, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.PromptMember
	if len(familyIDs) == 0 {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).
		Where("family_id IN ?", familyIDs).
		Order("created_at DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *promptMemberRepo) ListRecentForClustering(dbc dbctx.Context, limit int, excludeFamily uuid.UUID) ([]*types.ClusterCandidate, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.ClusterCandidate
	q := t.WithContext(dbc.Ctx).
		Model(&types.PromptMember{}).
		Select("id", "family_id", "prompt_text", "created_at")
	if excludeFamily != uuid.Nil {
		q = q.Where("family_id <> ?", excludeFamily)
	}
	q = q.Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// ListAllForRecluster returns every member oldest first, the order a full rebuild replays.
func (r *promptMemberRepo) ListAllForRecluster(dbc dbctx.Context) ([]*types.ClusterCandidate, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.ClusterCandidate
	if err := t.WithContext(dbc.Ctx).
		Model(&types.PromptMember{}).
		Select("id", "family_id", "prompt_text", "created_at").
		Order("created_at ASC").
		Scan(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// ListFamilies pages over families, most recently active first. query matches title or
// prompt text case-insensitively; a family is listed when any member matches.
func (r *promptMemberRepo) ListFamilies(dbc dbctx.Context, query string, limit, offset int) ([]*types.FamilyCount, int64, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	base := func() *gorm.DB {
		q := t.WithContext(dbc.Ctx).Model(&types.PromptMember{})
		if s := strings.ToLower(strings.TrimSpace(query)); s != "" {
			like := "%" + s + "%"
			q = q.Where("(LOWER(title) LIKE ? OR LOWER(prompt_text) LIKE ?)", like, like)
		}
		return q
	}

	var total int64
	if err := base().Distinct("family_id").Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var out []*types.FamilyCount
	q := base().
		Select("family_id, COUNT(*) AS member_count").
		Group("family_id").
		Order("MAX(created_at) DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	if err := q.Scan(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *promptMemberRepo) CountFamily(dbc dbctx.Context, familyID uuid.UUID) (int64, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var n int64
	if err := t.WithContext(dbc.Ctx).
		Model(&types.PromptMember{}).
		Where("family_id = ?", familyID).
		Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

func (r *promptMemberRepo) LockMembers(dbc dbctx.Context, ids []uuid.UUID) ([]*types.PromptMember, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.PromptMember
	if len(ids) == 0 {
		return out, nil
	}
	if err := aggregates.ForUpdate(t.WithContext(dbc.Ctx)).
		Where("id IN ?", ids).
		Order("id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *promptMemberRepo) LockFamily(dbc dbctx.Context, familyID uuid.UUID) ([]*types.PromptMember, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.PromptMember
	if err := aggregates.ForUpdate(t.WithContext(dbc.Ctx)).
		Where("family_id = ?", familyID).
		Order("id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// ReassignFamilies moves every member of fromFamilies into to and returns how many rows
// changed. Members already in to are untouched.
func (r *promptMemberRepo) ReassignFamilies(dbc dbctx.Context, fromFamilies []uuid.UUID, to uuid.UUID) (int64, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if len(fromFamilies) == 0 || to == uuid.Nil {
		return 0, nil
	}
	res := t.WithContext(dbc.Ctx).
		Model(&types.PromptMember{}).
		Where("family_id IN ? AND family_id <> ?", fromFamilies, to).
		Updates(map[string]interface{}{
			"family_id":  to,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *promptMemberRepo) ClearMainInFamilies(dbc dbctx.Context, familyIDs []uuid.UUID) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if len(familyIDs) == 0 {
		return nil
	}
	return t.WithContext(dbc.Ctx).
		Model(&types.PromptMember{}).
		Where("family_id IN ? AND is_main_variant = ?", familyIDs, true).
		Updates(map[string]interface{}{
			"is_main_variant": false,
			"updated_at":      time.Now().UTC(),
		}).Error
}

func (r *promptMemberRepo) SetFamilyID(dbc dbctx.Context, id uuid.UUID, familyID uuid.UUID, clearMain bool) error {
	updates := map[string]interface{}{"family_id": familyID}
	if clearMain {
		updates["is_main_variant"] = false
	}
	return r.UpdateFields(dbc, id, updates)
}

func (r *promptMemberRepo) SetMainVariantFlag(dbc dbctx.Context, id uuid.UUID, main bool) error {
	return r.UpdateFields(dbc, id, map[string]interface{}{"is_main_variant": main})
}

func (r *promptMemberRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
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
		Model(&types.PromptMember{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *promptMemberRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	return t.WithContext(dbc.Ctx).Where("id = ?", id).Delete(&types.PromptMember{}).Error
}
