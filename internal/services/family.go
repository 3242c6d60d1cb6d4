package services

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/yungbote/promptgallery-backend/internal/clustering"
	dataagg "github.com/yungbote/promptgallery-backend/internal/data/aggregates"
	"github.com/yungbote/promptgallery-backend/internal/data/repos"
	types "github.com/yungbote/promptgallery-backend/internal/domain"
	domainagg "github.com/yungbote/promptgallery-backend/internal/domain/aggregates"
	"github.com/yungbote/promptgallery-backend/internal/observability"
	"github.com/yungbote/promptgallery-backend/internal/platform/dbctx"
	"github.com/yungbote/promptgallery-backend/internal/platform/logger"
)

const defaultSuggestionLimit = 20

type LinkResult struct {
	FamilyID uuid.UUID `json:"family_id"`
	Updated  int64     `json:"updated"`
}

type MergeResult struct {
	FamilyID uuid.UUID `json:"family_id"`
	Updated  int64     `json:"updated"`
	Absorbed int       `json:"absorbed"`
}

type RelinkSuggestion struct {
	Member   *types.PromptMember `json:"member"`
	FamilyID uuid.UUID           `json:"family_id"`
	Ratio    float64             `json:"ratio"`
}

// FamilyService applies explicit user corrections to family membership. Every mutation
// runs in one transaction and fails loudly.
type FamilyService interface {
	Unlink(ctx context.Context, memberID uuid.UUID) (*types.PromptMember, error)
	Link(ctx context.Context, memberID uuid.UUID, targetIDs []uuid.UUID) (*LinkResult, error)
	Merge(ctx context.Context, representativeIDs []uuid.UUID) (*MergeResult, error)
	SetMainVariant(ctx context.Context, memberID uuid.UUID) (*types.PromptMember, error)
	Family(ctx context.Context, memberID uuid.UUID) (*types.Family, error)
	Suggestions(ctx context.Context, memberID uuid.UUID, limit int) ([]RelinkSuggestion, error)
}

type familyService struct {
	db         *gorm.DB
	log        *logger.Logger
	tx         dataagg.TxRunner
	memberRepo repos.PromptMemberRepo
	assetRepo  repos.AssetRepo
	engine     *clustering.Engine
	limit      int
}

func NewFamilyService(db *gorm.DB, log *logger.Logger, memberRepo repos.PromptMemberRepo, assetRepo repos.AssetRepo, engine *clustering.Engine, suggestionLimit int) FamilyService {
	if suggestionLimit <= 0 {
		suggestionLimit = defaultSuggestionLimit
	}
	return &familyService{
		db:         db,
		log:        log.With("service", "FamilyService"),
		tx:         dataagg.NewGormTxRunner(db),
		memberRepo: memberRepo,
		assetRepo:  assetRepo,
		engine:     engine,
		limit:      suggestionLimit,
	}
}

// Unlink moves the member into a family of its own. A member that is already alone keeps
// its family id, so repeating the call changes nothing.
func (s *familyService) Unlink(ctx context.Context, memberID uuid.UUID) (out *types.PromptMember, err error) {
	const op = "family.unlink"
	ctx, span := startSpan(ctx, op, attribute.String("member_id", memberID.String()))
	defer func() {
		observability.Current().IncFamilyEdit(op, err)
		endSpan(span, err)
	}()

	err = s.tx.InTx(ctx, func(dbc dbctx.Context) error {
		locked, err := s.lockMembers(dbc, op, []uuid.UUID{memberID})
		if err != nil {
			return err
		}
		m := locked[memberID]
		siblings, err := s.memberRepo.LockFamily(dbc, m.FamilyID)
		if err != nil {
			return err
		}
		if len(siblings) <= 1 {
			out = m
			return nil
		}
		from := m.FamilyID
		m.FamilyID = uuid.New()
		m.IsMainVariant = false
		if err := s.memberRepo.SetFamilyID(dbc, m.ID, m.FamilyID, true); err != nil {
			return err
		}
		s.log.Info("Member unlinked", "member_id", m.ID, "from_family", from, "to_family", m.FamilyID)
		out = m
		return nil
	})
	if err != nil {
		return nil, dataagg.MapError(op, err)
	}
	return out, nil
}

// Link pulls the whole family of every target into the member's family. Absorbed members
// lose their main flag; the member's family keeps its own main variant.
func (s *familyService) Link(ctx context.Context, memberID uuid.UUID, targetIDs []uuid.UUID) (out *LinkResult, err error) {
	const op = "family.link"
	ctx, span := startSpan(ctx, op, attribute.String("member_id", memberID.String()), attribute.Int("targets", len(targetIDs)))
	defer func() {
		observability.Current().IncFamilyEdit(op, err)
		endSpan(span, err)
	}()

	targets := dedupeIDs(targetIDs)
	if len(targets) == 0 {
		return nil, domainagg.Validation(op, "target_ids is required")
	}
	for _, id := range targets {
		if id == memberID {
			return nil, domainagg.Validation(op, "a member cannot be linked to itself")
		}
	}

	err = s.tx.InTx(ctx, func(dbc dbctx.Context) error {
		locked, err := s.lockMembers(dbc, op, append([]uuid.UUID{memberID}, targets...))
		if err != nil {
			return err
		}
		m := locked[memberID]
		families := make([]uuid.UUID, 0, len(targets))
		for _, id := range targets {
			families = append(families, locked[id].FamilyID)
		}
		absorbed := without(families, m.FamilyID)
		if err := s.lockFamilies(dbc, append([]uuid.UUID{m.FamilyID}, absorbed...)); err != nil {
			return err
		}
		if err := s.memberRepo.ClearMainInFamilies(dbc, absorbed); err != nil {
			return err
		}
		n, err := s.memberRepo.ReassignFamilies(dbc, absorbed, m.FamilyID)
		if err != nil {
			return err
		}
		out = &LinkResult{FamilyID: m.FamilyID, Updated: n}
		return nil
	})
	if err != nil {
		return nil, dataagg.MapError(op, err)
	}
	s.log.Info("Families linked", "member_id", memberID, "family_id", out.FamilyID, "updated", out.Updated)
	return out, nil
}

// Merge folds the families behind the representatives into the first one's family.
// Merging the same set again is a no-op.
func (s *familyService) Merge(ctx context.Context, representativeIDs []uuid.UUID) (out *MergeResult, err error) {
	const op = "family.merge"
	ctx, span := startSpan(ctx, op, attribute.Int("representatives", len(representativeIDs)))
	defer func() {
		observability.Current().IncFamilyEdit(op, err)
		endSpan(span, err)
	}()

	reps := dedupeIDs(representativeIDs)
	if len(reps) < 2 {
		return nil, domainagg.Validation(op, "at least two members are required to merge")
	}

	err = s.tx.InTx(ctx, func(dbc dbctx.Context) error {
		locked, err := s.lockMembers(dbc, op, reps)
		if err != nil {
			return err
		}
		families := make([]uuid.UUID, 0, len(reps))
		for _, id := range reps {
			families = append(families, locked[id].FamilyID)
		}
		survivor := locked[reps[0]].FamilyID
		absorbed := without(families, survivor)
		if err := s.lockFamilies(dbc, append([]uuid.UUID{survivor}, absorbed...)); err != nil {
			return err
		}
		if err := s.memberRepo.ClearMainInFamilies(dbc, absorbed); err != nil {
			return err
		}
		n, err := s.memberRepo.ReassignFamilies(dbc, absorbed, survivor)
		if err != nil {
			return err
		}
		out = &MergeResult{FamilyID: survivor, Updated: n, Absorbed: len(absorbed)}
		return nil
	})
	if err != nil {
		return nil, dataagg.MapError(op, err)
	}
	s.log.Info("Families merged", "family_id", out.FamilyID, "updated", out.Updated, "absorbed", out.Absorbed)
	return out, nil
}

// SetMainVariant clears the flag across the family and sets it on the member inside one
// transaction, with the family's rows locked on Postgres.
func (s *familyService) SetMainVariant(ctx context.Context, memberID uuid.UUID) (out *types.PromptMember, err error) {
	const op = "family.set_main_variant"
	ctx, span := startSpan(ctx, op, attribute.String("member_id", memberID.String()))
	defer func() {
		observability.Current().IncFamilyEdit(op, err)
		endSpan(span, err)
	}()

	err = s.tx.InTx(ctx, func(dbc dbctx.Context) error {
		locked, err := s.lockMembers(dbc, op, []uuid.UUID{memberID})
		if err != nil {
			return err
		}
		m := locked[memberID]
		if _, err := s.memberRepo.LockFamily(dbc, m.FamilyID); err != nil {
			return err
		}
		if err := s.memberRepo.ClearMainInFamilies(dbc, []uuid.UUID{m.FamilyID}); err != nil {
			return err
		}
		if err := s.memberRepo.SetMainVariantFlag(dbc, m.ID, true); err != nil {
			return err
		}
		m.IsMainVariant = true
		out = m
		return nil
	})
	if err != nil {
		return nil, dataagg.MapError(op, err)
	}
	return out, nil
}

func (s *familyService) Family(ctx context.Context, memberID uuid.UUID) (*types.Family, error) {
	const op = "family.get"
	dbc := dbctx.New(ctx)
	m, err := s.mustGet(dbc, op, memberID)
	if err != nil {
		return nil, dataagg.MapError(op, err)
	}
	members, err := s.memberRepo.GetByFamilyIDs(dbc, []uuid.UUID{m.FamilyID})
	if err != nil {
		return nil, dataagg.MapError(op, err)
	}
	if err := attachAssets(dbc, s.assetRepo, members); err != nil {
		return nil, dataagg.MapError(op, err)
	}
	return &types.Family{
		FamilyID:       m.FamilyID,
		Representative: types.PickRepresentative(members),
		Members:        members,
		MemberCount:    int64(len(members)),
	}, nil
}

// Suggestions ranks members of other families by prompt similarity. The results are
// advisory and use a much looser threshold than automatic clustering.
func (s *familyService) Suggestions(ctx context.Context, memberID uuid.UUID, limit int) (out []RelinkSuggestion, err error) {
	const op = "family.suggestions"
	ctx, span := startSpan(ctx, op, attribute.String("member_id", memberID.String()))
	defer func() { endSpan(span, err) }()

	if limit <= 0 {
		limit = s.limit
	}
	dbc := dbctx.New(ctx)
	m, err := s.mustGet(dbc, op, memberID)
	if err != nil {
		return nil, dataagg.MapError(op, err)
	}
	sugg, err := s.engine.Suggest(dbc, m, limit)
	if err != nil {
		return nil, dataagg.MapError(op, err)
	}
	out = make([]RelinkSuggestion, 0, len(sugg))
	if len(sugg) == 0 {
		return out, nil
	}
	ids := make([]uuid.UUID, 0, len(sugg))
	for _, sg := range sugg {
		ids = append(ids, sg.MemberID)
	}
	members, err := s.memberRepo.GetByIDs(dbc, ids)
	if err != nil {
		return nil, dataagg.MapError(op, err)
	}
	byID := make(map[uuid.UUID]*types.PromptMember, len(members))
	for _, mm := range members {
		byID[mm.ID] = mm
	}
	for _, sg := range sugg {
		mm := byID[sg.MemberID]
		if mm == nil {
			continue
		}
		out = append(out, RelinkSuggestion{Member: mm, FamilyID: sg.FamilyID, Ratio: sg.Ratio})
	}
	return out, nil
}

func (s *familyService) mustGet(dbc dbctx.Context, op string, id uuid.UUID) (*types.PromptMember, error) {
	m, err := s.memberRepo.GetByID(dbc, id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, domainagg.NotFound(op, "member %s not found", id)
	}
	return m, nil
}

// lockMembers locks the rows of ids and fails with not_found if any is missing. Family
// ids read from the result cannot be changed by another transaction until this one ends.
func (s *familyService) lockMembers(dbc dbctx.Context, op string, ids []uuid.UUID) (map[uuid.UUID]*types.PromptMember, error) {
	rows, err := s.memberRepo.LockMembers(dbc, dedupeIDs(ids))
	if err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]*types.PromptMember, len(rows))
	for _, m := range rows {
		out[m.ID] = m
	}
	for _, id := range ids {
		if out[id] == nil {
			return nil, domainagg.NotFound(op, "member %s not found", id)
		}
	}
	return out, nil
}

// lockFamilies locks in a fixed order so concurrent merges cannot deadlock.
func (s *familyService) lockFamilies(dbc dbctx.Context, families []uuid.UUID) error {
	ids := dedupeIDs(families)
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	for _, id := range ids {
		if _, err := s.memberRepo.LockFamily(dbc, id); err != nil {
			return err
		}
	}
	return nil
}

// dedupeIDs drops nil and repeated ids, keeping first-seen order.
func dedupeIDs(ids []uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(ids))
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if id == uuid.Nil || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func without(ids []uuid.UUID, drop uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range dedupeIDs(ids) {
		if id != drop {
			out = append(out, id)
		}
	}
	return out
}
