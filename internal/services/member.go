package services

import (
	"context"
	"strings"
	"unicode/utf8"

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
	"github.com/yungbote/promptgallery-backend/internal/platform/storage"
)

const (
	defaultPageSize = 24
	maxPageSize     = 100
	maxTitleRunes   = 80
)

type CreateMemberInput struct {
	Title          string `json:"title"`
	PromptText     string `json:"prompt_text"`
	TranslatedText string `json:"translated_text"`
	NegativePrompt string `json:"negative_prompt"`
	ModelInfo      string `json:"model_info"`
}

// UpdateMemberInput carries optional field edits. Editing the prompt never moves the
// member to another family.
type UpdateMemberInput struct {
	Title          *string `json:"title"`
	PromptText     *string `json:"prompt_text"`
	TranslatedText *string `json:"translated_text"`
	NegativePrompt *string `json:"negative_prompt"`
	ModelInfo      *string `json:"model_info"`
}

type CreateMemberResult struct {
	Member   *types.PromptMember `json:"member"`
	Decision clustering.Decision `json:"-"`
}

type FamilyPage struct {
	Families []*types.Family `json:"families"`
	Total    int64           `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
}

type MemberService interface {
	Create(ctx context.Context, in CreateMemberInput) (*CreateMemberResult, error)
	Get(ctx context.Context, id uuid.UUID) (*types.PromptMember, error)
	Update(ctx context.Context, id uuid.UUID, in UpdateMemberInput) (*types.PromptMember, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ToggleLike(ctx context.Context, id uuid.UUID) (*types.PromptMember, error)
	ListFamilies(ctx context.Context, query string, page, pageSize int) (*FamilyPage, error)
}

type memberService struct {
	db         *gorm.DB
	log        *logger.Logger
	tx         dataagg.TxRunner
	memberRepo repos.PromptMemberRepo
	assetRepo  repos.AssetRepo
	engine     *clustering.Engine
	store      storage.Store
}

func NewMemberService(db *gorm.DB, log *logger.Logger, memberRepo repos.PromptMemberRepo, assetRepo repos.AssetRepo, engine *clustering.Engine, store storage.Store) MemberService {
	return &memberService{
		db:         db,
		log:        log.With("service", "MemberService"),
		tx:         dataagg.NewGormTxRunner(db),
		memberRepo: memberRepo,
		assetRepo:  assetRepo,
		engine:     engine,
		store:      store,
	}
}

// Create stores a new member in the family chosen by the clustering engine. The decision
// is made once here and never revisited.
func (s *memberService) Create(ctx context.Context, in CreateMemberInput) (res *CreateMemberResult, err error) {
	const op = "member.create"
	ctx, span := startSpan(ctx, op)
	defer func() { endSpan(span, err) }()

	prompt := strings.TrimSpace(in.PromptText)
	if prompt == "" {
		return nil, domainagg.Validation(op, "prompt_text is required")
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = truncateRunes(prompt, maxTitleRunes)
	}

	err = s.tx.InTx(ctx, func(dbc dbctx.Context) error {
		d, err := s.engine.AssignFamily(dbc, prompt)
		if err != nil {
			return err
		}
		m := &types.PromptMember{
			ID:             uuid.New(),
			Title:          title,
			PromptText:     prompt,
			TranslatedText: strings.TrimSpace(in.TranslatedText),
			NegativePrompt: strings.TrimSpace(in.NegativePrompt),
			ModelInfo:      strings.TrimSpace(in.ModelInfo),
			FamilyID:       d.FamilyID,
		}
		if _, err := s.memberRepo.Create(dbc, []*types.PromptMember{m}); err != nil {
			return err
		}
		res = &CreateMemberResult{Member: m, Decision: d}
		return nil
	})
	if err != nil {
		return nil, dataagg.MapError(op, err)
	}

	d := res.Decision
	span.SetAttributes(
		attribute.String("family_id", d.FamilyID.String()),
		attribute.Bool("joined", d.Joined),
		attribute.Float64("ratio", d.Ratio),
	)
	s.log.Info("Member created",
		"member_id", res.Member.ID,
		"family_id", d.FamilyID,
		"joined", d.Joined,
		"matched_id", d.MatchedID,
		"ratio", d.Ratio,
		"reason", d.Reason,
		"compared", d.Compared,
	)
	observability.Current().IncClusterDecision(d.Joined, string(d.Reason))
	return res, nil
}

func (s *memberService) Get(ctx context.Context, id uuid.UUID) (*types.PromptMember, error) {
	const op = "member.get"
	dbc := dbctx.New(ctx)
	m, err := s.memberRepo.GetByID(dbc, id)
	if err != nil {
		return nil, dataagg.MapError(op, err)
	}
	if m == nil {
		return nil, domainagg.NotFound(op, "member %s not found", id)
	}
	if err := attachAssets(dbc, s.assetRepo, []*types.PromptMember{m}); err != nil {
		return nil, dataagg.MapError(op, err)
	}
	return m, nil
}

func (s *memberService) Update(ctx context.Context, id uuid.UUID, in UpdateMemberInput) (*types.PromptMember, error) {
	const op = "member.update"
	updates := map[string]interface{}{}
	if in.Title != nil {
		updates["title"] = strings.TrimSpace(*in.Title)
	}
	if in.PromptText != nil {
		p := strings.TrimSpace(*in.PromptText)
		if p == "" {
			return nil, domainagg.Validation(op, "prompt_text cannot be empty")
		}
		updates["prompt_text"] = p
	}
	if in.TranslatedText != nil {
		updates["translated_text"] = strings.TrimSpace(*in.TranslatedText)
	}
	if in.NegativePrompt != nil {
		updates["negative_prompt"] = strings.TrimSpace(*in.NegativePrompt)
	}
	if in.ModelInfo != nil {
		updates["model_info"] = strings.TrimSpace(*in.ModelInfo)
	}

	var out *types.PromptMember
	err := s.tx.InTx(ctx, func(dbc dbctx.Context) error {
		m, err := s.memberRepo.GetByID(dbc, id)
		if err != nil {
			return err
		}
		if m == nil {
			return domainagg.NotFound(op, "member %s not found", id)
		}
		if len(updates) > 0 {
			if err := s.memberRepo.UpdateFields(dbc, id, updates); err != nil {
				return err
			}
		}
		out, err = s.memberRepo.GetByID(dbc, id)
		return err
	})
	if err != nil {
		return nil, dataagg.MapError(op, err)
	}
	return out, nil
}

// Delete removes the member and its assets, then their stored files.
func (s *memberService) Delete(ctx context.Context, id uuid.UUID) error {
	const op = "member.delete"
	var keys []string
	err := s.tx.InTx(ctx, func(dbc dbctx.Context) error {
		m, err := s.memberRepo.GetByID(dbc, id)
		if err != nil {
			return err
		}
		if m == nil {
			return domainagg.NotFound(op, "member %s not found", id)
		}
		assets, err := s.assetRepo.GetByMemberIDs(dbc, []uuid.UUID{id})
		if err != nil {
			return err
		}
		for _, a := range assets {
			keys = append(keys, a.StorageKey)
		}
		if err := s.assetRepo.DeleteByMemberIDs(dbc, []uuid.UUID{id}); err != nil {
			return err
		}
		return s.memberRepo.Delete(dbc, id)
	})
	if err != nil {
		return dataagg.MapError(op, err)
	}
	deleteObjects(ctx, s.log, s.store, keys...)
	s.log.Info("Member deleted", "member_id", id, "assets", len(keys))
	return nil
}

func (s *memberService) ToggleLike(ctx context.Context, id uuid.UUID) (*types.PromptMember, error) {
	const op = "member.toggle_like"
	var out *types.PromptMember
	err := s.tx.InTx(ctx, func(dbc dbctx.Context) error {
		m, err := s.memberRepo.GetByID(dbc, id)
		if err != nil {
			return err
		}
		if m == nil {
			return domainagg.NotFound(op, "member %s not found", id)
		}
		m.IsLiked = !m.IsLiked
		if err := s.memberRepo.UpdateFields(dbc, id, map[string]interface{}{"is_liked": m.IsLiked}); err != nil {
			return err
		}
		out = m
		return nil
	})
	if err != nil {
		return nil, dataagg.MapError(op, err)
	}
	return out, nil
}

// ListFamilies pages the home grid: one card per family showing its representative.
func (s *memberService) ListFamilies(ctx context.Context, query string, page, pageSize int) (*FamilyPage, error) {
	const op = "member.list_families"
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	dbc := dbctx.New(ctx)
	counts, total, err := s.memberRepo.ListFamilies(dbc, query, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, dataagg.MapError(op, err)
	}
	out := &FamilyPage{Families: []*types.Family{}, Total: total, Page: page, PageSize: pageSize}
	if len(counts) == 0 {
		return out, nil
	}

	famIDs := make([]uuid.UUID, 0, len(counts))
	for _, c := range counts {
		famIDs = append(famIDs, c.FamilyID)
	}
	members, err := s.memberRepo.GetByFamilyIDs(dbc, famIDs)
	if err != nil {
		return nil, dataagg.MapError(op, err)
	}
	byFamily := map[uuid.UUID][]*types.PromptMember{}
	for _, m := range members {
		byFamily[m.FamilyID] = append(byFamily[m.FamilyID], m)
	}

	reps := make([]*types.PromptMember, 0, len(counts))
	for _, c := range counts {
		rep := types.PickRepresentative(byFamily[c.FamilyID])
		if rep != nil {
			reps = append(reps, rep)
		}
		out.Families = append(out.Families, &types.Family{
			FamilyID:       c.FamilyID,
			Representative: rep,
			MemberCount:    c.MemberCount,
		})
	}
	if err := attachAssets(dbc, s.assetRepo, reps); err != nil {
		return nil, dataagg.MapError(op, err)
	}
	return out, nil
}

func attachAssets(dbc dbctx.Context, assetRepo repos.AssetRepo, members []*types.PromptMember) error {
	if len(members) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ID)
	}
	assets, err := assetRepo.GetByMemberIDs(dbc, ids)
	if err != nil {
		return err
	}
	byMember := map[uuid.UUID][]types.Asset{}
	for _, a := range assets {
		byMember[a.MemberID] = append(byMember[a.MemberID], *a)
	}
	for _, m := range members {
		m.Assets = byMember[m.ID]
	}
	return nil
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n]))
}
