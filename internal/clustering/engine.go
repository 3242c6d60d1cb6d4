package clustering

import (
	"github.com/google/uuid"

	types "github.com/yungbote/promptgallery-backend/internal/domain"
	"github.com/yungbote/promptgallery-backend/internal/platform/dbctx"
)

// CandidateSource loads recent members, newest first. PromptMemberRepo satisfies it.
type CandidateSource interface {
	ListRecentForClustering(dbc dbctx.Context, limit int, excludeFamily uuid.UUID) ([]*types.ClusterCandidate, error)
}

// Engine binds the pure assignment rule to a bounded window of stored members.
type Engine struct {
	src         CandidateSource
	cfg         Config
	suggestions Config
}

func NewEngine(src CandidateSource, cfg Config, suggestions Config) *Engine {
	return &Engine{src: src, cfg: cfg, suggestions: suggestions}
}

func (e *Engine) Config() Config { return e.cfg }

// AssignFamily decides the family for a new prompt. Prompts too short to compare skip
// the database entirely.
func (e *Engine) AssignFamily(dbc dbctx.Context, promptText string) (Decision, error) {
	if len([]rune(Normalize(promptText))) < e.cfg.MinLength {
		return Assign(promptText, nil, e.cfg), nil
	}
	rows, err := e.src.ListRecentForClustering(dbc, e.cfg.Window, uuid.Nil)
	if err != nil {
		return Decision{}, err
	}
	return Assign(promptText, FromRows(rows), e.cfg), nil
}

// Suggest returns relink candidates for a member, excluding its own family.
func (e *Engine) Suggest(dbc dbctx.Context, member *types.PromptMember, limit int) ([]Suggestion, error) {
	if member == nil {
		return []Suggestion{}, nil
	}
	rows, err := e.src.ListRecentForClustering(dbc, e.suggestions.Window, member.FamilyID)
	if err != nil {
		return nil, err
	}
	return Suggest(member.PromptText, FromRows(rows), e.suggestions, limit), nil
}

func FromRows(rows []*types.ClusterCandidate) []Candidate {
	out := make([]Candidate, 0, len(rows))
	for _, r := range rows {
		if r == nil {
			continue
		}
		out = append(out, Candidate{MemberID: r.ID, FamilyID: r.FamilyID, Text: r.PromptText})
	}
	return out
}
