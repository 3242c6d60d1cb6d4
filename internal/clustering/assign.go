package clustering

import (
	"sort"
	"unicode/utf8"

	"github.com/google/uuid"
)

type Config struct {
	// Threshold is exclusive: a candidate must score strictly above it.
	Threshold float64
	// Window caps how many candidates are compared.
	Window int
	// MinLength is the shortest normalized prompt, in runes, eligible for matching.
	MinLength int
	// LengthTolerance is the largest allowed length difference as a fraction of the
	// longer prompt. Zero disables the pre-filter.
	LengthTolerance float64
}

func DefaultConfig() Config {
	return Config{
		Threshold:       0.85,
		Window:          200,
		MinLength:       5,
		LengthTolerance: 0.4,
	}
}

// DefaultSuggestionConfig is the advisory relink search: much looser, much wider, and
// without the length pre-filter.
func DefaultSuggestionConfig() Config {
	return Config{
		Threshold:       0.30,
		Window:          2000,
		MinLength:       5,
		LengthTolerance: 0,
	}
}

// Candidate is one historical member. Callers pass candidates newest first.
type Candidate struct {
	MemberID uuid.UUID
	FamilyID uuid.UUID
	Text     string
}

type Reason string

const (
	ReasonMatched   Reason = "matched"
	ReasonTooShort  Reason = "too_short"
	ReasonNoMatch   Reason = "no_match"
	ReasonNoHistory Reason = "no_history"
)

// Decision is the outcome of one family assignment.
type Decision struct {
	FamilyID  uuid.UUID
	Joined    bool
	MatchedID uuid.UUID
	Ratio     float64
	Reason    Reason
	Compared  int
}

// Assign decides the family for text. It joins the family of the best-scoring candidate
// whose ratio strictly exceeds cfg.Threshold; otherwise it returns a fresh family id.
// On equal best ratios the earlier (newer) candidate wins.
func Assign(text string, candidates []Candidate, cfg Config) Decision {
	norm := Normalize(text)
	if utf8.RuneCountInString(norm) < cfg.MinLength {
		return Decision{FamilyID: uuid.New(), Reason: ReasonTooShort}
	}
	if len(candidates) == 0 {
		return Decision{FamilyID: uuid.New(), Reason: ReasonNoHistory}
	}
	if cfg.Window > 0 && len(candidates) > cfg.Window {
		candidates = candidates[:cfg.Window]
	}

	normLen := utf8.RuneCountInString(norm)
	var (
		best      *Candidate
		bestRatio float64
		compared  int
	)
	for i := range candidates {
		c := &candidates[i]
		other := Normalize(c.Text)
		if !lengthsCompatible(normLen, utf8.RuneCountInString(other), cfg.LengthTolerance) {
			continue
		}
		compared++
		r := Ratio(norm, other)
		if r > cfg.Threshold && r > bestRatio {
			best, bestRatio = c, r
		}
	}
	if best == nil {
		return Decision{FamilyID: uuid.New(), Reason: ReasonNoMatch, Compared: compared}
	}
	return Decision{
		FamilyID:  best.FamilyID,
		Joined:    true,
		MatchedID: best.MemberID,
		Ratio:     bestRatio,
		Reason:    ReasonMatched,
		Compared:  compared,
	}
}

type Suggestion struct {
	MemberID uuid.UUID
	FamilyID uuid.UUID
	Ratio    float64
}

// Suggest ranks candidates by ratio against text, keeping the best member per family and
// only ratios strictly above cfg.Threshold. At most limit suggestions are returned.
func Suggest(text string, candidates []Candidate, cfg Config, limit int) []Suggestion {
	out := []Suggestion{}
	norm := Normalize(text)
	if utf8.RuneCountInString(norm) < cfg.MinLength {
		return out
	}
	if cfg.Window > 0 && len(candidates) > cfg.Window {
		candidates = candidates[:cfg.Window]
	}
	normLen := utf8.RuneCountInString(norm)

	bestByFamily := map[uuid.UUID]int{}
	for _, c := range candidates {
		other := Normalize(c.Text)
		if !lengthsCompatible(normLen, utf8.RuneCountInString(other), cfg.LengthTolerance) {
			continue
		}
		r := Ratio(norm, other)
		if !(r > cfg.Threshold) {
			continue
		}
		if idx, ok := bestByFamily[c.FamilyID]; ok {
			if r > out[idx].Ratio {
				out[idx] = Suggestion{MemberID: c.MemberID, FamilyID: c.FamilyID, Ratio: r}
			}
			continue
		}
		bestByFamily[c.FamilyID] = len(out)
		out = append(out, Suggestion{MemberID: c.MemberID, FamilyID: c.FamilyID, Ratio: r})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Ratio > out[j].Ratio })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
