package clustering

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/google/uuid"

	types "github.com/yungbote/promptgallery-backend/internal/domain"
	"github.com/yungbote/promptgallery-backend/internal/platform/dbctx"
)

func TestRatio(t *testing.T) {
	cases := []struct {
		a, b string
		want float64
	}{
		{"abcde", "abcde", 1},
		{"", "", 1},
		{"abcde", "bcdef", 0.8},
		{"abcd", "bcde", 0.75},
		{"abc", "xyz", 0},
		{"a cat on a red sofa", "a cat on a red sofa, 8k", 38.0 / 42.0},
		{"猫在红沙发上", "猫在蓝沙发上", 10.0 / 12.0},
	}
	for _, tc := range cases {
		got := Ratio(tc.a, tc.b)
		if math.Abs(got-tc.want) > 1e-9 {
			t.Fatalf("Ratio(%q,%q): got=%v want=%v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize("  A Cat ON a Sofa \n"); got != "a cat on a sofa" {
		t.Fatalf("Normalize: got=%q", got)
	}
}

func cand(text string) Candidate {
	return Candidate{MemberID: uuid.New(), FamilyID: uuid.New(), Text: text}
}

func TestAssignJoinsVariant(t *testing.T) {
	f1 := cand("a cat on a red sofa")
	d := Assign("A cat on a red sofa, 8k", []Candidate{f1}, DefaultConfig())
	if !d.Joined || d.FamilyID != f1.FamilyID || d.MatchedID != f1.MemberID {
		t.Fatalf("Assign: expected to join F1, got %+v", d)
	}
	if d.Ratio <= 0.85 {
		t.Fatalf("Assign: ratio got=%v", d.Ratio)
	}
}

func TestAssignThresholdIsStrict(t *testing.T) {
	c := cand("bcdef")
	cfg := DefaultConfig()
	cfg.Threshold = 0.8
	d := Assign("abcde", []Candidate{c}, cfg)
	if d.Joined {
		t.Fatalf("Assign: ratio exactly at threshold must not match, got %+v", d)
	}
	if d.FamilyID == uuid.Nil || d.FamilyID == c.FamilyID {
		t.Fatalf("Assign: expected a fresh family id")
	}

	cfg.Threshold = 0.79
	if d := Assign("abcde", []Candidate{c}, cfg); !d.Joined {
		t.Fatalf("Assign: ratio above threshold must match")
	}
}

func TestAssignPicksBestNotFirst(t *testing.T) {
	good := cand("a cat on a red sofa, 4k")
	better := cand("a cat on a red sofa")
	d := Assign("a cat on a red sofa!", []Candidate{good, better}, DefaultConfig())
	if d.FamilyID != better.FamilyID {
		t.Fatalf("Assign: expected best candidate, got %+v", d)
	}
}

func TestAssignShortPromptsNeverCluster(t *testing.T) {
	c := cand("cat")
	d := Assign("  CAT ", []Candidate{c}, DefaultConfig())
	if d.Joined || d.Reason != ReasonTooShort {
		t.Fatalf("Assign: short prompt must start a new family, got %+v", d)
	}
	if d.Compared != 0 {
		t.Fatalf("Assign: short prompt compared %d candidates", d.Compared)
	}
}

func TestAssignIdenticalAlwaysMatchesInsideWindow(t *testing.T) {
	target := cand("mountain lake at dawn")
	pool := []Candidate{cand("portrait of an old sailor"), target}
	if d := Assign("Mountain lake at dawn", pool, DefaultConfig()); !d.Joined || d.Ratio != 1 {
		t.Fatalf("Assign: identical text must match, got %+v", d)
	}
}

func TestAssignOutsideWindowStartsNewFamily(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Window = 200
	pool := make([]Candidate, 0, 300)
	for i := 0; i < 250; i++ {
		pool = append(pool, cand(fmt.Sprintf("unrelated filler prompt number %d", i)))
	}
	old := cand("a cat on a red sofa")
	pool = append(pool, old)

	d := Assign("a cat on a red sofa", pool, cfg)
	if d.Joined {
		t.Fatalf("Assign: candidate outside the window must not be found, got %+v", d)
	}
}

func TestAssignLengthPrefilter(t *testing.T) {
	long := cand("a cat on a red sofa in a sunlit victorian living room, oil painting")
	d := Assign("a cat on a red sofa", []Candidate{long}, DefaultConfig())
	if d.Joined || d.Compared != 0 {
		t.Fatalf("Assign: length pre-filter should skip candidate, got %+v", d)
	}
}

func TestSuggest(t *testing.T) {
	famA := uuid.New()
	a1 := Candidate{MemberID: uuid.New(), FamilyID: famA, Text: "a cat sitting on a sofa"}
	a2 := Candidate{MemberID: uuid.New(), FamilyID: famA, Text: "a cat on a red sofa, 8k"}
	b := cand("a dog on a red carpet")
	c := cand("zzzz qqqq")

	got := Suggest("a cat on a red sofa", []Candidate{a1, a2, b, c}, DefaultSuggestionConfig(), 10)
	if len(got) != 2 {
		t.Fatalf("Suggest: got=%d want=2 (%+v)", len(got), got)
	}
	if got[0].FamilyID != famA || got[0].MemberID != a2.MemberID {
		t.Fatalf("Suggest: best family member wrong %+v", got[0])
	}
	if got[1].FamilyID != b.FamilyID {
		t.Fatalf("Suggest: second suggestion wrong %+v", got[1])
	}
	for _, s := range got {
		if !(s.Ratio > 0.30) {
			t.Fatalf("Suggest: ratio %v not above threshold", s.Ratio)
		}
	}
	if got := Suggest("a cat on a red sofa", []Candidate{a1, a2, b}, DefaultSuggestionConfig(), 1); len(got) != 1 {
		t.Fatalf("Suggest: limit not applied")
	}
}

func TestRecluster(t *testing.T) {
	shared := uuid.New()
	members := []Candidate{
		{MemberID: uuid.New(), FamilyID: shared, Text: "a cat on a red sofa"},
		{MemberID: uuid.New(), FamilyID: shared, Text: "mountain lake at dawn"},
		{MemberID: uuid.New(), FamilyID: uuid.New(), Text: "a cat on a red sofa, 8k"},
		{MemberID: uuid.New(), FamilyID: uuid.New(), Text: "cat"},
	}
	res := Recluster(members, DefaultConfig())
	if res.Total != 4 || res.Families != 3 || res.Merged != 1 {
		t.Fatalf("Recluster: unexpected stats %+v", res)
	}
	if res.Assignments[members[0].MemberID] != shared {
		t.Fatalf("Recluster: first founder should keep its id")
	}
	if res.Assignments[members[1].MemberID] == shared {
		t.Fatalf("Recluster: colliding founder must get a fresh id")
	}
	if res.Assignments[members[2].MemberID] != shared {
		t.Fatalf("Recluster: variant should join the first family")
	}
	if len(res.Reassigned) != 2 {
		t.Fatalf("Recluster: reassigned got=%d want=2", len(res.Reassigned))
	}

	again := make([]Candidate, len(members))
	for i, m := range members {
		again[i] = Candidate{MemberID: m.MemberID, FamilyID: res.Assignments[m.MemberID], Text: m.Text}
	}
	if res2 := Recluster(again, DefaultConfig()); len(res2.Reassigned) != 0 {
		t.Fatalf("Recluster: second run should be a no-op, got %+v", res2.Reassigned)
	}
}

type fakeSource struct {
	rows      []*types.ClusterCandidate
	calls     int
	lastLimit int
	lastExcl  uuid.UUID
}

func (f *fakeSource) ListRecentForClustering(dbc dbctx.Context, limit int, excludeFamily uuid.UUID) ([]*types.ClusterCandidate, error) {
	f.calls++
	f.lastLimit, f.lastExcl = limit, excludeFamily
	return f.rows, nil
}

func TestEngine(t *testing.T) {
	fam := uuid.New()
	src := &fakeSource{rows: []*types.ClusterCandidate{{ID: uuid.New(), FamilyID: fam, PromptText: "a cat on a red sofa"}}}
	eng := NewEngine(src, DefaultConfig(), DefaultSuggestionConfig())
	dbc := dbctx.New(context.Background())

	d, err := eng.AssignFamily(dbc, "a cat on a red sofa, 8k")
	if err != nil || !d.Joined || d.FamilyID != fam {
		t.Fatalf("AssignFamily: got=%+v err=%v", d, err)
	}
	if src.lastLimit != 200 {
		t.Fatalf("AssignFamily: window got=%d", src.lastLimit)
	}

	if _, err := eng.AssignFamily(dbc, "hi"); err != nil || src.calls != 1 {
		t.Fatalf("AssignFamily: short prompt must not query, calls=%d", src.calls)
	}

	own := &types.PromptMember{ID: uuid.New(), FamilyID: uuid.New(), PromptText: "a cat on the red sofa"}
	sugg, err := eng.Suggest(dbc, own, 5)
	if err != nil || len(sugg) != 1 || src.lastExcl != own.FamilyID || src.lastLimit != 2000 {
		t.Fatalf("Suggest: got=%+v err=%v excl=%v limit=%d", sugg, err, src.lastExcl, src.lastLimit)
	}
}
