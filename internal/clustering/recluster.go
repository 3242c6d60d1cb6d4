package clustering

import (
	"github.com/google/uuid"
)

type Reassignment struct {
	MemberID uuid.UUID
	From     uuid.UUID
	To       uuid.UUID
}

type ReclusterResult struct {
	Total       int
	Families    int
	Merged      int
	Reassigned  []Reassignment
	Assignments map[uuid.UUID]uuid.UUID
}

// Recluster rebuilds every family from scratch. members must be ordered oldest first.
// Each family is represented by the text of its founding member, and a member is only
// compared with the most recent cfg.Window families. A founder keeps its current family
// id unless an earlier founder already claimed it, in which case it gets a fresh one.
func Recluster(members []Candidate, cfg Config) ReclusterResult {
	res := ReclusterResult{
		Total:       len(members),
		Assignments: make(map[uuid.UUID]uuid.UUID, len(members)),
	}

	var founders []Candidate
	claimed := map[uuid.UUID]bool{}
	for _, m := range members {
		window := founders
		if cfg.Window > 0 && len(window) > cfg.Window {
			window = window[len(window)-cfg.Window:]
		}
		// Assign expects newest first
		recent := make([]Candidate, len(window))
		for i := range window {
			recent[len(window)-1-i] = window[i]
		}

		d := Assign(m.Text, recent, Config{
			Threshold:       cfg.Threshold,
			MinLength:       cfg.MinLength,
			LengthTolerance: cfg.LengthTolerance,
		})
		target := d.FamilyID
		if d.Joined {
			res.Merged++
		} else {
			if m.FamilyID != uuid.Nil && !claimed[m.FamilyID] {
				target = m.FamilyID
			}
			claimed[target] = true
			founders = append(founders, Candidate{MemberID: m.MemberID, FamilyID: target, Text: m.Text})
			res.Families++
		}
		res.Assignments[m.MemberID] = target
		if target != m.FamilyID {
			res.Reassigned = append(res.Reassigned, Reassignment{MemberID: m.MemberID, From: m.FamilyID, To: target})
		}
	}
	return res
}
