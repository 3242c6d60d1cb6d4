package gallery

import (
	"github.com/google/uuid"
)

// Family is derived, never stored: the members sharing one family id.
type Family struct {
	FamilyID       uuid.UUID       `json:"family_id"`
	Representative *PromptMember   `json:"representative"`
	Members        []*PromptMember `json:"members,omitempty"`
	MemberCount    int64           `json:"member_count"`
}

// FamilyCount is a grouped row: one family id and how many members share it.
type FamilyCount struct {
	FamilyID    uuid.UUID `gorm:"column:family_id"`
	MemberCount int64     `gorm:"column:member_count"`
}

// PickRepresentative returns the main variant, or else the most recently created member.
func PickRepresentative(members []*PromptMember) *PromptMember {
	var newest *PromptMember
	for _, m := range members {
		if m == nil {
			continue
		}
		if m.IsMainVariant {
			return m
		}
		if newest == nil || m.CreatedAt.After(newest.CreatedAt) {
			newest = m
		}
	}
	return newest
}
