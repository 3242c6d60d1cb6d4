package gallery

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PromptMember is one submitted prompt plus its assets. Members sharing a FamilyID
// form a family; at most one member per family carries IsMainVariant.
type PromptMember struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`

	Title          string `gorm:"column:title;not null" json:"title"`
	PromptText     string `gorm:"column:prompt_text;type:text;not null" json:"prompt_text"`
	TranslatedText string `gorm:"column:translated_text;type:text" json:"translated_text,omitempty"`
	NegativePrompt string `gorm:"column:negative_prompt;type:text" json:"negative_prompt,omitempty"`
	ModelInfo      string `gorm:"column:model_info" json:"model_info,omitempty"`

	FamilyID      uuid.UUID `gorm:"column:family_id;type:uuid;not null;index" json:"family_id"`
	IsMainVariant bool      `gorm:"column:is_main_variant;not null" json:"is_main_variant"`
	IsLiked       bool      `gorm:"column:is_liked;not null;index" json:"is_liked"`

	Assets []Asset `gorm:"foreignKey:MemberID" json:"assets,omitempty"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (PromptMember) TableName() string { return "prompt_member" }

func (m *PromptMember) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.FamilyID == uuid.Nil {
		m.FamilyID = uuid.New()
	}
	return nil
}

// ClusterCandidate is the projection loaded for family assignment and suggestions.
type ClusterCandidate struct {
	ID         uuid.UUID `gorm:"column:id"`
	FamilyID   uuid.UUID `gorm:"column:family_id"`
	PromptText string    `gorm:"column:prompt_text"`
	CreatedAt  time.Time `gorm:"column:created_at"`
}
