package gallery

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type AssetRole string

const (
	AssetRoleGenerated AssetRole = "generated"
	AssetRoleReference AssetRole = "reference"
)

func (r AssetRole) Valid() bool {
	return r == AssetRoleGenerated || r == AssetRoleReference
}

type AssetKind string

const (
	AssetKindImage AssetKind = "image"
	AssetKindVideo AssetKind = "video"
)

type EmbeddingStatus string

const (
	EmbeddingPending EmbeddingStatus = "pending"
	EmbeddingReady   EmbeddingStatus = "ready"
	EmbeddingFailed  EmbeddingStatus = "failed"
)

// Asset is one stored image or video file owned by a PromptMember.
// ContentHash is immutable once set; equal hashes within a role mean equal bytes.
type Asset struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	MemberID uuid.UUID `gorm:"type:uuid;not null;index" json:"member_id"`

	Role         AssetRole `gorm:"column:role;not null;index" json:"role"`
	Kind         AssetKind `gorm:"column:kind;not null" json:"kind"`
	StorageKey   string    `gorm:"column:storage_key;not null;uniqueIndex" json:"storage_key"`
	OriginalName string    `gorm:"column:original_name" json:"original_name,omitempty"`
	MimeType     string    `gorm:"column:mime_type" json:"mime_type,omitempty"`
	SizeBytes    int64     `gorm:"column:size_bytes" json:"size_bytes"`

	ContentHash   string     `gorm:"column:content_hash;index" json:"content_hash,omitempty"`
	DuplicateOfID *uuid.UUID `gorm:"column:duplicate_of_id;type:uuid;index" json:"duplicate_of_id,omitempty"`

	Embedding       *pgvector.Vector `gorm:"column:embedding;type:vector" json:"-"`
	EmbeddingModel  string           `gorm:"column:embedding_model;index" json:"embedding_model,omitempty"`
	EmbeddingStatus EmbeddingStatus  `gorm:"column:embedding_status;index" json:"embedding_status"`
	EmbeddingError  string           `gorm:"column:embedding_error" json:"embedding_error,omitempty"`

	IsLiked  bool           `gorm:"column:is_liked;not null;index" json:"is_liked"`
	Metadata datatypes.JSON `gorm:"column:metadata" json:"metadata,omitempty"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Asset) TableName() string { return "asset" }

func (a *Asset) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Role == "" {
		a.Role = AssetRoleGenerated
	}
	if a.EmbeddingStatus == "" {
		a.EmbeddingStatus = EmbeddingPending
	}
	return nil
}

// Vector returns the stored embedding, or nil when it has not been computed yet.
func (a *Asset) Vector() []float32 {
	if a == nil || a.Embedding == nil {
		return nil
	}
	return a.Embedding.Slice()
}

// AssetVector is the minimal projection used by similarity search.
type AssetVector struct {
	ID        uuid.UUID        `gorm:"column:id"`
	Embedding *pgvector.Vector `gorm:"column:embedding"`
}
