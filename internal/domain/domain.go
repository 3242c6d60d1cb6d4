package domain

import "github.com/yungbote/promptgallery-backend/internal/domain/gallery"

type Asset = gallery.Asset
type AssetVector = gallery.AssetVector
type AssetRole = gallery.AssetRole
type AssetKind = gallery.AssetKind
type EmbeddingStatus = gallery.EmbeddingStatus

type PromptMember = gallery.PromptMember
type ClusterCandidate = gallery.ClusterCandidate
type Family = gallery.Family
type FamilyCount = gallery.FamilyCount

const (
	AssetRoleGenerated = gallery.AssetRoleGenerated
	AssetRoleReference = gallery.AssetRoleReference

	AssetKindImage = gallery.AssetKindImage
	AssetKindVideo = gallery.AssetKindVideo

	EmbeddingPending = gallery.EmbeddingPending
	EmbeddingReady   = gallery.EmbeddingReady
	EmbeddingFailed  = gallery.EmbeddingFailed
)

var PickRepresentative = gallery.PickRepresentative
