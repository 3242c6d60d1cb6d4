package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/promptgallery-backend/internal/data/repos/gallery"
	"github.com/yungbote/promptgallery-backend/internal/platform/logger"
)

type AssetRepo = gallery.AssetRepo
type PromptMemberRepo = gallery.PromptMemberRepo
type VectorFilter = gallery.VectorFilter

func NewAssetRepo(db *gorm.DB, baseLog *logger.Logger) AssetRepo {
	return gallery.NewAssetRepo(db, baseLog)
}

func NewPromptMemberRepo(db *gorm.DB, baseLog *logger.Logger) PromptMemberRepo {
	return gallery.NewPromptMemberRepo(db, baseLog)
}
