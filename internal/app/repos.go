package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/promptgallery-backend/internal/data/repos"
	"github.com/yungbote/promptgallery-backend/internal/platform/logger"
)

type Repos struct {
	Asset  repos.AssetRepo
	Member repos.PromptMemberRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Asset:  repos.NewAssetRepo(db, log),
		Member: repos.NewPromptMemberRepo(db, log),
	}
}
