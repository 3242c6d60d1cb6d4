package app

import (
	"gorm.io/gorm"

	httpH "github.com/yungbote/promptgallery-backend/internal/http/handlers"
	"github.com/yungbote/promptgallery-backend/internal/platform/logger"
)

type Handlers struct {
	Member *httpH.MemberHandler
	Family *httpH.FamilyHandler
	Asset  *httpH.AssetHandler
	Health *httpH.HealthHandler
}

func wireHandlers(log *logger.Logger, db *gorm.DB, cfg Config, services Services) Handlers {
	log.Info("Wiring handlers...")
	var pinger httpH.Pinger
	if sqlDB, err := db.DB(); err == nil {
		pinger = sqlDB
	}
	return Handlers{
		Member: httpH.NewMemberHandler(log, services.Members, services.Families),
		Family: httpH.NewFamilyHandler(log, services.Members, services.Families),
		Asset:  httpH.NewAssetHandler(log, services.Assets, cfg.MaxUploadBytes),
		Health: httpH.NewHealthHandler(pinger),
	}
}
