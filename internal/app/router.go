package app

import (
	apphttp "github.com/yungbote/promptgallery-backend/internal/http"
	"github.com/yungbote/promptgallery-backend/internal/observability"
	"github.com/yungbote/promptgallery-backend/internal/platform/logger"
)

func wireServer(log *logger.Logger, cfg Config, metrics *observability.Metrics, handlers Handlers) *apphttp.Server {
	serviceName := ""
	if cfg.Otel.Enabled {
		serviceName = cfg.Otel.ServiceName
	}
	return apphttp.NewServer(apphttp.RouterConfig{
		Log:           log.With("component", "http"),
		Metrics:       metrics,
		ServiceName:   serviceName,
		CORSOrigins:   cfg.CORSOrigins,
		MemberHandler: handlers.Member,
		FamilyHandler: handlers.Family,
		AssetHandler:  handlers.Asset,
		HealthHandler: handlers.Health,
	})
}
