package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/promptgallery-backend/internal/http/handlers"
	httpMW "github.com/yungbote/promptgallery-backend/internal/http/middleware"
	"github.com/yungbote/promptgallery-backend/internal/observability"
	"github.com/yungbote/promptgallery-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	Metrics     *observability.Metrics
	ServiceName string
	CORSOrigins []string

	MemberHandler *httpH.MemberHandler
	FamilyHandler *httpH.FamilyHandler
	AssetHandler  *httpH.AssetHandler
	HealthHandler *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins...))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapF(cfg.Metrics.WriteHTTP))
	}

	api := r.Group("/api")
	{
		// Members
		if cfg.MemberHandler != nil {
			api.POST("/members", cfg.MemberHandler.Create)
			api.GET("/members/:id", cfg.MemberHandler.Get)
			api.PATCH("/members/:id", cfg.MemberHandler.Update)
			api.DELETE("/members/:id", cfg.MemberHandler.Delete)
			api.POST("/members/:id/like", cfg.MemberHandler.ToggleLike)

			// Family overrides
			api.GET("/members/:id/family", cfg.MemberHandler.Family)
			api.POST("/members/:id/unlink", cfg.MemberHandler.Unlink)
			api.POST("/members/:id/link", cfg.MemberHandler.Link)
			api.POST("/members/:id/main", cfg.MemberHandler.SetMainVariant)
			api.GET("/members/:id/link-suggestions", cfg.MemberHandler.LinkSuggestions)
		}

		// Families
		if cfg.FamilyHandler != nil {
			api.GET("/families", cfg.FamilyHandler.List)
			api.POST("/families/merge", cfg.FamilyHandler.Merge)
		}

		// Assets + similarity
		if cfg.AssetHandler != nil {
			api.POST("/members/:id/assets", cfg.AssetHandler.Upload)
			api.GET("/assets/liked", cfg.AssetHandler.ListLiked)
			api.POST("/assets/check-duplicates", cfg.AssetHandler.CheckDuplicates)
			api.DELETE("/assets/:id", cfg.AssetHandler.Delete)
			api.POST("/assets/:id/like", cfg.AssetHandler.ToggleLike)
			api.GET("/assets/:id/similar", cfg.AssetHandler.Similar)
			api.POST("/search/similar", cfg.AssetHandler.SearchByUpload)
		}
	}

	return r
}
