package app

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/promptgallery-backend/internal/data/db"
	apphttp "github.com/yungbote/promptgallery-backend/internal/http"
	"github.com/yungbote/promptgallery-backend/internal/observability"
	"github.com/yungbote/promptgallery-backend/internal/platform/envutil"
	"github.com/yungbote/promptgallery-backend/internal/platform/logger"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Cfg      Config
	Repos    Repos
	Services Services
	Server   *apphttp.Server
	Metrics  *observability.Metrics

	dbService    *db.Service
	otelShutdown func(context.Context) error
	cancel       context.CancelFunc
}

// New wires the HTTP process: background embedding workers, tracing, metrics and the router.
func New(ctx context.Context) (*App, error) {
	a, err := build(ctx, wireOptions{})
	if err != nil {
		return nil, err
	}
	a.otelShutdown = observability.InitOTel(ctx, a.Log, a.Cfg.Otel)
	a.Metrics = observability.Init(a.Log, a.Cfg.Metrics)

	handlerset := wireHandlers(a.Log, a.DB, a.Cfg, a.Services)
	a.Server = wireServer(a.Log, a.Cfg, a.Metrics, handlerset)
	return a, nil
}

// NewTool wires the same repos and services for one-shot commands. Embedding runs inline.
func NewTool(ctx context.Context) (*App, error) {
	return build(ctx, wireOptions{Inline: true})
}

func build(ctx context.Context, opts wireOptions) (*App, error) {
	log, err := logger.New(envutil.String("LOG_MODE", "development"))
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading configuration...")
	cfg, err := LoadConfig(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("load config: %w", err)
	}

	dbService, err := db.NewService(log, cfg.DB)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init database: %w", err)
	}
	theDB := dbService.DB()
	if err := db.AutoMigrateAll(theDB); err != nil {
		_ = dbService.Close()
		log.Sync()
		return nil, fmt.Errorf("automigrate: %w", err)
	}

	reposet := wireRepos(theDB, log)
	serviceset, err := wireServices(ctx, theDB, log, cfg, reposet, opts)
	if err != nil {
		_ = dbService.Close()
		log.Sync()
		return nil, err
	}

	return &App{
		Log:       log,
		DB:        theDB,
		Cfg:       cfg,
		Repos:     reposet,
		Services:  serviceset,
		dbService: dbService,
	}, nil
}

// Start launches the embedding workers and metric collectors. Calling it twice is a no-op.
func (a *App) Start(ctx context.Context) {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if a.Services.Dispatch != nil {
		a.Services.Dispatch.Start(ctx)
	}
	if a.Metrics != nil {
		a.Metrics.StartPostgresCollector(ctx, a.Log, a.DB)
		a.Metrics.StartEmbeddingBacklogCollector(ctx, a.Log, a.DB)
		if q := a.Services.Queue; q != nil {
			a.Metrics.StartQueueCollector(ctx, a.Log, "redis", q.Len)
		}
		a.Metrics.StartServer(ctx, a.Log, a.Cfg.Metrics.Addr)
	}
}

func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Server == nil {
		return errors.New("app not initialized")
	}
	a.Log.Info("HTTP server listening", "addr", a.Cfg.Addr)
	return a.Server.Run(ctx, a.Cfg.Addr)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.Services.Dispatch != nil {
		a.Services.Dispatch.Stop()
	}
	if a.Services.Queue != nil {
		if err := a.Services.Queue.Close(); err != nil {
			a.Log.Warn("embedding queue close failed", "error", err)
		}
	}
	if a.otelShutdown != nil {
		if err := a.otelShutdown(context.Background()); err != nil {
			a.Log.Warn("otel shutdown failed", "error", err)
		}
	}
	if a.dbService != nil {
		if err := a.dbService.Close(); err != nil {
			a.Log.Warn("database close failed", "error", err)
		}
	}
	a.Log.Sync()
}
