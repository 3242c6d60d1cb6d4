package app

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/promptgallery-backend/internal/clustering"
	"github.com/yungbote/promptgallery-backend/internal/platform/clip"
	"github.com/yungbote/promptgallery-backend/internal/platform/localmedia"
	"github.com/yungbote/promptgallery-backend/internal/platform/logger"
	"github.com/yungbote/promptgallery-backend/internal/platform/redisq"
	"github.com/yungbote/promptgallery-backend/internal/platform/storage"
	"github.com/yungbote/promptgallery-backend/internal/services"
	"github.com/yungbote/promptgallery-backend/internal/similarity"
)

type Services struct {
	Store    storage.Store
	Embedder similarity.Embedder
	Engine   *clustering.Engine

	Worker   services.AssetEmbedder
	Dispatch services.EmbeddingDispatcher
	Queue    redisq.Queue

	Assets   services.AssetService
	Members  services.MemberService
	Families services.FamilyService
	Backfill services.BackfillService
}

type wireOptions struct {
	// Inline embeds synchronously instead of starting background workers.
	Inline bool
}

func wireServices(ctx context.Context, db *gorm.DB, log *logger.Logger, cfg Config, reposet Repos, opts wireOptions) (Services, error) {
	log.Info("Wiring services...")

	store, err := resolveObjectStore(ctx, log, cfg.Storage)
	if err != nil {
		return Services{}, err
	}
	embedder := buildEmbedder(log, cfg)
	engine := clustering.NewEngine(reposet.Member, cfg.Tuning.ClusterConfig(), cfg.Tuning.SuggestionConfig())
	worker := services.NewAssetEmbedder(db, log, reposet.Asset, store, embedder)

	out := Services{Store: store, Embedder: embedder, Engine: engine, Worker: worker}
	switch {
	case opts.Inline:
		out.Dispatch = services.NewSyncDispatcher(log, worker)
	case cfg.Redis.Addr != "":
		q, err := redisq.New(log, cfg.Redis)
		if err != nil {
			return Services{}, fmt.Errorf("init embedding queue: %w", err)
		}
		out.Queue = q
		out.Dispatch = services.NewEmbeddingDispatcher(log, worker, q, dispatchConfig(cfg))
	default:
		out.Dispatch = services.NewEmbeddingDispatcher(log, worker, nil, dispatchConfig(cfg))
	}

	out.Assets = services.NewAssetService(db, log, reposet.Asset, reposet.Member, store, embedder, out.Dispatch, cfg.Tuning.AssetServiceConfig())
	out.Members = services.NewMemberService(db, log, reposet.Member, reposet.Asset, engine, store)
	out.Families = services.NewFamilyService(db, log, reposet.Member, reposet.Asset, engine, cfg.Tuning.Suggestions.Limit)
	out.Backfill = services.NewBackfillService(db, log, reposet.Asset, reposet.Member, store, worker)
	return out, nil
}

func dispatchConfig(cfg Config) services.DispatchConfig {
	return services.DispatchConfig{
		Workers:   cfg.Tuning.Embedding.Workers,
		QueueSize: cfg.Tuning.Embedding.QueueSize,
	}
}

// buildEmbedder returns the extractor over a lazily built, process-wide encoder. A CLIP
// endpoint that cannot be configured leaves the encoder unavailable rather than failing boot.
func buildEmbedder(log *logger.Logger, cfg Config) similarity.Embedder {
	var shared *similarity.Shared
	switch cfg.Encoder {
	case EncoderClip:
		clipCfg := cfg.Clip
		shared = similarity.NewShared(clipCfg.Model, func(ctx context.Context) (similarity.Encoder, error) {
			client, err := clip.NewClient(log, clipCfg)
			if err != nil {
				log.Warn("CLIP encoder unavailable", "error", err)
				return nil, err
			}
			return similarity.NewClipEncoder(client), nil
		})
	default:
		shared = similarity.NewShared(similarity.PixelModelName, func(ctx context.Context) (similarity.Encoder, error) {
			return similarity.NewPixelEncoder(), nil
		})
	}
	frames := services.NewFrameSource(localmedia.New(log, cfg.Media))
	log.Info("Embedding encoder selected", "encoder", cfg.Encoder, "model", shared.Name())
	return similarity.NewExtractor(shared, frames, similarity.ExtractorConfig{Timeout: cfg.Tuning.Embedding.Timeout})
}
