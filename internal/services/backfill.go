package services

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"gorm.io/gorm"

	"github.com/yungbote/promptgallery-backend/internal/clustering"
	dataagg "github.com/yungbote/promptgallery-backend/internal/data/aggregates"
	"github.com/yungbote/promptgallery-backend/internal/data/repos"
	types "github.com/yungbote/promptgallery-backend/internal/domain"
	"github.com/yungbote/promptgallery-backend/internal/platform/dbctx"
	"github.com/yungbote/promptgallery-backend/internal/platform/logger"
	"github.com/yungbote/promptgallery-backend/internal/platform/storage"
	"github.com/yungbote/promptgallery-backend/internal/similarity"
)

type BackfillOptions struct {
	BatchSize   int
	Concurrency int
	// Limit stops after this many assets; zero means all.
	Limit         int
	IncludeFailed bool
}

type BackfillStats struct {
	Scanned int64 `json:"scanned"`
	Updated int64 `json:"updated"`
	Failed  int64 `json:"failed"`
}

// BackfillService runs the offline maintenance jobs exposed by the admin CLI.
type BackfillService interface {
	FillHashes(ctx context.Context, opts BackfillOptions) (BackfillStats, error)
	EmbedMissing(ctx context.Context, opts BackfillOptions) (BackfillStats, error)
	Recluster(ctx context.Context, cfg clustering.Config, dryRun bool) (*clustering.ReclusterResult, error)
}

type backfillService struct {
	db         *gorm.DB
	log        *logger.Logger
	tx         dataagg.TxRunner
	assetRepo  repos.AssetRepo
	memberRepo repos.PromptMemberRepo
	store      storage.Store
	embedder   AssetEmbedder
}

func NewBackfillService(db *gorm.DB, log *logger.Logger, assetRepo repos.AssetRepo, memberRepo repos.PromptMemberRepo, store storage.Store, embedder AssetEmbedder) BackfillService {
	return &backfillService{
		db:         db,
		log:        log.With("service", "BackfillService"),
		tx:         dataagg.NewGormTxRunner(db),
		assetRepo:  assetRepo,
		memberRepo: memberRepo,
		store:      store,
		embedder:   embedder,
	}
}

func (o BackfillOptions) normalized() BackfillOptions {
	if o.BatchSize <= 0 {
		o.BatchSize = 200
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	return o
}

// FillHashes computes the content hash of stored assets that have none. An asset whose
// object cannot be read is counted as failed and left for the next run.
func (s *backfillService) FillHashes(ctx context.Context, opts BackfillOptions) (BackfillStats, error) {
	opts = opts.normalized()
	var stats BackfillStats
	if s.store == nil {
		return stats, fmt.Errorf("fill-hashes: no object store configured")
	}
	var after uuid.UUID
	seen := 0

	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		rows, err := s.assetRepo.ListMissingHash(dbctx.New(ctx), after, opts.BatchSize)
		if err != nil {
			return stats, dataagg.MapError("backfill.fill_hashes", err)
		}
		batch := capBatch(rows, opts.Limit, &seen)
		if len(batch) == 0 {
			break
		}
		after = batch[len(batch)-1].ID

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(opts.Concurrency)
		for _, a := range batch {
			a := a
			g.Go(func() error {
				atomic.AddInt64(&stats.Scanned, 1)
				hash, err := s.hashObject(gctx, a.StorageKey)
				if err != nil {
					atomic.AddInt64(&stats.Failed, 1)
					s.log.Warn("Hash backfill failed", "asset_id", a.ID, "key", a.StorageKey, "error", err)
					return nil
				}
				ok, err := s.assetRepo.SetContentHash(dbctx.New(gctx), a.ID, hash)
				if err != nil {
					return err
				}
				if ok {
					atomic.AddInt64(&stats.Updated, 1)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return stats, dataagg.MapError("backfill.fill_hashes", err)
		}
	}
	s.log.Info("Hash backfill done", "scanned", stats.Scanned, "updated", stats.Updated, "failed", stats.Failed)
	return stats, nil
}

func (s *backfillService) hashObject(ctx context.Context, key string) (string, error) {
	rc, err := s.store.Open(ctx, key)
	if err != nil {
		return "", err
	}
	defer rc.Close()
	return similarity.HashReader(rc)
}

// EmbedMissing computes vectors for assets without one for the current model. Failures
// are recorded on the asset by the embedder and do not stop the run.
func (s *backfillService) EmbedMissing(ctx context.Context, opts BackfillOptions) (BackfillStats, error) {
	opts = opts.normalized()
	var stats BackfillStats
	if s.embedder == nil {
		return stats, fmt.Errorf("embed-backfill: no embedder configured")
	}
	model := s.embedder.Model()
	sem := semaphore.NewWeighted(int64(opts.Concurrency))
	var after uuid.UUID
	seen := 0

	for {
		rows, err := s.assetRepo.ListMissingEmbedding(dbctx.New(ctx), model, opts.IncludeFailed, after, opts.BatchSize)
		if err != nil {
			return stats, dataagg.MapError("backfill.embed", err)
		}
		batch := capBatch(rows, opts.Limit, &seen)
		if len(batch) == 0 {
			break
		}
		after = batch[len(batch)-1].ID

		g, gctx := errgroup.WithContext(ctx)
		for _, a := range batch {
			if err := sem.Acquire(gctx, 1); err != nil {
				break
			}
			id := a.ID
			g.Go(func() error {
				defer sem.Release(1)
				atomic.AddInt64(&stats.Scanned, 1)
				if err := s.embedder.EmbedAsset(gctx, id); err != nil {
					atomic.AddInt64(&stats.Failed, 1)
					s.log.Warn("Embedding backfill failed", "asset_id", id, "kind", similarity.KindOf(err), "error", err)
					return nil
				}
				atomic.AddInt64(&stats.Updated, 1)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return stats, err
		}
		if err := ctx.Err(); err != nil {
			return stats, err
		}
	}
	s.log.Info("Embedding backfill done", "model", model, "scanned", stats.Scanned, "updated", stats.Updated, "failed", stats.Failed)
	return stats, nil
}

// capBatch trims rows so at most limit assets are handed out across the run.
func capBatch(rows []*types.Asset, limit int, seen *int) []*types.Asset {
	if limit > 0 {
		left := limit - *seen
		if left <= 0 {
			return nil
		}
		if len(rows) > left {
			rows = rows[:left]
		}
	}
	*seen += len(rows)
	return rows
}

// Recluster rebuilds every family from the stored prompts. With dryRun nothing is written.
// Moved members lose their main flag so no family ends up with two.
func (s *backfillService) Recluster(ctx context.Context, cfg clustering.Config, dryRun bool) (*clustering.ReclusterResult, error) {
	const op = "backfill.recluster"
	var res clustering.ReclusterResult
	err := s.tx.InTx(ctx, func(dbc dbctx.Context) error {
		rows, err := s.memberRepo.ListAllForRecluster(dbc)
		if err != nil {
			return err
		}
		res = clustering.Recluster(clustering.FromRows(rows), cfg)
		if dryRun {
			return nil
		}
		for _, r := range res.Reassigned {
			if err := s.memberRepo.SetFamilyID(dbc, r.MemberID, r.To, true); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, dataagg.MapError(op, err)
	}
	s.log.Info("Recluster done",
		"dry_run", dryRun,
		"members", res.Total,
		"families", res.Families,
		"merged", res.Merged,
		"reassigned", len(res.Reassigned),
	)
	return &res, nil
}
