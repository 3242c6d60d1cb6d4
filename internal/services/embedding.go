package services

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/yungbote/promptgallery-backend/internal/data/repos"
	types "github.com/yungbote/promptgallery-backend/internal/domain"
	"github.com/yungbote/promptgallery-backend/internal/observability"
	"github.com/yungbote/promptgallery-backend/internal/platform/dbctx"
	"github.com/yungbote/promptgallery-backend/internal/platform/logger"
	"github.com/yungbote/promptgallery-backend/internal/platform/redisq"
	"github.com/yungbote/promptgallery-backend/internal/platform/storage"
	"github.com/yungbote/promptgallery-backend/internal/similarity"
)

// AssetEmbedder computes and stores the vector for one stored asset.
type AssetEmbedder interface {
	EmbedAsset(ctx context.Context, assetID uuid.UUID) error
	Model() string
}

type assetEmbedder struct {
	db        *gorm.DB
	log       *logger.Logger
	assetRepo repos.AssetRepo
	store     storage.Store
	embedder  similarity.Embedder
}

func NewAssetEmbedder(db *gorm.DB, log *logger.Logger, assetRepo repos.AssetRepo, store storage.Store, embedder similarity.Embedder) AssetEmbedder {
	return &assetEmbedder{
		db:        db,
		log:       log.With("service", "AssetEmbedder"),
		assetRepo: assetRepo,
		store:     store,
		embedder:  embedder,
	}
}

func (e *assetEmbedder) Model() string {
	if e.embedder == nil {
		return ""
	}
	return e.embedder.Model()
}

// EmbedAsset never leaves an asset pending after a definite failure: the row is marked
// failed with the error kind so backfills can retry it explicitly.
func (e *assetEmbedder) EmbedAsset(ctx context.Context, assetID uuid.UUID) (err error) {
	ctx, span := startSpan(ctx, "embedding.embed_asset", attribute.String("asset_id", assetID.String()))
	defer func() { endSpan(span, err) }()

	dbc := dbctx.Context{Ctx: ctx, Tx: e.db}
	asset, err := e.assetRepo.GetByID(dbc, assetID)
	if err != nil {
		return fmt.Errorf("load asset: %w", err)
	}
	if asset == nil {
		return nil
	}
	if e.embedder == nil {
		return fmt.Errorf("no embedder configured")
	}

	data, err := e.readObject(ctx, asset.StorageKey)
	if err != nil {
		e.markFailed(dbc, asset.ID, string(similarity.KindUnreadable)+": "+err.Error())
		return err
	}

	start := time.Now()
	vec, err := e.embedder.Embed(ctx, similarity.FromBytes(sourceName(asset), data))
	if err != nil {
		observability.Current().ObserveEmbedding(e.embedder.Model(), string(similarity.KindOf(err)), time.Since(start))
		e.markFailed(dbc, asset.ID, string(similarity.KindOf(err))+": "+err.Error())
		return err
	}
	observability.Current().ObserveEmbedding(e.embedder.Model(), "", time.Since(start))
	if err := e.assetRepo.SetEmbedding(dbc, asset.ID, vec, e.embedder.Model()); err != nil {
		return fmt.Errorf("store embedding: %w", err)
	}
	e.log.Debug("Asset embedded", "asset_id", asset.ID, "dims", len(vec), "model", e.embedder.Model())
	return nil
}

func (e *assetEmbedder) readObject(ctx context.Context, key string) ([]byte, error) {
	if e.store == nil {
		return nil, fmt.Errorf("no object store configured")
	}
	rc, err := e.store.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (e *assetEmbedder) markFailed(dbc dbctx.Context, id uuid.UUID, reason string) {
	if err := e.assetRepo.MarkEmbeddingFailed(dbc, id, reason); err != nil {
		e.log.Warn("Mark embedding failed", "asset_id", id, "error", err)
	}
}

// sourceName keeps the storage key extension so the extractor can sniff videos even when
// the original upload name had none.
func sourceName(a *types.Asset) string {
	if ext := path.Ext(a.OriginalName); ext != "" {
		return a.OriginalName
	}
	return path.Base(a.StorageKey)
}

// EmbeddingDispatcher hands asset ids to background workers. Enqueue never blocks the
// request path.
type EmbeddingDispatcher interface {
	Enqueue(ctx context.Context, assetIDs ...uuid.UUID)
	Start(ctx context.Context)
	Stop()
}

type DispatchConfig struct {
	Workers   int
	QueueSize int
	// PopWait bounds each BRPOP when a Redis queue is configured.
	PopWait time.Duration
}

type dispatcher struct {
	log     *logger.Logger
	worker  AssetEmbedder
	queue   redisq.Queue
	local   chan uuid.UUID
	workers int
	popWait time.Duration

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewEmbeddingDispatcher returns an in-process pool, or a Redis-backed one when queue is
// non-nil. Both drain through the same worker loop.
func NewEmbeddingDispatcher(log *logger.Logger, worker AssetEmbedder, queue redisq.Queue, cfg DispatchConfig) EmbeddingDispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.PopWait <= 0 {
		cfg.PopWait = 5 * time.Second
	}
	d := &dispatcher{
		log:     log.With("service", "EmbeddingDispatcher"),
		worker:  worker,
		queue:   queue,
		workers: cfg.Workers,
		popWait: cfg.PopWait,
	}
	if queue == nil {
		d.local = make(chan uuid.UUID, cfg.QueueSize)
	}
	return d
}

func (d *dispatcher) Enqueue(ctx context.Context, assetIDs ...uuid.UUID) {
	for _, id := range assetIDs {
		if id == uuid.Nil {
			continue
		}
		if d.queue != nil {
			if err := d.queue.Push(ctx, id.String()); err != nil {
				d.log.Warn("Embedding enqueue failed", "asset_id", id, "error", err)
			}
			continue
		}
		select {
		case d.local <- id:
		default:
			d.log.Warn("Embedding queue full; dropping", "asset_id", id)
		}
	}
	if d.local != nil {
		observability.Current().SetQueueDepth("local", int64(len(d.local)))
	}
}

func (d *dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return
	}
	d.started = true
	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.loop(runCtx, i)
	}
	d.log.Info("Embedding workers started", "workers", d.workers, "redis", d.queue != nil)
}

func (d *dispatcher) Stop() {
	d.mu.Lock()
	cancel := d.cancel
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	d.wg.Wait()
}

func (d *dispatcher) loop(ctx context.Context, n int) {
	defer d.wg.Done()
	for {
		id, ok := d.next(ctx)
		if ctx.Err() != nil {
			return
		}
		if !ok {
			continue
		}
		if err := d.worker.EmbedAsset(ctx, id); err != nil {
			d.log.Warn("Embedding failed", "worker", n, "asset_id", id, "kind", similarity.KindOf(err), "error", err)
		}
	}
}

func (d *dispatcher) next(ctx context.Context) (uuid.UUID, bool) {
	if d.queue == nil {
		select {
		case <-ctx.Done():
			return uuid.Nil, false
		case id := <-d.local:
			return id, true
		}
	}
	raw, ok, err := d.queue.Pop(ctx, d.popWait)
	if err != nil {
		if ctx.Err() == nil {
			d.log.Warn("Embedding queue pop failed", "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
		}
		return uuid.Nil, false
	}
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		d.log.Warn("Embedding queue payload is not an asset id", "payload", raw)
		return uuid.Nil, false
	}
	return id, true
}

// syncDispatcher runs the embedding inline; used by the CLI and tests.
type syncDispatcher struct {
	log    *logger.Logger
	worker AssetEmbedder
}

func NewSyncDispatcher(log *logger.Logger, worker AssetEmbedder) EmbeddingDispatcher {
	return &syncDispatcher{log: log.With("service", "EmbeddingDispatcher"), worker: worker}
}

func (d *syncDispatcher) Enqueue(ctx context.Context, assetIDs ...uuid.UUID) {
	for _, id := range assetIDs {
		if err := d.worker.EmbedAsset(ctx, id); err != nil {
			d.log.Warn("Embedding failed", "asset_id", id, "error", err)
		}
	}
}

func (d *syncDispatcher) Start(ctx context.Context) {}
func (d *syncDispatcher) Stop()                     {}
