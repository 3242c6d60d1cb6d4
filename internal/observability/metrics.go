package observability

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	types "github.com/yungbote/promptgallery-backend/internal/domain"
	"github.com/yungbote/promptgallery-backend/internal/platform/logger"
)

// Metrics holds the gallery's Prometheus series. A nil *Metrics is valid and records nothing.
type Metrics struct {
	apiRequests  *CounterVec
	apiLatency   *HistogramVec
	apiInflight  *Gauge
	apiErrors    *Counter
	embedJobs    *CounterVec
	embedLatency *HistogramVec
	clusterRuns  *CounterVec
	familyEdits  *CounterVec
	searches     *CounterVec
	searchPool   *HistogramVec
	uploads      *CounterVec
	queueDepth   *GaugeVec
	embedBacklog *GaugeVec
	pgStats      *GaugeVec

	collectEvery time.Duration
}

type MetricsConfig struct {
	Enabled bool
	// Addr serves /metrics on its own listener when set.
	Addr           string
	ScrapeInterval time.Duration
}

var (
	initOnce sync.Once
	instance *Metrics
)

// Current returns the process-wide metrics, or nil when they were never enabled.
func Current() *Metrics {
	return instance
}

func Init(log *logger.Logger, cfg MetricsConfig) *Metrics {
	if !cfg.Enabled {
		return nil
	}
	initOnce.Do(func() {
		every := cfg.ScrapeInterval
		if every <= 0 {
			every = 10 * time.Second
		}
		instance = newMetrics(every)
		if log != nil {
			log.Info("Observability metrics enabled", "scrape_interval", every.String())
		}
	})
	return instance
}

func newMetrics(every time.Duration) *Metrics {
	return &Metrics{
		apiRequests: NewCounterVec("pg_api_requests_total", "API requests by method/route/status.", []string{"method", "route", "status"}),
		apiLatency: NewHistogramVec(
			"pg_api_request_duration_seconds",
			"API request latency in seconds by method/route.",
			[]string{"method", "route"},
			[]float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		),
		apiInflight: NewGauge("pg_api_inflight_requests", "In-flight API requests."),
		apiErrors:   NewCounter("pg_api_server_errors_total", "API responses with a 5xx status."),
		embedJobs:   NewCounterVec("pg_embedding_jobs_total", "Embedding attempts by model/status/kind.", []string{"model", "status", "kind"}),
		embedLatency: NewHistogramVec(
			"pg_embedding_duration_seconds",
			"Time to load and embed one asset.",
			[]string{"model"},
			[]float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 30},
		),
		clusterRuns: NewCounterVec("pg_cluster_decisions_total", "Family assignments on create by outcome.", []string{"joined", "reason"}),
		familyEdits: NewCounterVec("pg_family_edits_total", "Manual family corrections by operation/status.", []string{"op", "status"}),
		searches:    NewCounterVec("pg_similarity_searches_total", "Similarity searches by source/outcome.", []string{"source", "outcome"}),
		searchPool: NewHistogramVec(
			"pg_similarity_pool_size",
			"Number of stored vectors scored per search.",
			[]string{"source"},
			[]float64{10, 100, 500, 1000, 5000, 10000, 20000},
		),
		uploads:      NewCounterVec("pg_asset_uploads_total", "Uploaded files by role/outcome.", []string{"role", "outcome"}),
		queueDepth:   NewGaugeVec("pg_embedding_queue_depth", "Pending entries in the embedding queue.", []string{"queue"}),
		embedBacklog: NewGaugeVec("pg_embedding_backlog", "Assets by embedding status.", []string{"status"}),
		pgStats:      NewGaugeVec("pg_db_pool", "database/sql pool stats.", []string{"stat"}),
		collectEvery: every,
	}
}

func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           http.HandlerFunc(m.WriteHTTP),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if log != nil {
				log.Error("metrics server failed", "error", err, "addr", addr)
			}
		}
	}()
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, r *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	for _, s := range []collector{
		m.apiRequests, m.apiLatency, m.apiInflight, m.apiErrors,
		m.embedJobs, m.embedLatency,
		m.clusterRuns, m.familyEdits,
		m.searches, m.searchPool,
		m.uploads,
		m.queueDepth, m.embedBacklog, m.pgStats,
	} {
		if err := s.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unknown"
	}
	if status == "" {
		status = "0"
	}
	m.apiRequests.Inc(method, route, status)
	m.apiLatency.Observe(dur.Seconds(), method, route)
	if strings.HasPrefix(status, "5") {
		m.apiErrors.Inc()
	}
}

func (m *Metrics) APIInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) APIInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

// ObserveEmbedding records one embedding attempt. kind is the failure kind, empty on success.
func (m *Metrics) ObserveEmbedding(model, kind string, dur time.Duration) {
	if m == nil {
		return
	}
	status := "ready"
	if kind != "" {
		status = "failed"
	} else {
		kind = "none"
	}
	m.embedJobs.Inc(model, status, kind)
	m.embedLatency.Observe(dur.Seconds(), model)
}

func (m *Metrics) IncClusterDecision(joined bool, reason string) {
	if m == nil {
		return
	}
	j := "false"
	if joined {
		j = "true"
	}
	m.clusterRuns.Inc(j, reason)
}

func (m *Metrics) IncFamilyEdit(op string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.familyEdits.Inc(op, status)
}

func (m *Metrics) ObserveSearch(source, outcome string, pool int) {
	if m == nil {
		return
	}
	m.searches.Inc(source, outcome)
	if pool >= 0 {
		m.searchPool.Observe(float64(pool), source)
	}
}

func (m *Metrics) IncUpload(role, outcome string) {
	if m == nil {
		return
	}
	m.uploads.Inc(role, outcome)
}

func (m *Metrics) SetQueueDepth(queue string, n int64) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n), queue)
}

func (m *Metrics) every(ctx context.Context, fn func(context.Context)) {
	go func() {
		ticker := time.NewTicker(m.collectEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn(ctx)
			}
		}
	}()
}

func (m *Metrics) StartPostgresCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	m.every(ctx, func(ctx context.Context) {
		sqlDB, err := db.DB()
		if err != nil {
			if log != nil {
				log.Warn("metrics: db stats unavailable", "error", err)
			}
			return
		}
		stats := sqlDB.Stats()
		m.pgStats.Set(float64(stats.OpenConnections), "open_connections")
		m.pgStats.Set(float64(stats.InUse), "in_use")
		m.pgStats.Set(float64(stats.Idle), "idle")
		m.pgStats.Set(float64(stats.WaitCount), "wait_count")
		m.pgStats.Set(stats.WaitDuration.Seconds(), "wait_duration_seconds")
		m.pgStats.Set(float64(stats.MaxOpenConnections), "max_open_connections")
	})
}

// StartEmbeddingBacklogCollector periodically counts assets per embedding status.
func (m *Metrics) StartEmbeddingBacklogCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	statuses := []types.EmbeddingStatus{types.EmbeddingPending, types.EmbeddingReady, types.EmbeddingFailed}
	m.every(ctx, func(ctx context.Context) {
		for _, s := range statuses {
			m.embedBacklog.Set(0, string(s))
		}
		var rows []struct {
			Status string
			Count  int64
		}
		if err := db.WithContext(ctx).
			Model(&types.Asset{}).
			Select("embedding_status AS status, count(*) AS count").
			Group("embedding_status").
			Scan(&rows).Error; err != nil {
			if log != nil {
				log.Warn("metrics: embedding backlog query failed", "error", err)
			}
			return
		}
		for _, row := range rows {
			status := strings.TrimSpace(row.Status)
			if status == "" {
				status = "unknown"
			}
			m.embedBacklog.Set(float64(row.Count), status)
		}
	})
}

// StartQueueCollector samples a queue length, such as the Redis embedding list.
func (m *Metrics) StartQueueCollector(ctx context.Context, log *logger.Logger, name string, length func(context.Context) (int64, error)) {
	if m == nil || length == nil {
		return
	}
	m.every(ctx, func(ctx context.Context) {
		n, err := length(ctx)
		if err != nil {
			if log != nil {
				log.Warn("metrics: queue length failed", "queue", name, "error", err)
			}
			return
		}
		m.queueDepth.Set(float64(n), name)
	})
}
