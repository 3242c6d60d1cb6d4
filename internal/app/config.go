package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/promptgallery-backend/internal/clustering"
	"github.com/yungbote/promptgallery-backend/internal/data/db"
	"github.com/yungbote/promptgallery-backend/internal/observability"
	"github.com/yungbote/promptgallery-backend/internal/platform/clip"
	"github.com/yungbote/promptgallery-backend/internal/platform/envutil"
	"github.com/yungbote/promptgallery-backend/internal/platform/localmedia"
	"github.com/yungbote/promptgallery-backend/internal/platform/logger"
	"github.com/yungbote/promptgallery-backend/internal/platform/redisq"
	"github.com/yungbote/promptgallery-backend/internal/platform/storage"
	"github.com/yungbote/promptgallery-backend/internal/services"
	"github.com/yungbote/promptgallery-backend/internal/similarity"
)

const (
	EncoderPixel = "pixel"
	EncoderClip  = "clip"
)

type Config struct {
	Addr           string
	CORSOrigins    []string
	MaxUploadBytes int64
	// Encoder selects the embedding backend: "clip" (remote) or "pixel" (in-process).
	Encoder string

	DB      db.Config
	Storage storage.Config
	Clip    clip.Config
	Media   localmedia.Config
	Redis   redisq.Config
	Otel    observability.OtelConfig
	Metrics observability.MetricsConfig

	Tuning Tuning
}

// Tuning holds the algorithm knobs. It is read from TUNING_FILE (YAML) and then from env.
type Tuning struct {
	Similarity struct {
		Threshold float64 `yaml:"threshold"`
		TopK      int     `yaml:"top_k"`
		MaxPool   int     `yaml:"max_pool"`
	} `yaml:"similarity"`
	Clustering struct {
		Threshold       float64 `yaml:"threshold"`
		Window          int     `yaml:"window"`
		MinLength       int     `yaml:"min_length"`
		LengthTolerance float64 `yaml:"length_tolerance"`
	} `yaml:"clustering"`
	Suggestions struct {
		Threshold float64 `yaml:"threshold"`
		Window    int     `yaml:"window"`
		Limit     int     `yaml:"limit"`
	} `yaml:"suggestions"`
	Embedding struct {
		Timeout   time.Duration `yaml:"timeout"`
		Workers   int           `yaml:"workers"`
		QueueSize int           `yaml:"queue_size"`
	} `yaml:"embedding"`
	Dedup struct {
		Policy string `yaml:"policy"`
	} `yaml:"dedup"`
}

func DefaultTuning() Tuning {
	var t Tuning
	t.Similarity.Threshold = similarity.DefaultThreshold
	t.Similarity.TopK = similarity.DefaultTopK
	t.Similarity.MaxPool = 20000

	cl := clustering.DefaultConfig()
	t.Clustering.Threshold = cl.Threshold
	t.Clustering.Window = cl.Window
	t.Clustering.MinLength = cl.MinLength
	t.Clustering.LengthTolerance = cl.LengthTolerance

	sg := clustering.DefaultSuggestionConfig()
	t.Suggestions.Threshold = sg.Threshold
	t.Suggestions.Window = sg.Window
	t.Suggestions.Limit = 20

	t.Embedding.Timeout = 60 * time.Second
	t.Embedding.Workers = 2
	t.Embedding.QueueSize = 256
	t.Dedup.Policy = string(services.DedupReject)
	return t
}

func LoadConfig(log *logger.Logger) (Config, error) {
	tuning := DefaultTuning()
	if path := envutil.String("TUNING_FILE", ""); path != "" {
		if err := tuning.LoadFile(path); err != nil {
			return Config{}, err
		}
		log.Info("Loaded tuning file", "path", path)
	}
	tuning.ApplyEnv()
	if err := tuning.Validate(); err != nil {
		return Config{}, err
	}

	clipCfg := clip.ConfigFromEnv()
	encoder := strings.ToLower(envutil.String("EMBEDDING_ENCODER", ""))
	if encoder == "" {
		encoder = EncoderPixel
		if clipCfg.BaseURL != "" {
			encoder = EncoderClip
		}
	}
	if encoder != EncoderPixel && encoder != EncoderClip {
		return Config{}, fmt.Errorf("invalid EMBEDDING_ENCODER=%q (allowed: %q, %q)", encoder, EncoderPixel, EncoderClip)
	}

	return Config{
		Addr:           ":" + envutil.String("PORT", "8080"),
		CORSOrigins:    splitList(envutil.String("CORS_ALLOWED_ORIGINS", "")),
		MaxUploadBytes: int64(envutil.Int("MAX_UPLOAD_MB", 64)) << 20,
		Encoder:        encoder,
		DB:             db.ConfigFromEnv(),
		Storage:        storage.ConfigFromEnv(),
		Clip:           clipCfg,
		Media: localmedia.Config{
			FFmpegPath: envutil.String("FFMPEG_PATH", "ffmpeg"),
			WorkRoot:   envutil.String("MEDIA_WORK_ROOT", ""),
			Timeout:    tuning.Embedding.Timeout,
		},
		Redis: redisq.Config{
			Addr:     envutil.String("REDIS_ADDR", ""),
			Password: envutil.String("REDIS_PASSWORD", ""),
			DB:       envutil.Int("REDIS_DB", 0),
			Key:      envutil.String("EMBEDDING_QUEUE_KEY", "promptgallery:embedding"),
		},
		Otel: observability.OtelConfig{
			Enabled:     envutil.Bool("OTEL_ENABLED", false),
			ServiceName: envutil.String("OTEL_SERVICE_NAME", "promptgallery"),
			Environment: envutil.String("APP_ENV", "development"),
			Version:     envutil.String("APP_VERSION", ""),
			Endpoint:    envutil.String("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Headers:     observability.ParseHeaders(envutil.String("OTEL_EXPORTER_OTLP_HEADERS", "")),
			Insecure:    envutil.Bool("OTEL_EXPORTER_OTLP_INSECURE", false),
			SampleRatio: envutil.Float("OTEL_SAMPLER_RATIO", 0.1),
		},
		Metrics: observability.MetricsConfig{
			Enabled:        envutil.Bool("METRICS_ENABLED", false),
			Addr:           envutil.String("METRICS_ADDR", ""),
			ScrapeInterval: envutil.Duration("METRICS_SCRAPE_INTERVAL", 10*time.Second),
		},
		Tuning: tuning,
	}, nil
}

func (t *Tuning) LoadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read tuning file: %w", err)
	}
	if err := yaml.Unmarshal(raw, t); err != nil {
		return fmt.Errorf("parse tuning file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides tuning values with any SIMILARITY_*, CLUSTER_*, SUGGESTION_*,
// EMBEDDING_* or DEDUP_POLICY variables that are set.
func (t *Tuning) ApplyEnv() {
	t.Similarity.Threshold = envutil.Float("SIMILARITY_THRESHOLD", t.Similarity.Threshold)
	t.Similarity.TopK = envutil.Int("SIMILARITY_TOP_K", t.Similarity.TopK)
	t.Similarity.MaxPool = envutil.Int("SIMILARITY_MAX_POOL", t.Similarity.MaxPool)

	t.Clustering.Threshold = envutil.Float("CLUSTER_THRESHOLD", t.Clustering.Threshold)
	t.Clustering.Window = envutil.Int("CLUSTER_WINDOW", t.Clustering.Window)
	t.Clustering.MinLength = envutil.Int("CLUSTER_MIN_LENGTH", t.Clustering.MinLength)
	t.Clustering.LengthTolerance = envutil.Float("CLUSTER_LENGTH_TOLERANCE", t.Clustering.LengthTolerance)

	t.Suggestions.Threshold = envutil.Float("SUGGESTION_THRESHOLD", t.Suggestions.Threshold)
	t.Suggestions.Window = envutil.Int("SUGGESTION_WINDOW", t.Suggestions.Window)
	t.Suggestions.Limit = envutil.Int("SUGGESTION_LIMIT", t.Suggestions.Limit)

	t.Embedding.Timeout = envutil.Duration("EMBEDDING_TIMEOUT", t.Embedding.Timeout)
	t.Embedding.Workers = envutil.Int("EMBEDDING_WORKERS", t.Embedding.Workers)
	t.Embedding.QueueSize = envutil.Int("EMBEDDING_QUEUE_SIZE", t.Embedding.QueueSize)

	t.Dedup.Policy = envutil.String("DEDUP_POLICY", t.Dedup.Policy)
}

func (t Tuning) Validate() error {
	switch {
	case t.Similarity.Threshold < -1 || t.Similarity.Threshold > 1:
		return fmt.Errorf("similarity.threshold must be in [-1, 1], got %v", t.Similarity.Threshold)
	case t.Similarity.TopK <= 0:
		return fmt.Errorf("similarity.top_k must be positive, got %d", t.Similarity.TopK)
	case t.Clustering.Threshold < 0 || t.Clustering.Threshold >= 1:
		return fmt.Errorf("clustering.threshold must be in [0, 1), got %v", t.Clustering.Threshold)
	case t.Clustering.Window <= 0:
		return fmt.Errorf("clustering.window must be positive, got %d", t.Clustering.Window)
	case t.Suggestions.Threshold < 0 || t.Suggestions.Threshold >= 1:
		return fmt.Errorf("suggestions.threshold must be in [0, 1), got %v", t.Suggestions.Threshold)
	case t.Suggestions.Window <= 0:
		return fmt.Errorf("suggestions.window must be positive, got %d", t.Suggestions.Window)
	}
	switch services.DedupPolicy(strings.ToLower(strings.TrimSpace(t.Dedup.Policy))) {
	case services.DedupReject, services.DedupFlag:
	default:
		return fmt.Errorf("dedup.policy must be %q or %q, got %q", services.DedupReject, services.DedupFlag, t.Dedup.Policy)
	}
	return nil
}

func (t Tuning) ClusterConfig() clustering.Config {
	return clustering.Config{
		Threshold:       t.Clustering.Threshold,
		Window:          t.Clustering.Window,
		MinLength:       t.Clustering.MinLength,
		LengthTolerance: t.Clustering.LengthTolerance,
	}
}

func (t Tuning) SuggestionConfig() clustering.Config {
	return clustering.Config{
		Threshold: t.Suggestions.Threshold,
		Window:    t.Suggestions.Window,
		MinLength: t.Clustering.MinLength,
	}
}

func (t Tuning) AssetServiceConfig() services.AssetServiceConfig {
	return services.AssetServiceConfig{
		Dedup:     services.ParseDedupPolicy(t.Dedup.Policy),
		Threshold: t.Similarity.Threshold,
		TopK:      t.Similarity.TopK,
		MaxPool:   t.Similarity.MaxPool,
	}
}

func splitList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
