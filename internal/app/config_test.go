package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/yungbote/promptgallery-backend/internal/platform/logger"
	"github.com/yungbote/promptgallery-backend/internal/services"
)

func TestDefaultTuningValidates(t *testing.T) {
	tn := DefaultTuning()
	if err := tn.Validate(); err != nil {
		t.Fatalf("DefaultTuning: err=%v", err)
	}
	if tn.Similarity.Threshold != 0.45 || tn.Similarity.TopK != 50 {
		t.Fatalf("similarity defaults: got=%+v", tn.Similarity)
	}
	if tn.Clustering.Threshold != 0.85 || tn.Clustering.Window != 200 {
		t.Fatalf("clustering defaults: got=%+v", tn.Clustering)
	}
	if tn.AssetServiceConfig().Dedup != services.DedupReject {
		t.Fatalf("dedup default: got=%q", tn.Dedup.Policy)
	}
}

func TestTuningLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	raw := []byte(`
similarity:
  threshold: 0.6
  top_k: 10
clustering:
  window: 50
embedding:
  timeout: 5s
dedup:
  policy: flag
`)
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("SIMILARITY_TOP_K", "7")

	tn := DefaultTuning()
	if err := tn.LoadFile(path); err != nil {
		t.Fatalf("LoadFile: err=%v", err)
	}
	tn.ApplyEnv()

	if tn.Similarity.Threshold != 0.6 {
		t.Fatalf("threshold: got=%v", tn.Similarity.Threshold)
	}
	if tn.Similarity.TopK != 7 {
		t.Fatalf("env override top_k: got=%v", tn.Similarity.TopK)
	}
	if tn.Clustering.Window != 50 || tn.Clustering.MinLength != 5 {
		t.Fatalf("clustering: got=%+v", tn.Clustering)
	}
	if tn.Embedding.Timeout != 5*time.Second {
		t.Fatalf("timeout: got=%v", tn.Embedding.Timeout)
	}
	if tn.AssetServiceConfig().Dedup != services.DedupFlag {
		t.Fatalf("dedup: got=%q", tn.Dedup.Policy)
	}
}

func TestTuningValidateRejects(t *testing.T) {
	cases := map[string]func(*Tuning){
		"similarity threshold": func(tn *Tuning) { tn.Similarity.Threshold = 1.5 },
		"top_k":                func(tn *Tuning) { tn.Similarity.TopK = 0 },
		"cluster threshold":    func(tn *Tuning) { tn.Clustering.Threshold = 1 },
		"cluster window":       func(tn *Tuning) { tn.Clustering.Window = -1 },
		"suggestion window":    func(tn *Tuning) { tn.Suggestions.Window = 0 },
		"dedup":                func(tn *Tuning) { tn.Dedup.Policy = "merge" },
	}
	for name, mutate := range cases {
		tn := DefaultTuning()
		mutate(&tn)
		if err := tn.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestLoadConfigEncoderSelection(t *testing.T) {
	t.Setenv("TUNING_FILE", "")
	t.Setenv("EMBEDDING_ENCODER", "")
	t.Setenv("CLIP_BASE_URL", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.test, ,http://b.test")
	t.Setenv("MAX_UPLOAD_MB", "8")

	cfg, err := LoadConfig(logger.NewNop())
	if err != nil {
		t.Fatalf("LoadConfig: err=%v", err)
	}
	if cfg.Encoder != EncoderPixel {
		t.Fatalf("encoder: got=%q", cfg.Encoder)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "http://b.test" {
		t.Fatalf("cors: got=%v", cfg.CORSOrigins)
	}
	if cfg.MaxUploadBytes != 8<<20 {
		t.Fatalf("max upload: got=%d", cfg.MaxUploadBytes)
	}

	t.Setenv("EMBEDDING_ENCODER", "sift")
	if _, err := LoadConfig(logger.NewNop()); err == nil {
		t.Fatalf("LoadConfig: expected error for unknown encoder")
	}
}
