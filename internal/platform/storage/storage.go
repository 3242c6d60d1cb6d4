package storage

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/yungbote/promptgallery-backend/internal/platform/envutil"
	"github.com/yungbote/promptgallery-backend/internal/platform/logger"
)

type Mode string

const (
	ModeLocal       Mode = "local"
	ModeGCS         Mode = "gcs"
	ModeGCSEmulator Mode = "gcs_emulator"
	ModeS3          Mode = "s3"
)

// ErrNotFound is returned by Open when the key does not exist.
var ErrNotFound = errors.New("storage: object not found")

// Store persists asset bytes under opaque keys. The gallery never manages physical
// layout beyond choosing the key.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Mode() Mode
}

type Config struct {
	Mode Mode

	LocalRoot string

	GCSBucket       string
	GCSEmulatorHost string

	S3Bucket   string
	S3Region   string
	S3Endpoint string
	S3KeyID    string
	S3Secret   string
}

func ConfigFromEnv() Config {
	return Config{
		Mode:            Mode(strings.ToLower(envutil.String("OBJECT_STORAGE_MODE", string(ModeLocal)))),
		LocalRoot:       envutil.String("MEDIA_ROOT", "media"),
		GCSBucket:       envutil.String("GCS_BUCKET_NAME", ""),
		GCSEmulatorHost: envutil.String("STORAGE_EMULATOR_HOST", ""),
		S3Bucket:        envutil.String("S3_BUCKET_NAME", ""),
		S3Region:        envutil.String("AWS_REGION", "us-east-1"),
		S3Endpoint:      envutil.String("S3_ENDPOINT", ""),
		S3KeyID:         envutil.String("AWS_ACCESS_KEY_ID", ""),
		S3Secret:        envutil.String("AWS_SECRET_ACCESS_KEY", ""),
	}
}

func New(ctx context.Context, log *logger.Logger, cfg Config) (Store, error) {
	slog := log.With("service", "ObjectStorage", "mode", cfg.Mode)
	var (
		st  Store
		err error
	)
	switch cfg.Mode {
	case ModeLocal, "":
		st, err = NewLocal(cfg.LocalRoot)
	case ModeGCS, ModeGCSEmulator:
		st, err = NewGCS(ctx, cfg)
	case ModeS3:
		st, err = NewS3(cfg)
	default:
		return nil, fmt.Errorf("invalid OBJECT_STORAGE_MODE=%q (allowed: %q, %q, %q, %q)", cfg.Mode, ModeLocal, ModeGCS, ModeGCSEmulator, ModeS3)
	}
	if err != nil {
		return nil, err
	}
	slog.Info("Object storage initialized")
	return st, nil
}

// NewKey builds "<prefix>/YYYY/M/D/<random hex><ext>", the layout uploads have always
// used. Reference images live under "references", everything else under "prompts".
func NewKey(reference bool, ext string, now time.Time) string {
	prefix := "prompts"
	if reference {
		prefix = "references"
	}
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	var b [16]byte
	_, _ = rand.Read(b[:])
	return path.Join(
		prefix,
		fmt.Sprintf("%d/%d/%d", now.Year(), int(now.Month()), now.Day()),
		hex.EncodeToString(b[:])+ext,
	)
}

func ContentTypeForKey(key string) string {
	s := strings.ToLower(strings.TrimSpace(key))
	switch {
	case strings.HasSuffix(s, ".png"):
		return "image/png"
	case strings.HasSuffix(s, ".jpg"), strings.HasSuffix(s, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(s, ".webp"):
		return "image/webp"
	case strings.HasSuffix(s, ".gif"):
		return "image/gif"
	case strings.HasSuffix(s, ".bmp"):
		return "image/bmp"
	case strings.HasSuffix(s, ".mp4"), strings.HasSuffix(s, ".m4v"):
		return "video/mp4"
	case strings.HasSuffix(s, ".webm"):
		return "video/webm"
	case strings.HasSuffix(s, ".mov"):
		return "video/quicktime"
	case strings.HasSuffix(s, ".mkv"):
		return "video/x-matroska"
	default:
		return "application/octet-stream"
	}
}

type readCloserWithCancel struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (r *readCloserWithCancel) Close() error {
	err := r.ReadCloser.Close()
	if r.cancel != nil {
		r.cancel()
	}
	return err
}
