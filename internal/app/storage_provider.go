package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yungbote/promptgallery-backend/internal/platform/logger"
	"github.com/yungbote/promptgallery-backend/internal/platform/storage"
)

var newObjectStore = storage.New

type StorageBootstrapErrorCode string

const (
	StorageBootstrapInvalidMode         StorageBootstrapErrorCode = "invalid_mode"
	StorageBootstrapMissingBucket       StorageBootstrapErrorCode = "missing_bucket"
	StorageBootstrapMissingEmulatorHost StorageBootstrapErrorCode = "missing_emulator_host"
	StorageBootstrapConnectFailed       StorageBootstrapErrorCode = "connect_failed"
)

type StorageBootstrapError struct {
	Code  StorageBootstrapErrorCode
	Mode  storage.Mode
	Cause error
}

func (e *StorageBootstrapError) Error() string {
	if e == nil {
		return "object storage bootstrap failed"
	}
	return fmt.Sprintf("object storage bootstrap failed (code=%s mode=%q): %v", e.Code, e.Mode, e.Cause)
}

func (e *StorageBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// checkStorageConfig catches misconfiguration before any client is dialled.
func checkStorageConfig(cfg storage.Config) *StorageBootstrapError {
	fail := func(code StorageBootstrapErrorCode, format string, args ...any) *StorageBootstrapError {
		return &StorageBootstrapError{Code: code, Mode: cfg.Mode, Cause: fmt.Errorf(format, args...)}
	}
	switch cfg.Mode {
	case storage.ModeLocal, "":
		if strings.TrimSpace(cfg.LocalRoot) == "" {
			return fail(StorageBootstrapMissingBucket, "MEDIA_ROOT is empty")
		}
	case storage.ModeGCS:
		if cfg.GCSBucket == "" {
			return fail(StorageBootstrapMissingBucket, "GCS_BUCKET_NAME is empty")
		}
	case storage.ModeGCSEmulator:
		if cfg.GCSBucket == "" {
			return fail(StorageBootstrapMissingBucket, "GCS_BUCKET_NAME is empty")
		}
		if strings.TrimSpace(cfg.GCSEmulatorHost) == "" {
			return fail(StorageBootstrapMissingEmulatorHost, "mode %q requires STORAGE_EMULATOR_HOST", cfg.Mode)
		}
	case storage.ModeS3:
		if cfg.S3Bucket == "" {
			return fail(StorageBootstrapMissingBucket, "S3_BUCKET_NAME is empty")
		}
	default:
		return fail(StorageBootstrapInvalidMode, "unsupported object storage mode %q", cfg.Mode)
	}
	return nil
}

func resolveObjectStore(ctx context.Context, log *logger.Logger, cfg storage.Config) (storage.Store, error) {
	if err := checkStorageConfig(cfg); err != nil {
		log.Error("Object storage provider selection failed", "mode", cfg.Mode, "error_code", err.Code, "error", err)
		return nil, err
	}
	log.Info("Selecting object storage provider", "mode", cfg.Mode, "emulator_host", cfg.GCSEmulatorHost)

	st, err := newObjectStore(ctx, log, cfg)
	if err != nil {
		var bootstrapErr *StorageBootstrapError
		if !errors.As(err, &bootstrapErr) {
			bootstrapErr = &StorageBootstrapError{Code: StorageBootstrapConnectFailed, Mode: cfg.Mode, Cause: err}
		}
		log.Error("Object storage provider bootstrap failed", "mode", cfg.Mode, "error_code", bootstrapErr.Code, "error", err)
		return nil, bootstrapErr
	}
	return st, nil
}
