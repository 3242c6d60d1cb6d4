package app

import (
	"context"
	"errors"
	"testing"

	"github.com/yungbote/promptgallery-backend/internal/platform/logger"
	"github.com/yungbote/promptgallery-backend/internal/platform/storage"
)

func TestCheckStorageConfig(t *testing.T) {
	cases := []struct {
		name string
		cfg  storage.Config
		want StorageBootstrapErrorCode
	}{
		{"local ok", storage.Config{Mode: storage.ModeLocal, LocalRoot: "media"}, ""},
		{"bad mode", storage.Config{Mode: "ftp"}, StorageBootstrapInvalidMode},
		{"gcs no bucket", storage.Config{Mode: storage.ModeGCS}, StorageBootstrapMissingBucket},
		{"emulator no host", storage.Config{Mode: storage.ModeGCSEmulator, GCSBucket: "b"}, StorageBootstrapMissingEmulatorHost},
		{"s3 no bucket", storage.Config{Mode: storage.ModeS3, S3Region: "us-east-1"}, StorageBootstrapMissingBucket},
		{"s3 ok", storage.Config{Mode: storage.ModeS3, S3Bucket: "b"}, ""},
	}
	for _, tc := range cases {
		err := checkStorageConfig(tc.cfg)
		switch {
		case tc.want == "" && err != nil:
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		case tc.want != "" && (err == nil || err.Code != tc.want):
			t.Fatalf("%s: want=%q got=%v", tc.name, tc.want, err)
		}
	}
}

func TestResolveObjectStoreClassifiesConnectFailure(t *testing.T) {
	orig := newObjectStore
	t.Cleanup(func() { newObjectStore = orig })
	newObjectStore = func(ctx context.Context, log *logger.Logger, cfg storage.Config) (storage.Store, error) {
		return nil, errors.New("dial tcp: refused")
	}

	_, err := resolveObjectStore(context.Background(), logger.NewNop(), storage.Config{Mode: storage.ModeGCS, GCSBucket: "b"})
	var got *StorageBootstrapError
	if !errors.As(err, &got) || got.Code != StorageBootstrapConnectFailed || got.Mode != storage.ModeGCS {
		t.Fatalf("resolveObjectStore: got=%v", err)
	}
}

func TestResolveObjectStoreLocal(t *testing.T) {
	st, err := resolveObjectStore(context.Background(), logger.NewNop(), storage.Config{Mode: storage.ModeLocal, LocalRoot: t.TempDir()})
	if err != nil || st == nil || st.Mode() != storage.ModeLocal {
		t.Fatalf("resolveObjectStore(local): got=%v err=%v", st, err)
	}
}
