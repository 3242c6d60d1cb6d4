package storage

import (
	"context"
	"errors"
	"io"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/yungbote/promptgallery-backend/internal/platform/logger"
)

func TestLocalStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	st, err := New(ctx, logger.NewNop(), Config{Mode: ModeLocal, LocalRoot: t.TempDir()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	key := "prompts/2024/5/1/abc.png"
	if err := st.Put(ctx, key, strings.NewReader("pixels"), "image/png"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	rc, err := st.Open(ctx, key)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	got, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(got) != "pixels" {
		t.Fatalf("Open: got=%q", got)
	}
	if err := st.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := st.Open(ctx, key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Open(after delete): got=%v want ErrNotFound", err)
	}
	if err := st.Delete(ctx, key); err != nil {
		t.Fatalf("Delete(missing): %v", err)
	}
	if err := st.Put(ctx, "../escape.png", strings.NewReader("x"), ""); err == nil {
		t.Fatalf("Put: expected traversal key to be rejected")
	}
}

func TestNewKey(t *testing.T) {
	now := time.Date(2024, 3, 7, 10, 0, 0, 0, time.UTC)
	k := NewKey(false, "PNG", now)
	if ok, _ := regexp.MatchString(`^prompts/2024/3/7/[0-9a-f]{32}\.png$`, k); !ok {
		t.Fatalf("NewKey: unexpected %q", k)
	}
	if k2 := NewKey(false, ".png", now); k2 == k {
		t.Fatalf("NewKey: keys must be unique")
	}
	if r := NewKey(true, ".jpg", now); !strings.HasPrefix(r, "references/2024/3/7/") {
		t.Fatalf("NewKey(reference): unexpected %q", r)
	}
}

func TestNewRejectsUnknownMode(t *testing.T) {
	if _, err := New(context.Background(), logger.NewNop(), Config{Mode: "ftp"}); err == nil {
		t.Fatalf("New: expected error for unknown mode")
	}
	if _, err := New(context.Background(), logger.NewNop(), Config{Mode: ModeS3}); err == nil {
		t.Fatalf("New(s3): expected error without bucket")
	}
}
