package localmedia

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/yungbote/promptgallery-backend/internal/platform/ctxutil"
	"github.com/yungbote/promptgallery-backend/internal/platform/logger"
)

// Tools wraps the ffmpeg binary. Video inputs are only ever read for their first frame.
//
// REQUIRED BINARY in the runtime image: ffmpeg.
type Tools interface {
	AssertReady(ctx context.Context) error

	// FirstFrame decodes the first video frame of videoPath as an RGB(A) image.
	FirstFrame(ctx context.Context, videoPath string) (image.Image, error)
	FirstFrameBytes(ctx context.Context, data []byte, suffix string) (image.Image, error)

	WriteTempFile(ctx context.Context, data []byte, suffix string) (string, func(), error)
}

type Config struct {
	FFmpegPath string
	WorkRoot   string
	Timeout    time.Duration
}

type tools struct {
	log *logger.Logger

	ffmpegPath string
	workRoot   string

	defaultTimeout time.Duration
}

func New(log *logger.Logger, cfg Config) Tools {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.WorkRoot == "" {
		cfg.WorkRoot = filepath.Join(os.TempDir(), "promptgallery-media")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &tools{
		log:            log.With("service", "MediaTools"),
		ffmpegPath:     cfg.FFmpegPath,
		workRoot:       cfg.WorkRoot,
		defaultTimeout: cfg.Timeout,
	}
}

func (m *tools) AssertReady(ctx context.Context) error {
	if _, err := exec.LookPath(m.ffmpegPath); err != nil {
		return fmt.Errorf("missing required binary %q in PATH: %w", m.ffmpegPath, err)
	}
	if err := os.MkdirAll(m.workRoot, 0o755); err != nil {
		return fmt.Errorf("create workRoot: %w", err)
	}
	return nil
}

func (m *tools) WriteTempFile(ctx context.Context, data []byte, suffix string) (string, func(), error) {
	if err := os.MkdirAll(m.workRoot, 0o755); err != nil {
		return "", func() {}, fmt.Errorf("mkdir workRoot: %w", err)
	}
	h := sha256.Sum256(data)
	base := hex.EncodeToString(h[:])[:16]
	if suffix != "" && !strings.HasPrefix(suffix, ".") {
		suffix = "." + suffix
	}
	f, err := os.CreateTemp(m.workRoot, base+"-*"+suffix)
	if err != nil {
		return "", func() {}, fmt.Errorf("create temp file: %w", err)
	}
	path := f.Name()
	cleanup := func() { _ = os.Remove(path) }
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		cleanup()
		return "", func() {}, fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", func() {}, fmt.Errorf("close temp file: %w", err)
	}
	return path, cleanup, nil
}

func (m *tools) FirstFrame(ctx context.Context, videoPath string) (image.Image, error) {
	ctx = ctxutil.Default(ctx)
	if videoPath == "" {
		return nil, fmt.Errorf("videoPath required")
	}
	if _, err := exec.LookPath(m.ffmpegPath); err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, m.defaultTimeout)
	defer cancel()

	// ffmpeg converts whatever pixel format the decoder produced (often YUV or BGR) to
	// RGB before PNG encoding.
	cmd := exec.CommandContext(ctx, m.ffmpegPath,
		"-v", "error",
		"-i", videoPath,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "png",
		"-",
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("ffmpeg first frame: %w", ctx.Err())
		}
		return nil, fmt.Errorf("ffmpeg first frame failed: %w; out=%s", err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("no frame produced by ffmpeg; out=%s", strings.TrimSpace(stderr.String()))
	}
	img, err := png.Decode(&stdout)
	if err != nil {
		return nil, fmt.Errorf("decode ffmpeg frame: %w", err)
	}
	return img, nil
}

func (m *tools) FirstFrameBytes(ctx context.Context, data []byte, suffix string) (image.Image, error) {
	path, cleanup, err := m.WriteTempFile(ctx, data, suffix)
	if err != nil {
		return nil, err
	}
	defer cleanup()
	return m.FirstFrame(ctx, path)
}
