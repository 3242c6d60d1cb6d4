package similarity

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"time"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// FrameSource decodes the first frame of a video container.
type FrameSource interface {
	FirstFrame(ctx context.Context, src MediaSource) (image.Image, error)
}

type ExtractorConfig struct {
	Timeout time.Duration
}

// Extractor implements Embedder: decode, normalize to RGBA, encode, L2-normalize.
type Extractor struct {
	enc     Encoder
	frames  FrameSource
	timeout time.Duration
}

// NewExtractor wires an encoder and an optional video frame source. Without a frame
// source every video input fails as undecodable.
func NewExtractor(enc Encoder, frames FrameSource, cfg ExtractorConfig) *Extractor {
	return &Extractor{enc: enc, frames: frames, timeout: cfg.Timeout}
}

func (e *Extractor) Model() string {
	if e == nil || e.enc == nil {
		return ""
	}
	return e.enc.Name()
}

func (e *Extractor) Embed(ctx context.Context, src MediaSource) ([]float32, error) {
	if e == nil || e.enc == nil {
		return nil, newEmbeddingError(KindUnavailable, errors.New("no encoder configured"))
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	img, err := e.decode(ctx, src)
	if err != nil {
		return nil, e.classify(ctx, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, e.classify(ctx, err)
	}

	vec, err := e.enc.Encode(ctx, toRGBA(img))
	if err != nil {
		var ee *EmbeddingError
		if errors.As(err, &ee) {
			return nil, ee
		}
		if ctx.Err() != nil {
			return nil, e.classify(ctx, err)
		}
		return nil, newEmbeddingError(KindUnavailable, err)
	}
	if Normalize(vec) == 0 {
		return nil, newEmbeddingError(KindZeroVector, nil)
	}
	return vec, nil
}

func (e *Extractor) decode(ctx context.Context, src MediaSource) (image.Image, error) {
	if src.IsVideo() {
		if e.frames == nil {
			return nil, newEmbeddingError(KindUndecodable, fmt.Errorf("no video decoder for %q", src.Name()))
		}
		img, err := e.frames.FirstFrame(ctx, src)
		if err != nil {
			var ee *EmbeddingError
			if errors.As(err, &ee) {
				return nil, ee
			}
			return nil, newEmbeddingError(KindUndecodable, err)
		}
		return img, nil
	}

	rc, err := src.Open()
	if err != nil {
		return nil, newEmbeddingError(KindUnreadable, err)
	}
	defer rc.Close()
	img, _, err := image.Decode(rc)
	if err != nil {
		return nil, newEmbeddingError(KindUndecodable, err)
	}
	return img, nil
}

// classify maps a deadline hit to a timeout regardless of where it surfaced.
func (e *Extractor) classify(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return newEmbeddingError(KindTimeout, err)
	}
	var ee *EmbeddingError
	if errors.As(err, &ee) {
		return ee
	}
	return newEmbeddingError(KindUnreadable, err)
}
