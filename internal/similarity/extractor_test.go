package similarity

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"sync/atomic"
	"testing"
	"time"
)

func pngBytes(t *testing.T, w, h int, fill func(x, y int) color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, fill(x, y))
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	return buf.Bytes()
}

func gradient(x, y int) color.RGBA {
	return color.RGBA{R: uint8(x * 4), G: uint8(y * 4), B: 128, A: 255}
}

func checker(x, y int) color.RGBA {
	if (x/8+y/8)%2 == 0 {
		return color.RGBA{R: 250, G: 20, B: 20, A: 255}
	}
	return color.RGBA{R: 10, G: 10, B: 240, A: 255}
}

func TestExtractorUnitNorm(t *testing.T) {
	ex := NewExtractor(NewPixelEncoder(), nil, ExtractorConfig{Timeout: 5 * time.Second})
	if ex.Model() != PixelModelName {
		t.Fatalf("Model: got=%q", ex.Model())
	}
	vec, err := ex.Embed(context.Background(), FromBytes("a.png", pngBytes(t, 64, 48, gradient)))
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != PixelDims {
		t.Fatalf("Embed: dims got=%d want=%d", len(vec), PixelDims)
	}
	if n := Norm(vec); math.Abs(n-1) > 1e-5 {
		t.Fatalf("Embed: norm got=%v want=1", n)
	}
}

func TestExtractorSimilarImagesScoreHigher(t *testing.T) {
	ex := NewExtractor(NewPixelEncoder(), nil, ExtractorConfig{})
	ctx := context.Background()

	a, err := ex.Embed(ctx, FromBytes("a.png", pngBytes(t, 64, 64, gradient)))
	if err != nil {
		t.Fatalf("Embed(a): %v", err)
	}
	// same picture, different size
	b, err := ex.Embed(ctx, FromBytes("b.png", pngBytes(t, 32, 32, func(x, y int) color.RGBA { return gradient(x*2, y*2) })))
	if err != nil {
		t.Fatalf("Embed(b): %v", err)
	}
	c, err := ex.Embed(ctx, FromBytes("c.png", pngBytes(t, 64, 64, checker)))
	if err != nil {
		t.Fatalf("Embed(c): %v", err)
	}
	same, diff := Cosine(a, b), Cosine(a, c)
	if !(same > diff) {
		t.Fatalf("expected resized copy to be closer: same=%v diff=%v", same, diff)
	}
	if same < 0.9 {
		t.Fatalf("resized copy similarity too low: %v", same)
	}
}

func TestExtractorFailures(t *testing.T) {
	ctx := context.Background()
	ex := NewExtractor(NewPixelEncoder(), nil, ExtractorConfig{})

	_, err := ex.Embed(ctx, FromPath("/definitely/not/here.png"))
	if KindOf(err) != KindUnreadable {
		t.Fatalf("missing file: got kind=%q err=%v", KindOf(err), err)
	}
	_, err = ex.Embed(ctx, FromBytes("junk.png", []byte("not an image")))
	if KindOf(err) != KindUndecodable {
		t.Fatalf("corrupt image: got kind=%q err=%v", KindOf(err), err)
	}
	_, err = ex.Embed(ctx, FromBytes("clip.mp4", []byte{0, 0, 0}))
	if KindOf(err) != KindUndecodable {
		t.Fatalf("video without decoder: got kind=%q err=%v", KindOf(err), err)
	}

	zero := NewExtractor(encoderFunc(func(ctx context.Context, img *image.RGBA) ([]float32, error) {
		return make([]float32, 8), nil
	}), nil, ExtractorConfig{})
	_, err = zero.Embed(ctx, FromBytes("a.png", pngBytes(t, 4, 4, gradient)))
	if KindOf(err) != KindZeroVector {
		t.Fatalf("zero vector: got kind=%q err=%v", KindOf(err), err)
	}

	slow := NewExtractor(encoderFunc(func(ctx context.Context, img *image.RGBA) ([]float32, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}), nil, ExtractorConfig{Timeout: 20 * time.Millisecond})
	_, err = slow.Embed(ctx, FromBytes("a.png", pngBytes(t, 4, 4, gradient)))
	if KindOf(err) != KindTimeout {
		t.Fatalf("timeout: got kind=%q err=%v", KindOf(err), err)
	}
}

type fakeFrames struct{ img image.Image }

func (f fakeFrames) FirstFrame(ctx context.Context, src MediaSource) (image.Image, error) {
	if f.img == nil {
		return nil, errors.New("no frame")
	}
	return f.img, nil
}

func TestExtractorVideoUsesFirstFrame(t *testing.T) {
	frame := image.NewNRGBA(image.Rect(10, 10, 42, 42))
	for y := 10; y < 42; y++ {
		for x := 10; x < 42; x++ {
			frame.Set(x, y, checker(x, y))
		}
	}
	ex := NewExtractor(NewPixelEncoder(), fakeFrames{img: frame}, ExtractorConfig{})
	vec, err := ex.Embed(context.Background(), FromBytes("clip.MOV", []byte("container")))
	if err != nil {
		t.Fatalf("Embed(video): %v", err)
	}
	if math.Abs(Norm(vec)-1) > 1e-5 {
		t.Fatalf("Embed(video): not normalized")
	}

	bad := NewExtractor(NewPixelEncoder(), fakeFrames{}, ExtractorConfig{})
	if _, err := bad.Embed(context.Background(), FromPath("/tmp/x.webm")); KindOf(err) != KindUndecodable {
		t.Fatalf("Embed(bad video): got kind=%q", KindOf(err))
	}
}

func TestSharedLoadsOnce(t *testing.T) {
	var loads int32
	s := NewShared("pixel-v1", func(ctx context.Context) (Encoder, error) {
		atomic.AddInt32(&loads, 1)
		return NewPixelEncoder(), nil
	})
	ex := NewExtractor(s, nil, ExtractorConfig{})
	img := pngBytes(t, 8, 8, gradient)
	for i := 0; i < 3; i++ {
		if _, err := ex.Embed(context.Background(), FromBytes("a.png", img)); err != nil {
			t.Fatalf("Embed: %v", err)
		}
	}
	if loads != 1 {
		t.Fatalf("loader called %d times", loads)
	}

	failing := NewShared("broken", func(ctx context.Context) (Encoder, error) {
		atomic.AddInt32(&loads, 1)
		return nil, errors.New("weights missing")
	})
	if err := failing.Warm(context.Background()); err == nil {
		t.Fatalf("Warm: expected failure")
	}
	ex = NewExtractor(failing, nil, ExtractorConfig{})
	_, err := ex.Embed(context.Background(), FromBytes("a.png", img))
	if KindOf(err) != KindUnavailable {
		t.Fatalf("failed load: got kind=%q", KindOf(err))
	}
	if loads != 2 {
		t.Fatalf("failed loader must not be retried, loads=%d", loads)
	}
}

type encoderFunc func(ctx context.Context, img *image.RGBA) ([]float32, error)

func (f encoderFunc) Name() string { return "func" }
func (f encoderFunc) Encode(ctx context.Context, img *image.RGBA) ([]float32, error) {
	return f(ctx, img)
}

func TestMediaSourceVideoSniffing(t *testing.T) {
	cases := map[string]bool{
		"a.mp4": true, "b.MOV": true, "c.webm": true, "d.png": false, "e": false, "f.jpeg": false,
	}
	for name, want := range cases {
		if got := FromBytes(name, nil).IsVideo(); got != want {
			t.Fatalf("IsVideo(%q): got=%v want=%v", name, got, want)
		}
	}
	if !FromPath("/x/y/z.mkv").IsVideo() {
		t.Fatalf("IsVideo(path): expected true")
	}
}
