package similarity

import (
	"context"
	"image"

	"golang.org/x/image/draw"
)

// Encoder turns a decoded RGBA image into a raw feature vector. Implementations must be
// safe for concurrent use.
type Encoder interface {
	Name() string
	Encode(ctx context.Context, img *image.RGBA) ([]float32, error)
}

// Embedder is the contract the rest of the application depends on.
type Embedder interface {
	Embed(ctx context.Context, src MediaSource) ([]float32, error)
	Model() string
}

// toRGBA copies any decoded image into a zero-origin RGBA buffer, which fixes channel
// order and colour model for every encoder.
func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}

// resize scales src to w×h with bilinear filtering.
func resize(src *image.RGBA, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

// fitWithin downsizes src so its longest side is at most max, keeping aspect ratio.
func fitWithin(src *image.RGBA, max int) *image.RGBA {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	if max <= 0 || (w <= max && h <= max) {
		return src
	}
	if w >= h {
		nh := h * max / w
		if nh < 1 {
			nh = 1
		}
		return resize(src, max, nh)
	}
	nw := w * max / h
	if nw < 1 {
		nw = 1
	}
	return resize(src, nw, max)
}
