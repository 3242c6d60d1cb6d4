package similarity

import (
	"context"
	"image"
)

const (
	PixelModelName = "pixel-v1"

	pixelThumb    = 16
	pixelBins     = 4
	pixelHistGain = 4.0
)

// PixelDims is the length of a pixel encoder vector: a 16×16 RGB thumbnail followed by
// a 4×4×4 colour histogram.
const PixelDims = pixelThumb*pixelThumb*3 + pixelBins*pixelBins*pixelBins

// PixelEncoder is a deterministic pure-Go descriptor. It needs no model download and is
// used when no remote encoder is configured, and in tests.
type PixelEncoder struct{}

func NewPixelEncoder() *PixelEncoder { return &PixelEncoder{} }

func (PixelEncoder) Name() string { return PixelModelName }

func (PixelEncoder) Encode(ctx context.Context, img *image.RGBA) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if img == nil || img.Rect.Empty() {
		return make([]float32, PixelDims), nil
	}
	out := make([]float32, PixelDims)

	thumb := resize(img, pixelThumb, pixelThumb)
	var mean [3]float64
	n := float64(pixelThumb * pixelThumb)
	for i := 0; i < pixelThumb*pixelThumb; i++ {
		p := thumb.Pix[i*4 : i*4+3]
		for c := 0; c < 3; c++ {
			mean[c] += float64(p[c]) / 255
		}
	}
	for c := range mean {
		mean[c] /= n
	}
	for i := 0; i < pixelThumb*pixelThumb; i++ {
		p := thumb.Pix[i*4 : i*4+3]
		for c := 0; c < 3; c++ {
			out[i*3+c] = float32(float64(p[c])/255 - mean[c])
		}
	}

	// histogram over the full image, so colour content survives the thumbnail
	hist := out[pixelThumb*pixelThumb*3:]
	b := img.Rect
	total := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[(y-b.Min.Y)*img.Stride:]
		for x := 0; x < b.Dx(); x++ {
			r := int(row[x*4]) * pixelBins / 256
			g := int(row[x*4+1]) * pixelBins / 256
			bl := int(row[x*4+2]) * pixelBins / 256
			hist[(r*pixelBins+g)*pixelBins+bl]++
			total++
		}
	}
	if total > 0 {
		for i := range hist {
			hist[i] = float32(pixelHistGain * float64(hist[i]) / float64(total))
		}
	}
	return out, nil
}
