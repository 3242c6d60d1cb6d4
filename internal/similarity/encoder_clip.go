package similarity

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
)

// clipInputSide bounds the upload size; the model resizes to 224 internally anyway.
const clipInputSide = 448

// ImageEmbeddingClient is a remote multimodal encoder taking an image data URL.
type ImageEmbeddingClient interface {
	EmbedImage(ctx context.Context, dataURL string) ([]float32, error)
	Model() string
}

type ClipEncoder struct {
	client ImageEmbeddingClient
}

func NewClipEncoder(client ImageEmbeddingClient) *ClipEncoder {
	return &ClipEncoder{client: client}
}

func (c *ClipEncoder) Name() string {
	if c == nil || c.client == nil {
		return ""
	}
	return c.client.Model()
}

func (c *ClipEncoder) Encode(ctx context.Context, img *image.RGBA) ([]float32, error) {
	if c == nil || c.client == nil {
		return nil, newEmbeddingError(KindUnavailable, fmt.Errorf("clip client not configured"))
	}
	dataURL, err := pngDataURL(fitWithin(img, clipInputSide))
	if err != nil {
		return nil, newEmbeddingError(KindUndecodable, err)
	}
	return c.client.EmbedImage(ctx, dataURL)
}

func pngDataURL(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
