package services

import (
	"context"
	"image"

	"github.com/yungbote/promptgallery-backend/internal/platform/localmedia"
	"github.com/yungbote/promptgallery-backend/internal/similarity"
)

type frameSource struct {
	tools localmedia.Tools
}

// NewFrameSource adapts the ffmpeg tools to the extractor's video decoder.
func NewFrameSource(tools localmedia.Tools) similarity.FrameSource {
	if tools == nil {
		return nil
	}
	return &frameSource{tools: tools}
}

func (f *frameSource) FirstFrame(ctx context.Context, src similarity.MediaSource) (image.Image, error) {
	if src.IsPath() {
		return f.tools.FirstFrame(ctx, src.Path())
	}
	return f.tools.FirstFrameBytes(ctx, src.Bytes(), src.Ext())
}
