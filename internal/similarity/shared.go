package similarity

import (
	"context"
	"errors"
	"image"
	"sync"
)

// Shared is a process-wide encoder that is built once, on first use or by Warm. A failed
// build is remembered and every later call reports the encoder as unavailable.
type Shared struct {
	name string
	load func(ctx context.Context) (Encoder, error)

	once sync.Once
	enc  Encoder
	err  error
}

func NewShared(name string, load func(ctx context.Context) (Encoder, error)) *Shared {
	return &Shared{name: name, load: load}
}

func (s *Shared) Name() string { return s.name }

// Warm forces initialization and returns the cached outcome.
func (s *Shared) Warm(ctx context.Context) error {
	_, err := s.get(ctx)
	return err
}

func (s *Shared) Encode(ctx context.Context, img *image.RGBA) ([]float32, error) {
	enc, err := s.get(ctx)
	if err != nil {
		return nil, newEmbeddingError(KindUnavailable, err)
	}
	return enc.Encode(ctx, img)
}

func (s *Shared) get(ctx context.Context) (Encoder, error) {
	s.once.Do(func() {
		if s.load == nil {
			s.err = errors.New("encoder loader missing")
			return
		}
		enc, err := s.load(ctx)
		if err == nil && enc == nil {
			err = errors.New("encoder loader returned nil")
		}
		s.enc, s.err = enc, err
	})
	return s.enc, s.err
}
