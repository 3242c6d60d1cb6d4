package similarity

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindUnreadable  ErrorKind = "unreadable"
	KindUndecodable ErrorKind = "undecodable"
	KindUnavailable ErrorKind = "unavailable"
	KindZeroVector  ErrorKind = "zero_vector"
	KindTimeout     ErrorKind = "timeout"
)

// EmbeddingError is the only error type Embed returns.
type EmbeddingError struct {
	Kind ErrorKind
	Err  error
}

func (e *EmbeddingError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err == nil {
		return "embedding " + string(e.Kind)
	}
	return fmt.Sprintf("embedding %s: %v", e.Kind, e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

func newEmbeddingError(kind ErrorKind, err error) *EmbeddingError {
	return &EmbeddingError{Kind: kind, Err: err}
}

// KindOf returns the kind of an embedding failure, or "" for other errors.
func KindOf(err error) ErrorKind {
	var ee *EmbeddingError
	if errors.As(err, &ee) {
		return ee.Kind
	}
	return ""
}
