package similarity

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
)

type sourceKind int

const (
	sourcePath sourceKind = iota + 1
	sourceBytes
)

var videoExts = map[string]bool{
	".mp4":  true,
	".mov":  true,
	".webm": true,
	".mkv":  true,
	".avi":  true,
	".m4v":  true,
}

// MediaSource is either a file on disk or an in-memory upload. The zero value is empty
// and fails every read.
type MediaSource struct {
	kind sourceKind
	path string
	name string
	data []byte
}

func FromPath(path string) MediaSource {
	return MediaSource{kind: sourcePath, path: path, name: filepath.Base(path)}
}

// FromBytes wraps uploaded content. name is only used for extension sniffing.
func FromBytes(name string, data []byte) MediaSource {
	return MediaSource{kind: sourceBytes, name: name, data: data}
}

func (m MediaSource) IsPath() bool  { return m.kind == sourcePath }
func (m MediaSource) Path() string  { return m.path }
func (m MediaSource) Name() string  { return m.name }
func (m MediaSource) Bytes() []byte { return m.data }

func (m MediaSource) Ext() string {
	return strings.ToLower(filepath.Ext(m.name))
}

func (m MediaSource) IsVideo() bool {
	return IsVideoName(m.name)
}

// IsVideoName reports whether name carries a known video container extension.
func IsVideoName(name string) bool {
	return videoExts[strings.ToLower(filepath.Ext(name))]
}

// Open returns a reader over the content. Callers close it.
func (m MediaSource) Open() (io.ReadCloser, error) {
	switch m.kind {
	case sourcePath:
		return os.Open(m.path)
	case sourceBytes:
		return io.NopCloser(bytes.NewReader(m.data)), nil
	default:
		return nil, os.ErrInvalid
	}
}
