package similarity

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

const hashChunkSize = 64 * 1024

// HashReader streams r through MD5 in fixed-size chunks and returns the lowercase hex digest.
func HashReader(r io.Reader) (string, error) {
	if r == nil {
		return "", fmt.Errorf("hash: nil reader")
	}
	h := md5.New()
	buf := make([]byte, hashChunkSize)
	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return "", fmt.Errorf("hash: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashSeeker hashes the whole content of rs from offset 0 and leaves the read position
// where it was, so the caller can keep using the same stream.
func HashSeeker(rs io.ReadSeeker) (string, error) {
	if rs == nil {
		return "", fmt.Errorf("hash: nil reader")
	}
	pos, err := rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return "", fmt.Errorf("hash: seek: %w", err)
	}
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("hash: seek: %w", err)
	}
	sum, hashErr := HashReader(rs)
	if _, err := rs.Seek(pos, io.SeekStart); err != nil && hashErr == nil {
		hashErr = fmt.Errorf("hash: restore offset: %w", err)
	}
	if hashErr != nil {
		return "", hashErr
	}
	return sum, nil
}

func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("hash: %w", err)
	}
	defer f.Close()
	return HashReader(f)
}

func HashBytes(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}
