// Package codec moves payloads between base64 transport strings and files on disk.
package codec

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/disintegration/imaging"

	"compare/internal/domain"
)

// Decode parses standard base64, tolerating a data URI prefix and surrounding whitespace.
func Decode(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		if i := strings.Index(s, ","); i >= 0 {
			s = s[i+1:]
		}
	}
	if s == "" {
		return nil, domain.ErrInvalidBase64
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidBase64, err)
	}
	return b, nil
}

// Encode returns the standard base64 form of b.
func Encode(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// Materialize writes data to a new uniquely named file in dir (the system temp
// dir when empty). The returned cleanup removes the file and is safe to call
// more than once.
func Materialize(dir string, data []byte, suffix string) (string, func(), error) {
	f, err := os.CreateTemp(dir, "payload-*"+suffix)
	if err != nil {
		return "", func() {}, fmt.Errorf("create temp file: %w", err)
	}
	path := f.Name()

	var once sync.Once
	cleanup := func() {
		once.Do(func() { _ = os.Remove(path) })
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		cleanup()
		return "", func() {}, fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		cleanup()
		return "", func() {}, fmt.Errorf("sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", func() {}, fmt.Errorf("close temp file: %w", err)
	}
	return path, cleanup, nil
}

// CheckImage reports domain.ErrUnreadableImage when data is not a decodable raster.
func CheckImage(data []byte) error {
	if _, err := imaging.Decode(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrUnreadableImage, err)
	}
	return nil
}

// CheckImageFile is CheckImage for a file on disk.
func CheckImageFile(path string) error {
	if _, err := imaging.Open(path); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrUnreadableImage, err)
	}
	return nil
}
