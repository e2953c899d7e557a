// Package storage implements the blob store for uploaded images.
package storage

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	chaterrors "chat-relay/errors"
)

// PublicPrefix is the URL path under which stored images are served.
const PublicPrefix = "/uploads/"

// DiskBlobStore writes uploaded images to a local directory and hands out
// their public URL path. Content type is sniffed from the bytes, never
// trusted from the client.
type DiskBlobStore struct {
	dir string
	log *slog.Logger
}

func NewDiskBlobStore(dir string, log *slog.Logger) (*DiskBlobStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("upload directory %s: %w", dir, err)
	}
	return &DiskBlobStore{dir: dir, log: log}, nil
}

// StoreImage persists the payload under a random name and returns its
// public URL path. Non-image payloads are refused.
func (s *DiskBlobStore) StoreImage(data []byte, originalExt string) (string, error) {
	mime := mimetype.Detect(data)
	if !strings.HasPrefix(mime.String(), "image/") {
		s.log.Warn("Rejected upload", "detected", mime.String())
		return "", chaterrors.ErrUnsupportedImage
	}

	ext := mime.Extension()
	if ext == "" {
		ext = normalizeExt(originalExt)
	}

	name := uuid.NewString() + ext
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing image %s: %w", path, err)
	}

	s.log.Debug("Stored image", "path", path, "mime", mime.String(), "bytes", len(data))
	return PublicPrefix + name, nil
}

// Dir returns the directory backing the store, for the static file server.
func (s *DiskBlobStore) Dir() string { return s.dir }

func normalizeExt(ext string) string {
	if ext == "" {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return strings.ToLower(ext)
}
