package storage

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
)

// BlobStore persists raw bytes under a name and returns a stable retrieval
// URL. Implementations own the bytes once Save returns.
type BlobStore interface {
	Save(ctx context.Context, name string, data []byte) (string, error)
}

// DiskStore writes blobs beneath a local media root and serves them from a
// base URL, the same layout the media directory of the upstream system
// uses. It performs no content validation; callers decide which store a
// payload belongs in.
type DiskStore struct {
	root    string
	baseURL string
	prefix  string
}

// NewDiskStore constructs a DiskStore rooted at root, publishing URLs under
// baseURL/media/prefix/.
func NewDiskStore(root, baseURL, prefix string) *DiskStore {
	return &DiskStore{root: root, baseURL: baseURL, prefix: prefix}
}

// Save writes the blob and returns its retrieval URL.
func (s *DiskStore) Save(_ context.Context, name string, data []byte) (string, error) {
	dir := filepath.Join(s.root, s.prefix)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("media store: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("media store: %w", err)
	}

	u, err := url.JoinPath(s.baseURL, "media", s.prefix, name)
	if err != nil {
		return "", fmt.Errorf("media store: %w", err)
	}
	return u, nil
}
