package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

const (
	// BlobRoutePrefix is the HTTP path under which the server exposes local objects.
	BlobRoutePrefix = "/blobs/"
	// ThumbnailRoutePrefix is the HTTP path used for derived thumbnail URLs.
	ThumbnailRoutePrefix = "/blobs/thumb/"
)

// LocalStore keeps objects in a directory tree and derives URLs from a public base URL.
// It performs no image transformation: thumbnail URLs resolve to the original bytes.
type LocalStore struct {
	root      string
	publicURL string
}

// NewLocalStore creates a local store rooted at root.
func NewLocalStore(root, publicURL string) (*LocalStore, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("blob root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(abs, "tmp"), 0o755); err != nil {
		return nil, err
	}
	return &LocalStore{root: abs, publicURL: strings.TrimRight(strings.TrimSpace(publicURL), "/")}, nil
}

// Put streams r to a temp file and renames it into place under key.
// Existing objects are never overwritten.
func (s *LocalStore) Put(ctx context.Context, key, contentType string, r io.Reader) (PutResult, error) {
	var zero PutResult
	if s == nil {
		return zero, fmt.Errorf("blob store is not configured")
	}
	if r == nil {
		return zero, fmt.Errorf("reader is required")
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	dst, err := s.pathFromKey(key)
	if err != nil {
		return zero, err
	}

	tmp, err := os.CreateTemp(filepath.Join(s.root, "tmp"), "put-*")
	if err != nil {
		return zero, err
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(tmp, h), r)
	if err != nil {
		cleanup()
		return zero, err
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return zero, err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return zero, err
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		_ = os.Remove(tmpPath)
		return zero, err
	}
	if _, err := os.Stat(dst); err == nil {
		_ = os.Remove(tmpPath)
		return zero, fmt.Errorf("blob %q already exists", key)
	} else if !errors.Is(err, os.ErrNotExist) {
		_ = os.Remove(tmpPath)
		return zero, err
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		_ = os.Remove(tmpPath)
		return zero, err
	}

	externalID := cleanKey(key)
	return PutResult{
		ExternalID: externalID,
		URL:        s.URL(externalID),
		SHA256:     hex.EncodeToString(h.Sum(nil)),
		SizeBytes:  n,
	}, nil
}

// Open returns a reader for the object.
func (s *LocalStore) Open(ctx context.Context, externalID string) (io.ReadCloser, error) {
	if s == nil {
		return nil, fmt.Errorf("blob store is not configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.pathFromKey(externalID)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return f, err
}

// Delete removes an object. Missing objects are ignored.
func (s *LocalStore) Delete(ctx context.Context, externalID string) error {
	if s == nil {
		return fmt.Errorf("blob store is not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.pathFromKey(externalID)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// URL returns the canonical retrieval URL for an object.
func (s *LocalStore) URL(externalID string) string {
	return s.publicURL + BlobRoutePrefix + escapeKey(externalID)
}

// ThumbnailURL returns the derived thumbnail URL for an object.
func (s *LocalStore) ThumbnailURL(externalID string) string {
	return s.publicURL + ThumbnailRoutePrefix + escapeKey(externalID)
}

func (s *LocalStore) pathFromKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("blob key is required")
	}
	if strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("blob key must be relative")
	}
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid blob key")
	}
	if clean == "tmp" || strings.HasPrefix(clean, "tmp"+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid blob key")
	}
	return filepath.Join(s.root, clean), nil
}

func cleanKey(key string) string {
	return path.Clean(strings.TrimSpace(key))
}

func escapeKey(key string) string {
	parts := strings.Split(cleanKey(key), "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}
