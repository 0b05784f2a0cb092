package blobstore

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned by Open when no object exists for a key.
var ErrNotFound = errors.New("blob not found")

// PutResult describes one persisted object.
type PutResult struct {
	ExternalID string
	URL        string
	SHA256     string
	SizeBytes  int64
}

// BlobStore is the object-storage abstraction used by the photo pipelines.
type BlobStore interface {
	Put(ctx context.Context, key, contentType string, r io.Reader) (PutResult, error)
	Open(ctx context.Context, externalID string) (io.ReadCloser, error)
	Delete(ctx context.Context, externalID string) error
	// ThumbnailURL derives the thumbnail URL for an object using the
	// store's URL-transformation convention.
	ThumbnailURL(externalID string) string
}
