package blobstore

import (
	"context"
	"time"
)

const bestEffortDeleteTimeout = 15 * time.Second

// Deleter is the subset of BlobStore needed for deletes.
type Deleter interface {
	Delete(ctx context.Context, externalID string) error
}

// DeleteResult reports one best-effort delete. Callers may ignore it; the
// pipelines log failures and continue.
type DeleteResult struct {
	ExternalID string
	Err        error
}

// OK reports whether the object was removed (or was already absent).
func (r DeleteResult) OK() bool {
	return r.Err == nil
}

// DeleteBestEffort attempts a single delete of externalID. The attempt is
// detached from ctx cancellation so an abandoned request still cleans up,
// and it is never retried.
func DeleteBestEffort(ctx context.Context, store Deleter, externalID string) DeleteResult {
	result := DeleteResult{ExternalID: externalID}
	if store == nil {
		return result
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), bestEffortDeleteTimeout)
	defer cancel()
	result.Err = store.Delete(ctx, externalID)
	return result
}
