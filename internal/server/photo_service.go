package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"photowall/internal/blobstore"
	"photowall/internal/catalog"
	"photowall/internal/events"
	"photowall/internal/models"
)

// Publisher delivers live update events.
type Publisher interface {
	Publish(ev events.Event)
}

// Trigger requests a capacity enforcement run without waiting for it.
type Trigger interface {
	Trigger()
}

// PhotoService orchestrates the upload and deletion pipelines across the
// blob store, the catalog and the live update bus.
type PhotoService struct {
	catalog  catalog.Catalog
	blobs    blobstore.BlobStore
	bus      Publisher
	enforcer Trigger
	policy   UploadPolicy
	metrics  *Metrics
	logger   *slog.Logger

	now   func() time.Time
	newID func() (string, error)
}

// NewPhotoService constructs a PhotoService.
func NewPhotoService(cat catalog.Catalog, blobs blobstore.BlobStore, bus Publisher, enforcer Trigger, policy UploadPolicy, metrics *Metrics, logger *slog.Logger) *PhotoService {
	if logger == nil {
		logger = slog.Default()
	}
	return &PhotoService{
		catalog:  cat,
		blobs:    blobs,
		bus:      bus,
		enforcer: enforcer,
		policy:   policy,
		metrics:  metrics,
		logger:   logger.With("component", "photos"),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    catalog.NewPhotoID,
	}
}

// Upload validates, stores and catalogs one image, then triggers capacity
// enforcement and publishes photo_uploaded.
func (s *PhotoService) Upload(ctx context.Context, in UploadInput) (models.Photo, error) {
	var zero models.Photo
	if s == nil || s.catalog == nil || s.blobs == nil {
		return zero, internalError(fmt.Errorf("photo service is not configured"))
	}

	upload, err := ValidateUpload(s.policy, in)
	if err != nil {
		s.metrics.upload("invalid")
		return zero, err
	}
	if declared := declaredMediaType(in.DeclaredType); declared != "" && declared != upload.MediaType {
		s.logger.Debug("declared media type differs from content", "declared", declared, "sniffed", upload.MediaType, "filename", in.Filename)
	}

	id, err := s.newID()
	if err != nil {
		s.metrics.upload("error")
		return zero, internalError(fmt.Errorf("generate photo id: %w", err))
	}

	key := "photos/" + id + "." + upload.Extension
	put, err := s.blobs.Put(ctx, key, upload.MediaType, upload.Reader)
	if err != nil {
		s.metrics.upload("storage_failed")
		return zero, storageWriteFailed(fmt.Errorf("store %s: %w", key, err))
	}

	photo := models.Photo{
		ID:           id,
		ExternalID:   put.ExternalID,
		URL:          put.URL,
		ThumbnailURL: s.blobs.ThumbnailURL(put.ExternalID),
		CreatedAt:    s.now().UTC().Truncate(time.Microsecond),
	}

	if err := s.catalog.Insert(ctx, &photo); err != nil {
		s.compensate(ctx, photo.ExternalID, err)
		s.metrics.upload("catalog_failed")
		return zero, catalogWriteFailed(fmt.Errorf("insert photo %s: %w", id, err))
	}

	if s.enforcer != nil {
		s.enforcer.Trigger()
	}
	if s.bus != nil {
		s.bus.Publish(events.PhotoUploaded(photo))
	}
	s.metrics.upload("ok")
	s.logger.Info("photo uploaded", "id", photo.ID, "external_id", photo.ExternalID, "media_type", upload.MediaType, "size_bytes", put.SizeBytes)
	return photo, nil
}

// compensate removes the blob written for an upload whose catalog insert failed.
func (s *PhotoService) compensate(ctx context.Context, externalID string, cause error) {
	res := blobstore.DeleteBestEffort(ctx, s.blobs, externalID)
	if res.OK() {
		s.logger.Warn("catalog insert failed; removed stored blob", "external_id", externalID, "error", cause)
		return
	}
	s.metrics.blobDeleteFailed("compensation")
	s.logger.Warn("catalog insert failed; stored blob left behind",
		"external_id", externalID, "error", cause, "delete_error", res.Err)
}

// Delete removes one photo: lookup, best-effort blob delete, row delete,
// then photo_deleted.
func (s *PhotoService) Delete(ctx context.Context, id string) (models.Photo, error) {
	var zero models.Photo
	if s == nil || s.catalog == nil || s.blobs == nil {
		return zero, internalError(fmt.Errorf("photo service is not configured"))
	}

	photo, err := s.catalog.Get(ctx, id)
	if errors.Is(err, catalog.ErrNotFound) {
		s.metrics.delete("not_found")
		return zero, notFoundCode(fmt.Errorf("photo %s not found", id), ErrCodePhotoNotFound)
	}
	if err != nil {
		s.metrics.delete("error")
		return zero, storeFailure(fmt.Errorf("get photo %s: %w", id, err))
	}

	if res := blobstore.DeleteBestEffort(ctx, s.blobs, photo.ExternalID); !res.OK() {
		s.metrics.blobDeleteFailed("deletion")
		s.logger.Warn("blob delete failed", "id", id, "external_id", photo.ExternalID, "error", res.Err)
	}

	if err := s.catalog.DeleteByID(ctx, id); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			s.metrics.delete("not_found")
			return zero, notFoundCode(fmt.Errorf("photo %s not found", id), ErrCodePhotoNotFound)
		}
		s.metrics.delete("error")
		return zero, storeFailure(fmt.Errorf("delete photo %s: %w", id, err))
	}

	if s.bus != nil {
		s.bus.Publish(events.PhotoDeleted(id, events.ReasonDeleted))
	}
	s.metrics.delete("ok")
	s.logger.Info("photo deleted", "id", id, "external_id", photo.ExternalID)
	return *photo, nil
}

// Get returns one photo.
func (s *PhotoService) Get(ctx context.Context, id string) (models.Photo, error) {
	photo, err := s.catalog.Get(ctx, id)
	if errors.Is(err, catalog.ErrNotFound) {
		return models.Photo{}, notFoundCode(fmt.Errorf("photo %s not found", id), ErrCodePhotoNotFound)
	}
	if err != nil {
		return models.Photo{}, storeFailure(err)
	}
	return *photo, nil
}

// List returns up to limit photos, newest first.
func (s *PhotoService) List(ctx context.Context, limit int) ([]models.Photo, error) {
	photos, err := s.catalog.ListNewest(ctx, limit)
	if err != nil {
		return nil, storeFailure(err)
	}
	return photos, nil
}
