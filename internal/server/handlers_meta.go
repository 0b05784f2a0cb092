package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"time"

	"github.com/h2non/filetype"

	"photowall/internal/api"
	"photowall/internal/blobstore"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	count, err := s.catalog.Count(r.Context())
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.HealthResponse{
		Status:      "ok",
		Photos:      count,
		Subscribers: s.bus.Len(),
	})
}

// handleBlob serves stored bytes. Thumbnail URLs resolve to the original.
func (s *Server) handleBlob(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	rc, err := s.blobs.Open(r.Context(), key)
	if err != nil {
		if !errors.Is(err, blobstore.ErrNotFound) {
			err = fmt.Errorf("open blob %q: %w", key, err)
		}
		s.writeErrorReq(w, r, http.StatusNotFound, makeAPIError(http.StatusNotFound, "not_found", ErrCodeBlobNotFound, "Blob not found", err))
		return
	}
	defer rc.Close()

	contentType := "application/octet-stream"
	if ext := path.Ext(key); len(ext) > 1 {
		if t := filetype.GetType(ext[1:]); t != filetype.Unknown {
			contentType = t.MIME.Value
		}
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.Header().Set("X-Content-Type-Options", "nosniff")

	if seeker, ok := rc.(io.ReadSeeker); ok {
		http.ServeContent(w, r, "", time.Time{}, seeker)
		return
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		s.log().Debug("copy blob", "key", key, "error", err)
	}
}
