package server

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"sort"

	"photowall/internal/api"
	"photowall/internal/models"
)

// multipartOverhead is the body allowance for boundaries and part headers.
const multipartOverhead = 1 << 20

func (s *Server) handleListPhotos(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	photos, err := s.photos.List(r.Context(), limit)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	resp := make([]api.PhotoResponse, 0, len(photos))
	for _, photo := range photos {
		resp = append(resp, toPhotoResponse(photo))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetPhoto(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathIDOrNotFound(w, r)
	if !ok {
		return
	}

	photo, err := s.photos.Get(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toPhotoResponse(photo))
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.uploads.MaxBytes+multipartOverhead)
	if err := r.ParseMultipartForm(s.uploads.MultipartMaxMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.writeServiceError(w, r, uploadRejected(fmt.Errorf("file exceeds %d bytes", s.uploads.MaxBytes), ErrCodeUploadSizeExceeded))
			return
		}
		s.writeServiceError(w, r, uploadRejected(fmt.Errorf("invalid multipart form: %w", err), ErrCodeInvalidMultipart))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	header := uploadedFile(r.MultipartForm)
	if header == nil {
		s.writeServiceError(w, r, uploadRejected(fmt.Errorf("no file uploaded"), ErrCodeMissingRequired))
		return
	}

	file, err := header.Open()
	if err != nil {
		s.writeServiceError(w, r, uploadRejected(fmt.Errorf("open uploaded file: %w", err), ErrCodeInvalidUpload))
		return
	}
	defer file.Close()

	// Uploads run to completion even if the client goes away.
	photo, err := s.photos.Upload(context.WithoutCancel(r.Context()), UploadInput{
		Reader:       file,
		Filename:     header.Filename,
		DeclaredType: header.Header.Get("Content-Type"),
		Size:         header.Size,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, api.UploadResponse{
		Message: "Photo uploaded",
		Photo:   toPhotoResponse(photo),
	})
}

func (s *Server) handleDeletePhoto(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathIDOrNotFound(w, r)
	if !ok {
		return
	}

	if _, err := s.photos.Delete(context.WithoutCancel(r.Context()), id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.DeleteResponse{Message: "Photo deleted", ID: id})
}

// uploadedFile returns the file under api.UploadField, or the first file of
// any other field.
func uploadedFile(form *multipart.Form) *multipart.FileHeader {
	if form == nil {
		return nil
	}
	if files := form.File[api.UploadField]; len(files) > 0 {
		return files[0]
	}
	fields := make([]string, 0, len(form.File))
	for field := range form.File {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		if files := form.File[field]; len(files) > 0 {
			return files[0]
		}
	}
	return nil
}

func toPhotoResponse(photo models.Photo) api.PhotoResponse {
	return api.PhotoResponse{
		ID:           photo.ID,
		URL:          photo.URL,
		ThumbnailURL: photo.ThumbnailURL,
		CreatedAt:    photo.CreatedAt,
	}
}
