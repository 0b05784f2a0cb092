package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"

	"github.com/h2non/filetype"
)

// sniffLen is the header length filetype needs to match every image matcher.
const sniffLen = 262

// UploadPolicy bounds what the upload pipeline accepts.
type UploadPolicy struct {
	MaxBytes           int64
	MultipartMaxMemory int64
	AllowedMediaTypes  []string
}

func (p UploadPolicy) allowed(mediaType string) bool {
	for _, allowed := range p.AllowedMediaTypes {
		if strings.EqualFold(allowed, mediaType) {
			return true
		}
	}
	return false
}

// UploadInput is one file presented to the upload pipeline.
type UploadInput struct {
	Reader       io.Reader
	Filename     string
	DeclaredType string
	// Size is the byte length when known, or -1.
	Size int64
}

// ValidatedUpload is an upload that passed validation. Reader replays the
// sniffed header.
type ValidatedUpload struct {
	Reader    io.Reader
	MediaType string
	Extension string
	Size      int64
}

// ValidateUpload checks size and sniffed content type before anything is
// stored. Errors are 400 api errors.
func ValidateUpload(policy UploadPolicy, in UploadInput) (ValidatedUpload, error) {
	var zero ValidatedUpload
	if in.Reader == nil {
		return zero, uploadRejected(fmt.Errorf("file is required"), ErrCodeMissingRequired)
	}
	if policy.MaxBytes <= 0 {
		return zero, internalError(fmt.Errorf("upload size limit is not configured"))
	}

	reader := in.Reader
	size := in.Size
	if size < 0 {
		buf, err := io.ReadAll(io.LimitReader(in.Reader, policy.MaxBytes+1))
		if err != nil {
			return zero, uploadRejected(fmt.Errorf("read upload: %w", err), ErrCodeInvalidUpload)
		}
		size = int64(len(buf))
		reader = bytes.NewReader(buf)
	}
	if size == 0 {
		return zero, uploadRejected(fmt.Errorf("file is empty"), ErrCodeInvalidUpload)
	}
	if size > policy.MaxBytes {
		return zero, uploadRejected(fmt.Errorf("file exceeds %d bytes", policy.MaxBytes), ErrCodeUploadSizeExceeded)
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(reader, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return zero, uploadRejected(fmt.Errorf("read upload: %w", err), ErrCodeInvalidUpload)
	}
	head = head[:n]

	kind, err := filetype.Match(head)
	if err != nil || kind == filetype.Unknown || !filetype.IsImage(head) {
		return zero, uploadRejected(fmt.Errorf("file is not a recognized image"), ErrCodeUnsupportedMedia)
	}
	if !policy.allowed(kind.MIME.Value) {
		return zero, uploadRejected(fmt.Errorf("media type %s is not allowed", kind.MIME.Value), ErrCodeUnsupportedMedia)
	}

	return ValidatedUpload{
		Reader:    io.MultiReader(bytes.NewReader(head), reader),
		MediaType: kind.MIME.Value,
		Extension: kind.Extension,
		Size:      size,
	}, nil
}

// declaredMediaType normalizes a client-declared content type, if any.
func declaredMediaType(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	parsed, _, err := mime.ParseMediaType(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed)
}
