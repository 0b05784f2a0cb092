package api

import "time"

// AdminKeyHeader carries the shared admin secret.
const AdminKeyHeader = "X-Admin-Key"

// PhotoResponse is the public view of one photo.
type PhotoResponse struct {
	ID           string    `json:"id"`
	URL          string    `json:"url"`
	ThumbnailURL string    `json:"thumbnailUrl"`
	CreatedAt    time.Time `json:"createdAt"`
}

// UploadResponse is returned by POST /upload.
type UploadResponse struct {
	Message string        `json:"message"`
	Photo   PhotoResponse `json:"photo"`
}

// DeleteResponse is returned by DELETE /photos/{id}.
type DeleteResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

// EnforceResponse reports one capacity enforcement run.
type EnforceResponse struct {
	MaxPhotos    int      `json:"max_photos"`
	Candidates   int      `json:"candidates"`
	Evicted      int      `json:"evicted"`
	AlreadyGone  int      `json:"already_gone"`
	BlobFailures int      `json:"blob_failures"`
	EvictedIDs   []string `json:"evicted_ids"`
	DurationMS   int64    `json:"duration_ms"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status      string `json:"status"`
	Photos      int    `json:"photos"`
	Subscribers int    `json:"subscribers"`
}

// Event is one frame on the /events stream.
type Event struct {
	Kind   string         `json:"kind"`
	Photo  *PhotoResponse `json:"photo,omitempty"`
	ID     string         `json:"id,omitempty"`
	Reason string         `json:"reason,omitempty"`
	At     time.Time      `json:"at"`
}

// ErrorResponse is the JSON payload of every failed request.
type ErrorResponse struct {
	Message   string `json:"message"`
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	ErrorCode int    `json:"error_code,omitempty"`
}
