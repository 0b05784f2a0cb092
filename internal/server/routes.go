package server

import (
	"net/http"
)

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Health check and metrics.
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", s.metrics.Handler())

	// Photos.
	mux.HandleFunc("GET /photos", s.handleListPhotos)
	mux.HandleFunc("GET /photos/{id}", s.handleGetPhoto)
	mux.HandleFunc("POST /upload", s.handleUpload)
	mux.HandleFunc("DELETE /photos/{id}", s.withAdmin(s.handleDeletePhoto))

	// Live updates.
	mux.HandleFunc("GET /events", s.handleEvents)

	// Admin.
	mux.HandleFunc("POST /admin/enforce", s.withAdmin(s.handleAdminEnforce))

	// Local blobs.
	mux.HandleFunc("GET /blobs/thumb/{key...}", s.handleBlob)
	mux.HandleFunc("GET /blobs/{key...}", s.handleBlob)

	return mux
}
