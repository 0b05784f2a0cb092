package server

import (
	"context"
	"fmt"
	"net/http"

	"photowall/internal/api"
	"photowall/internal/auth"
)

// withAdmin rejects requests that do not carry the configured admin key.
func (s *Server) withAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !auth.VerifySecret(s.adminKey, r.Header.Get(api.AdminKeyHeader)) {
			s.writeErrorReq(w, r, http.StatusForbidden, forbidden(fmt.Errorf("invalid or missing admin key")))
			return
		}
		next(w, r)
	}
}

func (s *Server) handleAdminEnforce(w http.ResponseWriter, r *http.Request) {
	result, err := s.enforcer.Enforce(context.WithoutCancel(r.Context()))
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}

	resp := api.EnforceResponse{
		MaxPhotos:    result.MaxPhotos,
		Candidates:   result.Candidates,
		Evicted:      result.Evicted,
		AlreadyGone:  result.AlreadyGone,
		BlobFailures: result.BlobFailures,
		EvictedIDs:   result.EvictedIDs,
		DurationMS:   result.Duration.Milliseconds(),
	}
	if resp.EvictedIDs == nil {
		resp.EvictedIDs = []string{}
	}
	s.writeJSON(w, http.StatusOK, resp)
}
