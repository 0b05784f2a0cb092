package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"photowall/internal/api"
	"photowall/internal/catalog"
)

func (s *Server) writeErrorReq(w http.ResponseWriter, r *http.Request, status int, err error) {
	if err == nil {
		err = errors.New(http.StatusText(status))
	}

	code := errorCode(status, err)
	numericCode := errorNumericCode(status, err)
	detail := err.Error()

	fields := []any{"status", status, "code", code, "error_code", numericCode, "error", err}
	if r != nil {
		fields = append(fields, "method", r.Method, "path", r.URL.Path, "remote_addr", r.RemoteAddr)
	}

	switch {
	case status >= 500:
		s.log().Error("request error", fields...)
		detail = internalDetail(numericCode)
	case status >= 400 && shouldWarnClientError(status):
		s.log().Warn("request rejected", fields...)
	case status >= 400:
		s.log().Debug("request rejected", fields...)
	}

	s.writeJSON(w, status, api.ErrorResponse{
		Message:   errorMessage(status, err),
		Error:     detail,
		Code:      code,
		ErrorCode: numericCode,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("write json response", "status", status, "error", err)
	}
}

type apiError struct {
	status  int
	code    string
	errCode int
	message string
	err     error
}

func (e apiError) Error() string {
	if e.err == nil {
		return ""
	}
	return e.err.Error()
}

func (e apiError) Unwrap() error {
	return e.err
}

func makeAPIError(status int, code string, errCode int, message string, err error) error {
	if err == nil {
		err = errors.New(http.StatusText(status))
	}

	var existing apiError
	if errors.As(err, &existing) {
		if existing.status != 0 {
			return existing
		}
	}

	return apiError{status: status, code: code, errCode: errCode, message: message, err: err}
}

func badRequestCode(err error, code int) error {
	return makeAPIError(http.StatusBadRequest, "invalid_argument", code, "Invalid request", err)
}

func uploadRejected(err error, code int) error {
	return makeAPIError(http.StatusBadRequest, "invalid_argument", code, "Upload rejected", err)
}

func notFoundCode(err error, code int) error {
	return makeAPIError(http.StatusNotFound, "not_found", code, "Photo not found", err)
}

func forbidden(err error) error {
	return makeAPIError(http.StatusForbidden, "forbidden", ErrCodeForbidden, "Forbidden", err)
}

func internalError(err error) error {
	return makeAPIError(http.StatusInternalServerError, "internal", ErrCodeInternal, "Internal error", err)
}

func storeFailure(err error) error {
	return makeAPIError(http.StatusInternalServerError, "internal", ErrCodeStoreFailure, "Catalog unavailable", err)
}

func storageWriteFailed(err error) error {
	return makeAPIError(http.StatusInternalServerError, "storage_write_failed", ErrCodeStorageWriteFailed, "Upload failed", err)
}

func catalogWriteFailed(err error) error {
	return makeAPIError(http.StatusInternalServerError, "catalog_write_failed", ErrCodeCatalogWriteFailed, "Upload failed", err)
}

func httpStatusFromError(err error) int {
	var apiErr apiError
	if errors.As(err, &apiErr) {
		return apiErr.status
	}
	return http.StatusInternalServerError
}

func errorCode(status int, err error) string {
	var apiErr apiError
	if errors.As(err, &apiErr) && apiErr.code != "" {
		return apiErr.code
	}
	switch status {
	case http.StatusBadRequest:
		return "invalid_argument"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusInternalServerError:
		return "internal"
	default:
		return ""
	}
}

func errorNumericCode(status int, err error) int {
	var apiErr apiError
	if errors.As(err, &apiErr) && apiErr.errCode > 0 {
		return apiErr.errCode
	}
	return defaultErrorCodeByStatus(status)
}

func errorMessage(status int, err error) string {
	var apiErr apiError
	if errors.As(err, &apiErr) && apiErr.message != "" {
		return apiErr.message
	}
	return http.StatusText(status)
}

// internalDetail replaces server-side error text with a fixed summary.
func internalDetail(errCode int) string {
	switch errCode {
	case ErrCodeStorageWriteFailed:
		return "storage write failed"
	case ErrCodeCatalogWriteFailed:
		return "catalog write failed"
	case ErrCodeStoreFailure:
		return "catalog operation failed"
	default:
		return "internal error"
	}
}

func shouldWarnClientError(status int) bool {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests:
		return true
	default:
		return false
	}
}

func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	s.writeErrorReq(w, r, httpStatusFromError(err), err)
}

func (s *Server) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	s.writeErrorReq(w, r, http.StatusInternalServerError, storeFailure(err))
}

// requirePhotoID reads {id}. Malformed ids cannot exist in the catalog and
// are reported as not found.
func requirePhotoID(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.PathValue("id"))
	if !catalog.ValidPhotoID(id) {
		return "", notFoundCode(fmt.Errorf("photo %q not found", id), ErrCodePhotoNotFound)
	}
	return id, nil
}

func (s *Server) pathIDOrNotFound(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := requirePhotoID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return "", false
	}
	return id, true
}

// queryLimit parses ?limit. Missing means the default; anything that is not a
// positive integer is rejected; large values are clamped.
func queryLimit(r *http.Request) (int, error) {
	value := strings.TrimSpace(r.URL.Query().Get("limit"))
	if value == "" {
		return catalog.DefaultListLimit, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, badRequestCode(fmt.Errorf("invalid limit"), ErrCodeInvalidQuery)
	}
	if parsed <= 0 {
		return 0, badRequestCode(fmt.Errorf("limit must be > 0"), ErrCodeInvalidQuery)
	}
	return catalog.ClampLimit(parsed), nil
}
