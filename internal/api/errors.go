package api

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError is a failed photowall request as decoded from its JSON payload.
type APIError struct {
	Status    int
	Code      string
	ErrorCode int
	Message   string
}

func (e *APIError) Error() string {
	switch {
	case e == nil:
		return ""
	case e.Code != "" && e.Message != "":
		return e.Code + ": " + e.Message
	case e.Message != "":
		return e.Message
	case e.Status > 0:
		return fmt.Sprintf("photowall api: HTTP %d", e.Status)
	}
	return "photowall api error"
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	return hasStatus(err, http.StatusNotFound)
}

// IsForbidden reports whether err is a rejected admin key.
func IsForbidden(err error) bool {
	return hasStatus(err, http.StatusForbidden)
}

// ServerFault reports whether err is a 5xx from the API.
func ServerFault(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status >= http.StatusInternalServerError
}

func hasStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}
