package catalog

import (
	"strings"

	"github.com/google/uuid"
)

// NewPhotoID returns a fresh time-ordered photo id (UUIDv7).
func NewPhotoID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// ValidPhotoID reports whether raw is a canonical photo id.
func ValidPhotoID(raw string) bool {
	raw = strings.TrimSpace(raw)
	if len(raw) != 36 {
		return false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return false
	}
	return id.String() == raw
}
