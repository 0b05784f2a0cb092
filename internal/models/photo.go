package models

import "time"

// Photo is one catalog row describing an image held in the blob store.
// Rows are immutable once created.
type Photo struct {
	ID           string    `json:"id"`
	ExternalID   string    `json:"externalId"`
	URL          string    `json:"url"`
	ThumbnailURL string    `json:"thumbnailUrl"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Newer reports whether p sorts before other in the catalog's total order
// (created_at DESC, id DESC).
func (p Photo) Newer(other Photo) bool {
	if !p.CreatedAt.Equal(other.CreatedAt) {
		return p.CreatedAt.After(other.CreatedAt)
	}
	return p.ID > other.ID
}
