package events

import (
	"time"

	"photowall/internal/models"
)

// Kind names an event frame.
type Kind string

const (
	KindConnected     Kind = "connected"
	KindPhotoUploaded Kind = "photo_uploaded"
	KindPhotoDeleted  Kind = "photo_deleted"
)

// Removal reasons carried by photo_deleted events.
const (
	ReasonDeleted = "deleted"
	ReasonEvicted = "evicted"
)

// Event is one notification delivered to subscribers.
type Event struct {
	Kind   Kind          `json:"kind"`
	Photo  *models.Photo `json:"photo,omitempty"`
	ID     string        `json:"id,omitempty"`
	Reason string        `json:"reason,omitempty"`
	At     time.Time     `json:"at"`
	Origin string        `json:"origin,omitempty"`
}

// PhotoUploaded builds the event published after a successful upload.
func PhotoUploaded(photo models.Photo) Event {
	return Event{Kind: KindPhotoUploaded, Photo: &photo, ID: photo.ID}
}

// PhotoDeleted builds the event published after a row is removed.
func PhotoDeleted(id, reason string) Event {
	return Event{Kind: KindPhotoDeleted, ID: id, Reason: reason}
}
