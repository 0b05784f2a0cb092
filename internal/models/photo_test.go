package models

import (
	"testing"
	"time"
)

func TestPhotoNewer(t *testing.T) {
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("later timestamp wins", func(t *testing.T) {
		a := Photo{ID: "a", CreatedAt: base.Add(time.Second)}
		b := Photo{ID: "b", CreatedAt: base}
		if !a.Newer(b) {
			t.Fatal("expected later photo to be newer")
		}
		if b.Newer(a) {
			t.Fatal("expected earlier photo not to be newer")
		}
	})

	t.Run("ties break on id", func(t *testing.T) {
		a := Photo{ID: "0002", CreatedAt: base}
		b := Photo{ID: "0001", CreatedAt: base}
		if !a.Newer(b) {
			t.Fatal("expected higher id to be newer on equal timestamps")
		}
		if b.Newer(a) {
			t.Fatal("expected lower id not to be newer on equal timestamps")
		}
	})

	t.Run("irreflexive", func(t *testing.T) {
		a := Photo{ID: "x", CreatedAt: base}
		if a.Newer(a) {
			t.Fatal("a photo must not be newer than itself")
		}
	})
}
