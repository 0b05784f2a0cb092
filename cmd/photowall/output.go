package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"photowall/internal/api"
	"photowall/internal/format"
)

var (
	outputFormatter format.Formatter = format.JSONFormatter{}
	stdout          io.Writer        = os.Stdout
)

func writeJSON(payload any) error {
	return outputFormatter.Write(stdout, payload)
}

func writePlain(format string, args ...any) error {
	_, err := fmt.Fprintf(stdout, format, args...)
	return err
}

func writePhotoList(photos []api.PhotoResponse) error {
	if len(photos) == 0 {
		return writePlain("No photos.\n")
	}
	for _, photo := range photos {
		if err := writePlain("%s\n", formatPhotoLine(photo)); err != nil {
			return err
		}
	}
	return nil
}

func writePhotoDetail(photo api.PhotoResponse) error {
	return writePlain("id: %s\nurl: %s\nthumbnail_url: %s\ncreated_at: %s\n",
		photo.ID, photo.URL, photo.ThumbnailURL, formatTime(photo.CreatedAt))
}

func formatPhotoLine(photo api.PhotoResponse) string {
	return fmt.Sprintf("%s  %s  %s", formatTime(photo.CreatedAt), photo.ID, photo.URL)
}

func formatEventLine(ev api.Event) string {
	switch {
	case ev.Photo != nil:
		return fmt.Sprintf("%s %s %s", formatTime(ev.At), ev.Kind, formatPhotoLine(*ev.Photo))
	case ev.ID != "" && ev.Reason != "":
		return fmt.Sprintf("%s %s %s (%s)", formatTime(ev.At), ev.Kind, ev.ID, ev.Reason)
	case ev.ID != "":
		return fmt.Sprintf("%s %s %s", formatTime(ev.At), ev.Kind, ev.ID)
	default:
		return fmt.Sprintf("%s %s", formatTime(ev.At), ev.Kind)
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
