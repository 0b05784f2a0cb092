package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"photowall/internal/api"
	"photowall/internal/events"
)

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	rc := http.NewResponseController(w)
	// The stream outlives the server write timeout.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		s.log().Debug("clear write deadline", "error", err)
	}

	sub := s.bus.Subscribe()
	defer sub.Close()

	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		s.log().Warn("event stream flush unsupported", "error", err)
		return
	}

	log := s.log().With("component", "sse", "remote_addr", r.RemoteAddr)
	log.Debug("subscriber connected", "subscribers", s.bus.Len())
	defer log.Debug("subscriber disconnected")

	keepalive := time.NewTicker(s.keepalive)
	defer keepalive.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.closing:
			return
		case <-sub.Done():
			return
		case <-keepalive.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		case ev := <-sub.Events():
			if err := writeEventFrame(w, ev); err != nil {
				log.Debug("write event frame", "kind", ev.Kind, "error", err)
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

func writeEventFrame(w http.ResponseWriter, ev events.Event) error {
	data, err := json.Marshal(toAPIEvent(ev))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, data)
	return err
}

func toAPIEvent(ev events.Event) api.Event {
	out := api.Event{
		Kind:   string(ev.Kind),
		ID:     ev.ID,
		Reason: ev.Reason,
		At:     ev.At,
	}
	if ev.Photo != nil {
		photo := toPhotoResponse(*ev.Photo)
		out.Photo = &photo
	}
	return out
}
