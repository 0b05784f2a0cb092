package server

import (
	"net/http"
	"time"
)

// quietPaths are polled by probes and scrapers and are neither logged nor
// counted.
var quietPaths = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

// eventStreamRoute must match the pattern registered in routes.go.
const eventStreamRoute = "GET /events"

// statusRecorder captures the status and body size of a response.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (w *statusRecorder) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusRecorder) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.bytes += int64(n)
	return n, err
}

func (w *statusRecorder) code() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

// Flush keeps SSE frames moving through the wrapper.
func (w *statusRecorder) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Unwrap lets http.ResponseController reach the connection for deadlines.
func (w *statusRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (s *Server) withRequestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if quietPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)

		// r.Pattern is only populated once the mux has matched.
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		status := rec.code()
		s.metrics.observeRequest(r.Method, route, status, elapsed)

		logger := s.log().With(
			"method", r.Method,
			"route", route,
			"path", r.URL.Path,
			"status", status,
			"bytes", rec.bytes,
			"duration_ms", elapsed.Milliseconds(),
		)
		switch {
		case status >= http.StatusInternalServerError:
			logger.Error("request failed", "remote_addr", r.RemoteAddr)
		case route == eventStreamRoute:
			logger.Info("event stream closed", "remote_addr", r.RemoteAddr)
		default:
			logger.Debug("request complete")
		}
	})
}
