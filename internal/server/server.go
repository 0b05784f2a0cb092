package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"photowall/internal/blobstore"
	"photowall/internal/catalog"
	"photowall/internal/events"
)

const (
	readHeaderTimeout = 5 * time.Second
	readTimeout       = 60 * time.Second
	writeTimeout      = 60 * time.Second
	idleTimeout       = 60 * time.Second
	shutdownTimeout   = 15 * time.Second

	defaultKeepalive = 25 * time.Second
)

// Options wires a Server to its collaborators.
type Options struct {
	Addr      string
	Catalog   catalog.Catalog
	Blobs     blobstore.BlobStore
	Bus       *events.Bus
	MaxPhotos int
	// AdminKey is the shared secret for destructive routes, plain or bcrypt.
	// Empty denies every admin request.
	AdminKey      string
	Uploads       UploadPolicy
	SweepSchedule string
	Keepalive     time.Duration
	Logger        *slog.Logger
}

// Server wraps HTTP handlers for the photowall API.
type Server struct {
	addr      string
	catalog   catalog.Catalog
	blobs     blobstore.BlobStore
	bus       *events.Bus
	photos    *PhotoService
	enforcer  *CapacityEnforcer
	metrics   *Metrics
	logger    *slog.Logger
	adminKey  string
	uploads   UploadPolicy
	keepalive time.Duration

	closing   chan struct{}
	closeOnce sync.Once
}

// New creates a server. Call Start (or Run) to launch background work.
func New(opts Options) (*Server, error) {
	if opts.Catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	if opts.Blobs == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if opts.MaxPhotos <= 0 {
		return nil, fmt.Errorf("max photos must be > 0")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	bus := opts.Bus
	if bus == nil {
		bus = events.NewBus(events.Options{Logger: logger.With("component", "events")})
	}
	keepalive := opts.Keepalive
	if keepalive <= 0 {
		keepalive = defaultKeepalive
	}

	metrics := NewMetrics(Gauges{
		Photos:          opts.Catalog.Count,
		Subscribers:     bus.Len,
		EventsDropped:   bus.Dropped,
		EventsDelivered: bus.Delivered,
	})
	enforcer := NewCapacityEnforcer(opts.Catalog, opts.Blobs, bus, opts.MaxPhotos, opts.SweepSchedule, metrics, logger)

	return &Server{
		addr:      opts.Addr,
		catalog:   opts.Catalog,
		blobs:     opts.Blobs,
		bus:       bus,
		photos:    NewPhotoService(opts.Catalog, opts.Blobs, bus, enforcer, opts.Uploads, metrics, logger),
		enforcer:  enforcer,
		metrics:   metrics,
		logger:    logger,
		adminKey:  opts.AdminKey,
		uploads:   opts.Uploads,
		keepalive: keepalive,
		closing:   make(chan struct{}),
	}, nil
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.withRequestLogging(s.routes())
}

// Bus returns the live update bus.
func (s *Server) Bus() *events.Bus {
	return s.bus
}

// Enforcer returns the capacity enforcer.
func (s *Server) Enforcer() *CapacityEnforcer {
	return s.enforcer
}

// Start launches the eviction worker and periodic sweep.
func (s *Server) Start(ctx context.Context) error {
	return s.enforcer.Start(ctx)
}

// Close ends open event streams and stops background work.
func (s *Server) Close() {
	s.closeOnce.Do(func() { close(s.closing) })
	s.enforcer.Close()
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.Close()
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log().Info("starting server", "addr", ln.Addr().String())
		err := server.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.log().Info("shutting down server")
	case err := <-errCh:
		s.Close()
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}

	// Event streams never go idle on their own.
	s.closeOnce.Do(func() { close(s.closing) })

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	shutdownErr := server.Shutdown(shutdownCtx)
	s.enforcer.Close()
	if shutdownErr != nil {
		return fmt.Errorf("graceful shutdown: %w", shutdownErr)
	}
	s.log().Info("server stopped")
	return nil
}

func (s *Server) log() *slog.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return slog.Default()
}
