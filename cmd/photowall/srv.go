package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"photowall/internal/blobstore"
	"photowall/internal/catalog"
	"photowall/internal/config"
	"photowall/internal/events"
	"photowall/internal/server"
)

func newSrvCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "srv",
		Short: "Run the photowall API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg == nil {
				return fmt.Errorf("config not initialized")
			}
			ctx, stop := signalContext(commandContext(cmd))
			defer stop()
			return runServer(ctx, cfg, slog.Default())
		},
	}
}

// runServer wires storage, the event bus and the HTTP server, then serves
// until ctx is cancelled.
func runServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if cfg.AdminKey == "" {
		logger.Warn("admin_key is not set; delete and admin routes will reject every request")
	}

	opts := catalog.Options{DatabaseURL: cfg.Storage.DatabaseURL, SQLitePath: cfg.Storage.DBPath}
	logger.Info("opening catalog", "engine", opts.Engine(), "path", cfg.Storage.DBPath)
	cat, err := catalog.Open(ctx, opts)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	defer cat.Close()

	blobs, err := blobstore.NewLocalStore(cfg.Storage.BlobDir, cfg.PublicURL)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}

	bus := events.NewBus(events.Options{
		Buffer: cfg.Events.Buffer,
		Logger: logger.With("component", "events"),
	})
	if cfg.Events.NATSURL != "" {
		relay, err := events.ConnectNATS(cfg.Events.NATSURL, cfg.Events.NATSSubject, bus, logger.With("component", "relay"))
		if err != nil {
			return err
		}
		defer relay.Close()
		bus.AttachRelay(relay)
		logger.Info("relaying events", "subject", cfg.Events.NATSSubject, "origin", bus.Origin())
	}

	srv, err := server.New(server.Options{
		Addr:      cfg.ListenAddr(),
		Catalog:   cat,
		Blobs:     blobs,
		Bus:       bus,
		MaxPhotos: cfg.MaxPhotos,
		AdminKey:  cfg.AdminKey,
		Uploads: server.UploadPolicy{
			MaxBytes:           cfg.Uploads.MaxBytes,
			MultipartMaxMemory: cfg.Uploads.MultipartMaxMemory,
			AllowedMediaTypes:  cfg.Uploads.AllowedMediaTypes,
		},
		SweepSchedule: cfg.Capacity.SweepSchedule,
		Keepalive:     cfg.Events.Keepalive.Duration,
		Logger:        logger.With("component", "server"),
	})
	if err != nil {
		return err
	}

	// Trim anything left over from a previous run before serving.
	srv.Enforcer().Trigger()
	return srv.Run(ctx)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
