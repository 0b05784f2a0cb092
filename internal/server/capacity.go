package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"photowall/internal/blobstore"
	"photowall/internal/catalog"
	"photowall/internal/events"
)

// EnforceResult summarizes one capacity enforcement run.
type EnforceResult struct {
	MaxPhotos    int
	Candidates   int
	Evicted      int
	AlreadyGone  int
	BlobFailures int
	EvictedIDs   []string
	Duration     time.Duration
}

// CapacityEnforcer trims the catalog to MaxPhotos rows, oldest first.
//
// Trigger requests coalesce: at most one run is pending while another
// executes, and callers never wait.
type CapacityEnforcer struct {
	catalog   catalog.Catalog
	blobs     blobstore.Deleter
	bus       Publisher
	metrics   *Metrics
	logger    *slog.Logger
	maxPhotos int
	schedule  string

	// runMu serializes Enforce between the worker and the admin endpoint.
	runMu   sync.Mutex
	pending chan struct{}

	startOnce sync.Once
	closeOnce sync.Once
	stop      chan struct{}
	wg        sync.WaitGroup
	cron      *cron.Cron
}

// NewCapacityEnforcer constructs an enforcer. An empty schedule disables the
// periodic sweep.
func NewCapacityEnforcer(cat catalog.Catalog, blobs blobstore.Deleter, bus Publisher, maxPhotos int, schedule string, metrics *Metrics, logger *slog.Logger) *CapacityEnforcer {
	if logger == nil {
		logger = slog.Default()
	}
	return &CapacityEnforcer{
		catalog:   cat,
		blobs:     blobs,
		bus:       bus,
		metrics:   metrics,
		logger:    logger.With("component", "capacity"),
		maxPhotos: maxPhotos,
		schedule:  schedule,
		pending:   make(chan struct{}, 1),
		stop:      make(chan struct{}),
	}
}

// MaxPhotos returns the configured ceiling.
func (e *CapacityEnforcer) MaxPhotos() int {
	return e.maxPhotos
}

// Trigger schedules a run on the background worker. It never blocks.
func (e *CapacityEnforcer) Trigger() {
	if e == nil {
		return
	}
	select {
	case e.pending <- struct{}{}:
	default:
	}
}

// Start launches the worker and the periodic sweep. The worker exits when
// ctx is done or Close is called.
func (e *CapacityEnforcer) Start(ctx context.Context) error {
	var startErr error
	e.startOnce.Do(func() {
		if e.schedule != "" {
			c := cron.New()
			if _, err := c.AddFunc(e.schedule, e.Trigger); err != nil {
				startErr = fmt.Errorf("capacity sweep schedule %q: %w", e.schedule, err)
				return
			}
			e.cron = c
			c.Start()
		}

		// Runs are detached from request contexts.
		runCtx := context.WithoutCancel(ctx)
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case <-e.stop:
					return
				case <-e.pending:
					if _, err := e.Enforce(runCtx); err != nil {
						e.logger.Error("capacity enforcement failed", "error", err)
					}
				}
			}
		}()
	})
	return startErr
}

// Close stops the sweep and waits for the worker to finish its current run.
func (e *CapacityEnforcer) Close() {
	if e == nil {
		return
	}
	e.closeOnce.Do(func() {
		if e.cron != nil {
			<-e.cron.Stop().Done()
		}
		close(e.stop)
	})
	e.wg.Wait()
}

// Enforce evicts every row ranked beyond MaxPhotos. Blob deletions are best
// effort; rows are removed regardless of the blob outcome.
func (e *CapacityEnforcer) Enforce(ctx context.Context) (EnforceResult, error) {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	started := time.Now()
	result := EnforceResult{MaxPhotos: e.maxPhotos}

	candidates, err := e.catalog.ListBeyond(ctx, e.maxPhotos)
	if err != nil {
		e.metrics.enforceRun(err)
		return result, fmt.Errorf("list eviction candidates: %w", err)
	}
	result.Candidates = len(candidates)

	var errs []error
	for _, photo := range candidates {
		if res := blobstore.DeleteBestEffort(ctx, e.blobs, photo.ExternalID); !res.OK() {
			result.BlobFailures++
			e.metrics.blobDeleteFailed("eviction")
			e.logger.Warn("evicted blob delete failed", "id", photo.ID, "external_id", photo.ExternalID, "error", res.Err)
		}

		err := e.catalog.DeleteByID(ctx, photo.ID)
		switch {
		case errors.Is(err, catalog.ErrNotFound):
			result.AlreadyGone++
			continue
		case err != nil:
			errs = append(errs, fmt.Errorf("evict %s: %w", photo.ID, err))
			continue
		}

		result.Evicted++
		result.EvictedIDs = append(result.EvictedIDs, photo.ID)
		if e.bus != nil {
			e.bus.Publish(events.PhotoDeleted(photo.ID, events.ReasonEvicted))
		}
	}

	result.Duration = time.Since(started)
	err = errors.Join(errs...)
	e.metrics.enforceRun(err)
	e.metrics.evicted(result.Evicted)
	if result.Candidates > 0 {
		e.logger.Info("capacity enforced",
			"max_photos", e.maxPhotos,
			"candidates", result.Candidates,
			"evicted", result.Evicted,
			"already_gone", result.AlreadyGone,
			"blob_failures", result.BlobFailures,
			"duration_ms", result.Duration.Milliseconds())
	}
	return result, err
}
