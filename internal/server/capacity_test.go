package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"photowall/internal/catalog"
	"photowall/internal/events"
	"photowall/internal/models"
)

func seedPhotos(t *testing.T, cat catalog.Catalog, blobs *recordingBlobs, n int) []models.Photo {
	t.Helper()
	ctx := context.Background()
	clock := steppingClock()
	photos := make([]models.Photo, 0, n)
	for i := 0; i < n; i++ {
		id, err := catalog.NewPhotoID()
		if err != nil {
			t.Fatalf("new id: %v", err)
		}
		key := fmt.Sprintf("photos/%s.png", id)
		put, err := blobs.Put(ctx, key, "image/png", bytesReader(pngBytes(16)))
		if err != nil {
			t.Fatalf("put blob: %v", err)
		}
		photo := models.Photo{ID: id, ExternalID: put.ExternalID, URL: put.URL, ThumbnailURL: blobs.ThumbnailURL(put.ExternalID), CreatedAt: clock()}
		if err := cat.Insert(ctx, &photo); err != nil {
			t.Fatalf("insert: %v", err)
		}
		photos = append(photos, photo)
	}
	return photos
}

func newTestEnforcer(t *testing.T, maxPhotos int) (*CapacityEnforcer, catalog.Catalog, *recordingBlobs, *events.Subscription) {
	t.Helper()
	cat := openTestCatalog(t)
	blobs := &recordingBlobs{BlobStore: openTestBlobs(t)}
	bus := events.NewBus(events.Options{Logger: testLogger()})
	sub := bus.Subscribe()
	t.Cleanup(sub.Close)
	<-sub.Events()
	return NewCapacityEnforcer(cat, blobs, bus, maxPhotos, "", nil, testLogger()), cat, blobs, sub
}

func TestCapacityEnforcerEvictsOldest(t *testing.T) {
	enforcer, cat, blobs, sub := newTestEnforcer(t, 2)
	photos := seedPhotos(t, cat, blobs, 3) // A, B, C oldest first
	ctx := context.Background()

	result, err := enforcer.Enforce(ctx)
	if err != nil {
		t.Fatalf("enforce: %v", err)
	}
	if result.Candidates != 1 || result.Evicted != 1 || result.BlobFailures != 0 {
		t.Fatalf("unexpected result: %#v", result)
	}
	if len(result.EvictedIDs) != 1 || result.EvictedIDs[0] != photos[0].ID {
		t.Fatalf("expected oldest photo evicted, got %v", result.EvictedIDs)
	}

	remaining, err := cat.ListNewest(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(remaining) != 2 || remaining[0].ID != photos[2].ID || remaining[1].ID != photos[1].ID {
		t.Fatalf("expected [C, B], got %v", remaining)
	}
	if _, err := blobs.Open(ctx, photos[0].ExternalID); err == nil {
		t.Fatal("expected evicted blob removed")
	}

	evs := drain(sub)
	if len(evs) != 1 || evs[0].Kind != events.KindPhotoDeleted || evs[0].ID != photos[0].ID || evs[0].Reason != events.ReasonEvicted {
		t.Fatalf("expected one eviction event, got %#v", evs)
	}

	again, err := enforcer.Enforce(ctx)
	if err != nil {
		t.Fatalf("second enforce: %v", err)
	}
	if again.Candidates != 0 || again.Evicted != 0 {
		t.Fatalf("expected no-op second run, got %#v", again)
	}
}

func TestCapacityEnforcerUnderLimitIsNoop(t *testing.T) {
	enforcer, cat, blobs, sub := newTestEnforcer(t, 5)
	seedPhotos(t, cat, blobs, 3)

	result, err := enforcer.Enforce(context.Background())
	if err != nil {
		t.Fatalf("enforce: %v", err)
	}
	if result.Candidates != 0 || len(blobs.deleted()) != 0 {
		t.Fatalf("expected nothing evicted, got %#v deletes=%v", result, blobs.deleted())
	}
	if evs := drain(sub); len(evs) != 0 {
		t.Fatalf("expected no events, got %v", kinds(evs))
	}
}

func TestCapacityEnforcerBlobFailureStillRemovesRows(t *testing.T) {
	enforcer, cat, blobs, _ := newTestEnforcer(t, 1)
	seedPhotos(t, cat, blobs, 4)
	blobs.deleteErr = errInjected

	result, err := enforcer.Enforce(context.Background())
	if err != nil {
		t.Fatalf("enforce: %v", err)
	}
	if result.Evicted != 3 || result.BlobFailures != 3 {
		t.Fatalf("expected 3 evicted with 3 blob failures, got %#v", result)
	}
	if n, _ := cat.Count(context.Background()); n != 1 {
		t.Fatalf("expected 1 row left, got %d", n)
	}
	if len(blobs.deleted()) != 3 {
		t.Fatalf("expected exactly one attempt per blob, got %v", blobs.deleted())
	}
}

// vanishingCatalog reports every row as already gone on delete.
type vanishingCatalog struct {
	catalog.Catalog
}

func (c vanishingCatalog) DeleteByID(ctx context.Context, id string) error {
	_ = c.Catalog.DeleteByID(ctx, id)
	return fmt.Errorf("delete %s: %w", id, catalog.ErrNotFound)
}

func TestCapacityEnforcerSwallowsNotFound(t *testing.T) {
	cat := openTestCatalog(t)
	blobs := &recordingBlobs{BlobStore: openTestBlobs(t)}
	seedPhotos(t, cat, blobs, 3)
	bus := events.NewBus(events.Options{Logger: testLogger()})
	sub := bus.Subscribe()
	defer sub.Close()
	<-sub.Events()

	enforcer := NewCapacityEnforcer(vanishingCatalog{Catalog: cat}, blobs, bus, 1, "", nil, testLogger())
	result, err := enforcer.Enforce(context.Background())
	if err != nil {
		t.Fatalf("expected not-found to be swallowed, got %v", err)
	}
	if result.AlreadyGone != 2 || result.Evicted != 0 {
		t.Fatalf("unexpected result: %#v", result)
	}
	if evs := drain(sub); len(evs) != 0 {
		t.Fatalf("rows removed elsewhere must not publish here, got %v", kinds(evs))
	}
}

func TestCapacityEnforcerReportsCatalogErrors(t *testing.T) {
	cat := &failingCatalog{Catalog: openTestCatalog(t)}
	blobs := &recordingBlobs{BlobStore: openTestBlobs(t)}
	seedPhotos(t, cat, blobs, 2)
	cat.deleteErr = errInjected

	enforcer := NewCapacityEnforcer(cat, blobs, nil, 1, "", nil, testLogger())
	_, err := enforcer.Enforce(context.Background())
	if !errors.Is(err, errInjected) {
		t.Fatalf("expected injected error, got %v", err)
	}
}

func TestCapacityEnforcerConcurrentRuns(t *testing.T) {
	enforcer, cat, blobs, _ := newTestEnforcer(t, 3)
	seedPhotos(t, cat, blobs, 10)

	var wg sync.WaitGroup
	results := make([]EnforceResult, 4)
	errs := make([]error, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = enforcer.Enforce(context.Background())
		}(i)
	}
	wg.Wait()

	evicted := 0
	for i, err := range errs {
		if err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		evicted += results[i].Evicted
	}
	if evicted != 7 {
		t.Fatalf("expected 7 rows evicted across runs, got %d", evicted)
	}
	if n, _ := cat.Count(context.Background()); n != 3 {
		t.Fatalf("expected 3 rows left, got %d", n)
	}
}

func TestCapacityEnforcerTriggerCoalesces(t *testing.T) {
	enforcer, cat, blobs, _ := newTestEnforcer(t, 2)
	seedPhotos(t, cat, blobs, 5)

	for i := 0; i < 100; i++ {
		enforcer.Trigger()
	}
	if got := len(enforcer.pending); got != 1 {
		t.Fatalf("expected one pending run, got %d", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := enforcer.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer enforcer.Close()

	eventually(t, 2*time.Second, func() bool {
		n, err := cat.Count(context.Background())
		return err == nil && n == 2
	}, "catalog trimmed to 2 rows")
}

func TestCapacityEnforcerSchedule(t *testing.T) {
	t.Run("invalid schedule fails start", func(t *testing.T) {
		enforcer := NewCapacityEnforcer(openTestCatalog(t), openTestBlobs(t), nil, 1, "not a schedule", nil, testLogger())
		if err := enforcer.Start(context.Background()); err == nil {
			t.Fatal("expected invalid schedule error")
		}
		enforcer.Close()
	})

	t.Run("sweep triggers runs", func(t *testing.T) {
		cat := openTestCatalog(t)
		blobs := &recordingBlobs{BlobStore: openTestBlobs(t)}
		seedPhotos(t, cat, blobs, 3)
		enforcer := NewCapacityEnforcer(cat, blobs, nil, 1, "@every 1s", nil, testLogger())
		if err := enforcer.Start(context.Background()); err != nil {
			t.Fatalf("start: %v", err)
		}
		defer enforcer.Close()

		eventually(t, 5*time.Second, func() bool {
			n, err := cat.Count(context.Background())
			return err == nil && n == 1
		}, "sweep trimmed catalog")
	})
}

func TestCapacityEnforcerCloseIsIdempotent(t *testing.T) {
	enforcer, _, _, _ := newTestEnforcer(t, 1)
	if err := enforcer.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	enforcer.Close()
	enforcer.Close()
	enforcer.Trigger()
}
