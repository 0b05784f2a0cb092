package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"photowall/internal/models"
)

func newSQLiteCatalog(t *testing.T) Catalog {
	t.Helper()
	c, err := OpenSQLite(filepath.Join(t.TempDir(), "photos.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func newPostgresCatalog(t *testing.T) Catalog {
	t.Helper()
	dbURL := os.Getenv("PHOTOWALL_TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("PHOTOWALL_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	c, err := OpenPostgres(ctx, dbURL)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	if _, err := c.pool.Exec(ctx, "TRUNCATE photos, photo_tombstones"); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestSQLiteCatalog(t *testing.T) {
	runCatalogContract(t, newSQLiteCatalog)
}

func TestPostgresCatalog(t *testing.T) {
	runCatalogContract(t, newPostgresCatalog)
}

var testBase = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testPhoto(id string, at time.Time) *models.Photo {
	return &models.Photo{
		ID:           id,
		ExternalID:   "photos/" + id + ".jpg",
		URL:          "http://photos.test/blobs/photos/" + id + ".jpg",
		ThumbnailURL: "http://photos.test/blobs/thumb/photos/" + id + ".jpg",
		CreatedAt:    at,
	}
}

func ids(photos []models.Photo) []string {
	out := make([]string, 0, len(photos))
	for _, p := range photos {
		out = append(out, p.ID)
	}
	return out
}

func sameIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func runCatalogContract(t *testing.T, open func(t *testing.T) Catalog) {
	t.Run("insert get roundtrip", func(t *testing.T) {
		c := open(t)
		ctx := context.Background()
		want := testPhoto("p1", testBase.Add(123*time.Microsecond))
		if err := c.Insert(ctx, want); err != nil {
			t.Fatalf("insert: %v", err)
		}
		got, err := c.Get(ctx, "p1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.ID != want.ID || got.ExternalID != want.ExternalID || got.URL != want.URL || got.ThumbnailURL != want.ThumbnailURL {
			t.Fatalf("unexpected photo: %#v", got)
		}
		if !got.CreatedAt.Equal(want.CreatedAt) {
			t.Fatalf("expected created_at %v, got %v", want.CreatedAt, got.CreatedAt)
		}
		if got.CreatedAt.Location() != time.UTC {
			t.Fatalf("expected UTC, got %v", got.CreatedAt.Location())
		}
	})

	t.Run("newest first with id tie break", func(t *testing.T) {
		c := open(t)
		ctx := context.Background()
		for _, p := range []*models.Photo{
			testPhoto("a", testBase),
			testPhoto("c", testBase.Add(time.Second)),
			testPhoto("b", testBase.Add(time.Second)),
			testPhoto("d", testBase.Add(-time.Second)),
		} {
			if err := c.Insert(ctx, p); err != nil {
				t.Fatalf("insert %s: %v", p.ID, err)
			}
		}
		got, err := c.ListNewest(ctx, 10)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		want := []string{"c", "b", "a", "d"}
		if !sameIDs(ids(got), want) {
			t.Fatalf("expected %v, got %v", want, ids(got))
		}
	})

	t.Run("limit bounds and prefix property", func(t *testing.T) {
		c := open(t)
		ctx := context.Background()
		for i := 0; i < 6; i++ {
			p := testPhoto(fmt.Sprintf("p%02d", i), testBase.Add(time.Duration(i%3)*time.Minute))
			if err := c.Insert(ctx, p); err != nil {
				t.Fatalf("insert: %v", err)
			}
		}
		all, err := c.ListNewest(ctx, 100)
		if err != nil {
			t.Fatalf("list all: %v", err)
		}
		if len(all) != 6 {
			t.Fatalf("expected 6, got %d", len(all))
		}
		for n := 1; n <= 6; n++ {
			head, err := c.ListNewest(ctx, n)
			if err != nil {
				t.Fatalf("list %d: %v", n, err)
			}
			if !sameIDs(ids(head), ids(all[:n])) {
				t.Fatalf("limit %d: expected prefix %v, got %v", n, ids(all[:n]), ids(head))
			}
			tail, err := c.ListBeyond(ctx, n)
			if err != nil {
				t.Fatalf("beyond %d: %v", n, err)
			}
			if !sameIDs(ids(tail), ids(all[n:])) {
				t.Fatalf("beyond %d: expected %v, got %v", n, ids(all[n:]), ids(tail))
			}
		}
		for i := 0; i+1 < len(all); i++ {
			if !all[i].Newer(all[i+1]) {
				t.Fatalf("rows %d and %d out of order", i, i+1)
			}
		}
	})

	t.Run("beyond count is empty", func(t *testing.T) {
		c := open(t)
		ctx := context.Background()
		if err := c.Insert(ctx, testPhoto("only", testBase)); err != nil {
			t.Fatalf("insert: %v", err)
		}
		tail, err := c.ListBeyond(ctx, 1)
		if err != nil {
			t.Fatalf("beyond: %v", err)
		}
		if len(tail) != 0 {
			t.Fatalf("expected empty, got %v", ids(tail))
		}
		tail, err = c.ListBeyond(ctx, 0)
		if err != nil {
			t.Fatalf("beyond 0: %v", err)
		}
		if len(tail) != 1 {
			t.Fatalf("expected all rows beyond 0, got %v", ids(tail))
		}
	})

	t.Run("empty catalog lists empty slice", func(t *testing.T) {
		c := open(t)
		got, err := c.ListNewest(context.Background(), 0)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if got == nil || len(got) != 0 {
			t.Fatalf("expected empty non-nil slice, got %#v", got)
		}
	})

	t.Run("duplicate id rejected", func(t *testing.T) {
		c := open(t)
		ctx := context.Background()
		if err := c.Insert(ctx, testPhoto("dup", testBase)); err != nil {
			t.Fatalf("insert: %v", err)
		}
		if err := c.Insert(ctx, testPhoto("dup", testBase.Add(time.Second))); !errors.Is(err, ErrDuplicateID) {
			t.Fatalf("expected ErrDuplicateID, got %v", err)
		}
	})

	t.Run("deleted id is never reused", func(t *testing.T) {
		c := open(t)
		ctx := context.Background()
		if err := c.Insert(ctx, testPhoto("gone", testBase)); err != nil {
			t.Fatalf("insert: %v", err)
		}
		if err := c.DeleteByID(ctx, "gone"); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if err := c.Insert(ctx, testPhoto("gone", testBase)); !errors.Is(err, ErrDuplicateID) {
			t.Fatalf("expected ErrDuplicateID for reused id, got %v", err)
		}
	})

	t.Run("delete missing is not found", func(t *testing.T) {
		c := open(t)
		ctx := context.Background()
		if err := c.DeleteByID(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if _, err := c.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("delete twice reports not found once", func(t *testing.T) {
		c := open(t)
		ctx := context.Background()
		if err := c.Insert(ctx, testPhoto("x", testBase)); err != nil {
			t.Fatalf("insert: %v", err)
		}
		var wg sync.WaitGroup
		results := make([]error, 2)
		for i := range results {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i] = c.DeleteByID(ctx, "x")
			}(i)
		}
		wg.Wait()
		var ok, notFound int
		for _, err := range results {
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrNotFound):
				notFound++
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		if ok != 1 || notFound != 1 {
			t.Fatalf("expected one success and one not found, got %d/%d", ok, notFound)
		}
	})

	t.Run("concurrent inserts all land", func(t *testing.T) {
		c := open(t)
		ctx := context.Background()
		const n = 20
		var wg sync.WaitGroup
		errs := make(chan error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				id, err := NewPhotoID()
				if err != nil {
					errs <- err
					return
				}
				errs <- c.Insert(ctx, testPhoto(id, testBase.Add(time.Duration(i)*time.Millisecond)))
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			if err != nil {
				t.Fatalf("insert: %v", err)
			}
		}
		count, err := c.Count(ctx)
		if err != nil {
			t.Fatalf("count: %v", err)
		}
		if count != n {
			t.Fatalf("expected %d rows, got %d", n, count)
		}
		got, err := c.ListNewest(ctx, n)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if !sort.SliceIsSorted(got, func(i, j int) bool { return got[i].Newer(got[j]) }) {
			t.Fatalf("listing not in total order: %v", ids(got))
		}
	})

	t.Run("insert validates input", func(t *testing.T) {
		c := open(t)
		ctx := context.Background()
		if err := c.Insert(ctx, nil); err == nil {
			t.Fatal("expected error for nil photo")
		}
		if err := c.Insert(ctx, &models.Photo{ID: "x", ExternalID: "k"}); err == nil {
			t.Fatal("expected error for missing created_at")
		}
	})
}

func TestPostgresMigrationList(t *testing.T) {
	list, err := postgresMigrationList()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 migrations, got %#v", list)
	}
	plan := planFrom(1, list)
	if plan.AvailableVersion != 2 || len(plan.Pending) != 1 || plan.Pending[0].Description != "photo_tombstones" {
		t.Fatalf("unexpected plan: %#v", plan)
	}
}

func TestPgx5URL(t *testing.T) {
	got, err := pgx5URL("postgres://u:p@db:5432/photos?sslmode=disable")
	if err != nil {
		t.Fatalf("pgx5 url: %v", err)
	}
	if got != "pgx5://u:p@db:5432/photos?sslmode=disable" {
		t.Fatalf("unexpected url %q", got)
	}
}

func TestOpenRejectsUnknownScheme(t *testing.T) {
	if _, err := Open(context.Background(), Options{DatabaseURL: "mysql://x"}); err == nil {
		t.Fatal("expected error for unsupported scheme")
	}
}
