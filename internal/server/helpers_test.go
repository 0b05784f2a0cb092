package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"photowall/internal/api"
	"photowall/internal/blobstore"
	"photowall/internal/catalog"
	"photowall/internal/events"
	"photowall/internal/models"
)

const testAdminKey = "correct-horse-battery"

// pngBytes is a PNG signature followed by padding; enough for sniffing.
func pngBytes(size int) []byte {
	data := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}
	if size > len(data) {
		data = append(data, bytes.Repeat([]byte{0}, size-len(data))...)
	}
	return data
}

func testPolicy() UploadPolicy {
	return UploadPolicy{
		MaxBytes:           1024,
		MultipartMaxMemory: 1024,
		AllowedMediaTypes:  []string{"image/jpeg", "image/png", "image/gif", "image/webp"},
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestCatalog(t *testing.T) *catalog.SQLite {
	t.Helper()
	cat, err := catalog.OpenSQLite(filepath.Join(t.TempDir(), "photowall.db"))
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}
	t.Cleanup(func() { _ = cat.Close() })
	return cat
}

func openTestBlobs(t *testing.T) *blobstore.LocalStore {
	t.Helper()
	blobs, err := blobstore.NewLocalStore(t.TempDir(), "http://photos.test")
	if err != nil {
		t.Fatalf("new local store: %v", err)
	}
	return blobs
}

// steppingClock returns strictly increasing timestamps.
func steppingClock() func() time.Time {
	var mu sync.Mutex
	next := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		next = next.Add(time.Second)
		return next
	}
}

type testServer struct {
	srv     *Server
	http    *httptest.Server
	catalog catalog.Catalog
	blobs   blobstore.BlobStore
}

type serverOption func(*Options)

func withCatalog(cat catalog.Catalog) serverOption {
	return func(o *Options) { o.Catalog = cat }
}

func withBlobs(blobs blobstore.BlobStore) serverOption {
	return func(o *Options) { o.Blobs = blobs }
}

func withAdminKey(key string) serverOption {
	return func(o *Options) { o.AdminKey = key }
}

func newTestServer(t *testing.T, maxPhotos int, opts ...serverOption) *testServer {
	t.Helper()
	o := Options{
		MaxPhotos: maxPhotos,
		AdminKey:  testAdminKey,
		Uploads:   testPolicy(),
		Keepalive: time.Hour,
		Logger:    testLogger(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Catalog == nil {
		o.Catalog = openTestCatalog(t)
	}
	if o.Blobs == nil {
		o.Blobs = openTestBlobs(t)
	}
	o.Bus = events.NewBus(events.Options{Logger: o.Logger})

	srv, err := New(o)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	srv.photos.now = steppingClock()

	ctx, cancel := context.WithCancel(context.Background())
	if err := srv.Start(ctx); err != nil {
		cancel()
		t.Fatalf("start server: %v", err)
	}
	httpSrv := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Close()
		httpSrv.Close()
		cancel()
	})
	return &testServer{srv: srv, http: httpSrv, catalog: o.Catalog, blobs: o.Blobs}
}

func multipartBody(t *testing.T, field, filename string, data []byte) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if field != "" {
		part, err := mw.CreateFormFile(field, filename)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := part.Write(data); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	} else if err := mw.WriteField("note", "no file here"); err != nil {
		t.Fatalf("write field: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func (ts *testServer) upload(t *testing.T, data []byte) *http.Response {
	t.Helper()
	body, contentType := multipartBody(t, api.UploadField, "photo.png", data)
	resp, err := http.Post(ts.http.URL+"/upload", contentType, body)
	if err != nil {
		t.Fatalf("post upload: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (ts *testServer) mustUpload(t *testing.T) api.PhotoResponse {
	t.Helper()
	resp := ts.upload(t, pngBytes(64))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from upload, got %d: %s", resp.StatusCode, readBody(t, resp))
	}
	var out api.UploadResponse
	decodeJSON(t, resp, &out)
	return out.Photo
}

func (ts *testServer) request(t *testing.T, method, path, adminKey string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, ts.http.URL+path, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if adminKey != "" {
		req.Header.Set(api.AdminKeyHeader, adminKey)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (ts *testServer) count(t *testing.T) int {
	t.Helper()
	n, err := ts.catalog.Count(context.Background())
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(data)
}

func decodeJSON(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func decodeError(t *testing.T, resp *http.Response) api.ErrorResponse {
	t.Helper()
	var errResp api.ErrorResponse
	decodeJSON(t, resp, &errResp)
	return errResp
}

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s: %s", timeout, msg)
}

// drain returns every event currently queued on sub.
func drain(sub *events.Subscription) []events.Event {
	var out []events.Event
	for {
		select {
		case ev := <-sub.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func kinds(evs []events.Event) []events.Kind {
	out := make([]events.Kind, 0, len(evs))
	for _, ev := range evs {
		out = append(out, ev.Kind)
	}
	return out
}

// failingCatalog wraps a catalog and fails selected operations.
type failingCatalog struct {
	catalog.Catalog
	insertErr error
	deleteErr error
}

func (c *failingCatalog) Insert(ctx context.Context, photo *models.Photo) error {
	if c.insertErr != nil {
		return c.insertErr
	}
	return c.Catalog.Insert(ctx, photo)
}

func (c *failingCatalog) DeleteByID(ctx context.Context, id string) error {
	if c.deleteErr != nil {
		return c.deleteErr
	}
	return c.Catalog.DeleteByID(ctx, id)
}

// recordingBlobs wraps a blob store, records deletes and can fail writes
// or deletes.
type recordingBlobs struct {
	blobstore.BlobStore

	mu        sync.Mutex
	putErr    error
	deleteErr error
	puts      []string
	deletes   []string
}

func (b *recordingBlobs) Put(ctx context.Context, key, contentType string, r io.Reader) (blobstore.PutResult, error) {
	b.mu.Lock()
	putErr := b.putErr
	b.puts = append(b.puts, key)
	b.mu.Unlock()
	if putErr != nil {
		return blobstore.PutResult{}, putErr
	}
	return b.BlobStore.Put(ctx, key, contentType, r)
}

func (b *recordingBlobs) Delete(ctx context.Context, externalID string) error {
	b.mu.Lock()
	deleteErr := b.deleteErr
	b.deletes = append(b.deletes, externalID)
	b.mu.Unlock()
	if deleteErr != nil {
		return deleteErr
	}
	return b.BlobStore.Delete(ctx, externalID)
}

func (b *recordingBlobs) deleted() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.deletes...)
}

var errInjected = errors.New("injected failure")

func bytesReader(data []byte) io.Reader {
	return bytes.NewReader(data)
}
