package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultHTTPTimeout = 10 * time.Second
	httpTimeoutEnvKey  = "PHOTOWALL_HTTP_TIMEOUT"
	adminKeyEnvKey     = "ADMIN_KEY"

	// UploadField is the multipart field the client sends files in.
	UploadField = "photo"
)

// Client is a simple HTTP client for the photowall API.
type Client struct {
	baseURL  string
	http     *http.Client
	stream   *http.Client
	adminKey string
}

// NewClient creates a new API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Timeout: httpTimeoutFromEnv()},
		stream:   &http.Client{},
		adminKey: strings.TrimSpace(os.Getenv(adminKeyEnvKey)),
	}
}

// WithAdminKey sets the key sent on admin requests.
func (c *Client) WithAdminKey(key string) *Client {
	if key = strings.TrimSpace(key); key != "" {
		c.adminKey = key
	}
	return c
}

// Health reports catalog size and live subscriber count.
func (c *Client) Health(ctx context.Context) (HealthResponse, error) {
	var resp HealthResponse
	err := c.do(ctx, http.MethodGet, "/health", nil, nil, "", &resp)
	return resp, err
}

func (c *Client) ListPhotos(ctx context.Context, limit int) ([]PhotoResponse, error) {
	var query url.Values
	if limit > 0 {
		query = url.Values{"limit": []string{strconv.Itoa(limit)}}
	}
	var resp []PhotoResponse
	err := c.do(ctx, http.MethodGet, "/photos", query, nil, "", &resp)
	return resp, err
}

func (c *Client) GetPhoto(ctx context.Context, id string) (PhotoResponse, error) {
	var resp PhotoResponse
	err := c.do(ctx, http.MethodGet, "/photos/"+url.PathEscape(id), nil, nil, "", &resp)
	return resp, err
}

// UploadPhoto sends r as a single multipart file named filename.
func (c *Client) UploadPhoto(ctx context.Context, filename string, r io.Reader) (UploadResponse, error) {
	var resp UploadResponse

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile(UploadField, filename)
	if err != nil {
		return resp, err
	}
	if _, err := io.Copy(part, r); err != nil {
		return resp, err
	}
	if err := mw.Close(); err != nil {
		return resp, err
	}

	err = c.do(ctx, http.MethodPost, "/upload", nil, &body, mw.FormDataContentType(), &resp)
	return resp, err
}

func (c *Client) DeletePhoto(ctx context.Context, id string) (DeleteResponse, error) {
	var resp DeleteResponse
	err := c.doAdmin(ctx, http.MethodDelete, "/photos/"+url.PathEscape(id), &resp)
	return resp, err
}

func (c *Client) Enforce(ctx context.Context) (EnforceResponse, error) {
	var resp EnforceResponse
	err := c.doAdmin(ctx, http.MethodPost, "/admin/enforce", &resp)
	return resp, err
}

// Watch streams /events and calls fn for every frame until ctx ends, the
// server closes the stream or fn returns an error.
func (c *Client) Watch(ctx context.Context, fn func(Event) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/events", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.stream.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}

	err = ReadEvents(resp.Body, fn)
	if ctx.Err() != nil && (err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return nil
	}
	return err
}

func (c *Client) doAdmin(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	c.setAdminHeader(req)
	return c.send(req, out)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}

	if out == nil {
		return nil
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	var errResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil {
		apiErr.Code = errResp.Code
		apiErr.ErrorCode = errResp.ErrorCode
		apiErr.Message = firstNonEmpty(errResp.Error, errResp.Message)
	}
	if apiErr.Message == "" {
		apiErr.Message = fmt.Sprintf("photowall api: %s", resp.Status)
	}
	return apiErr
}

func (c *Client) setAdminHeader(req *http.Request) {
	if c.adminKey == "" || req == nil {
		return
	}
	req.Header.Set(AdminKeyHeader, c.adminKey)
}

func httpTimeoutFromEnv() time.Duration {
	value := strings.TrimSpace(os.Getenv(httpTimeoutEnvKey))
	if value == "" {
		return defaultHTTPTimeout
	}

	if duration, err := time.ParseDuration(value); err == nil && duration > 0 {
		return duration
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	return defaultHTTPTimeout
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
