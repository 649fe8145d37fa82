// Package client talks to the tartil persistence server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dgnsrekt/tartil/internal/store"
)

// DefaultURL is where `tartil serve` listens by default.
const DefaultURL = "http://localhost:8080"

// ErrUnavailable means the server could not be reached.
var ErrUnavailable = errors.New("persistence server unavailable")

// APIError is a non-2xx response. It unwraps to store.ErrNotFound for 404
// and to a *store.ValidationError for 400, so callers can use the same
// checks as with a local store.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusNotFound:
		return store.ErrNotFound
	case http.StatusBadRequest:
		return &store.ValidationError{Message: e.Message}
	}
	return nil
}

// Config configures a Client.
type Config struct {
	URL     string        `env:"URL" yaml:"url"`
	Timeout time.Duration `env:"TIMEOUT" yaml:"timeout"`
}

// Client is a typed REST client. List responses are revalidated with
// their ETag.
type Client struct {
	base string
	http *http.Client

	mu    sync.Mutex
	lists map[string]cachedList
}

type cachedList struct {
	etag string
	body []byte
}

// New returns a client for cfg.URL, defaulting to DefaultURL.
func New(cfg Config) *Client {
	base := strings.TrimRight(cfg.URL, "/")
	if base == "" {
		base = DefaultURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		base:  base,
		http:  &http.Client{Timeout: timeout},
		lists: make(map[string]cachedList),
	}
}

// URL returns the server base URL.
func (c *Client) URL() string { return c.base }

var _ store.Store = (*Client)(nil)

// Ping reports whether the server answers its health check.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

func (c *Client) Bookmarks(ctx context.Context) ([]store.Bookmark, error) {
	var out []store.Bookmark
	if err := c.list(ctx, "/api/bookmarks", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Bookmark(ctx context.Context, id int64) (*store.Bookmark, error) {
	var b store.Bookmark
	if err := c.do(ctx, http.MethodGet, path("bookmarks", id), nil, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (c *Client) CreateBookmark(ctx context.Context, in store.NewBookmark) (*store.Bookmark, error) {
	var b store.Bookmark
	if err := c.do(ctx, http.MethodPost, "/api/bookmarks", in, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (c *Client) UpdateBookmark(ctx context.Context, id int64, p store.BookmarkPatch) (*store.Bookmark, error) {
	var b store.Bookmark
	if err := c.do(ctx, http.MethodPut, path("bookmarks", id), p, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (c *Client) DeleteBookmark(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, path("bookmarks", id), nil, nil)
}

func (c *Client) Downloads(ctx context.Context) ([]store.Download, error) {
	var out []store.Download
	if err := c.list(ctx, "/api/downloads", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Download(ctx context.Context, id int64) (*store.Download, error) {
	var d store.Download
	if err := c.do(ctx, http.MethodGet, path("downloads", id), nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *Client) CreateDownload(ctx context.Context, in store.NewDownload) (*store.Download, error) {
	var d store.Download
	if err := c.do(ctx, http.MethodPost, "/api/downloads", in, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *Client) UpdateDownload(ctx context.Context, id int64, p store.DownloadPatch) (*store.Download, error) {
	var d store.Download
	if err := c.do(ctx, http.MethodPut, path("downloads", id), p, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *Client) DeleteDownload(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, path("downloads", id), nil, nil)
}

func (c *Client) Memorizations(ctx context.Context) ([]store.Memorization, error) {
	var out []store.Memorization
	if err := c.list(ctx, "/api/memorization", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Memorization(ctx context.Context, id int64) (*store.Memorization, error) {
	var m store.Memorization
	if err := c.do(ctx, http.MethodGet, path("memorization", id), nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *Client) CreateMemorization(ctx context.Context, in store.NewMemorization) (*store.Memorization, error) {
	var m store.Memorization
	if err := c.do(ctx, http.MethodPost, "/api/memorization", in, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *Client) UpdateMemorization(ctx context.Context, id int64, p store.MemorizationPatch) (*store.Memorization, error) {
	var m store.Memorization
	if err := c.do(ctx, http.MethodPut, path("memorization", id), p, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *Client) DeleteMemorization(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, path("memorization", id), nil, nil)
}

func path(resource string, id int64) string {
	return "/api/" + resource + "/" + strconv.FormatInt(id, 10)
}

// list GETs p, sending the cached ETag and reusing the cached body on 304.
func (c *Client) list(ctx context.Context, p string, out any) error {
	c.mu.Lock()
	cached, ok := c.lists[p]
	c.mu.Unlock()

	req, err := c.request(ctx, http.MethodGet, p, nil)
	if err != nil {
		return err
	}
	if ok {
		req.Header.Set("If-None-Match", cached.etag)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusNotModified && ok {
		return json.Unmarshal(cached.body, out)
	}
	if err := checkStatus(resp); err != nil {
		return err
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("unable to read %s: %w", p, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("unable to decode %s: %w", p, err)
	}
	if tag := resp.Header.Get("ETag"); tag != "" {
		c.mu.Lock()
		c.lists[p] = cachedList{etag: tag, body: body}
		c.mu.Unlock()
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, p string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := c.request(ctx, method, p, body)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if err := checkStatus(resp); err != nil {
		return err
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("unable to decode %s: %w", p, err)
	}
	return nil
}

func (c *Client) request(ctx context.Context, method, p string, body io.Reader) (*http.Request, error) {
	u, err := url.JoinPath(c.base, p)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	var body struct {
		Message string `json:"message"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body)
	if body.Message == "" {
		body.Message = http.StatusText(resp.StatusCode)
	}
	return &APIError{Status: resp.StatusCode, Message: body.Message}
}
