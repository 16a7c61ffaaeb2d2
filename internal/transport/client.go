// Package transport is the HTTP client for the remote media server:
// progress uploads, library fetches, and connection-status tracking.
package transport

import (
	"bytes"
	"context"
	"encoding/json/v2"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/storylineapp/storyline-core/internal/domain"
	"github.com/storylineapp/storyline-core/internal/progress"
	"github.com/storylineapp/storyline-core/internal/validation"
)

// bookValidator checks catalog entries against RemoteBook's tags.
var bookValidator = validation.New()

// LibraryHandler receives the result of a library fetch. The library
// service registers itself here; the sync engine only triggers
// fetches and never sees the catalog payload.
type LibraryHandler interface {
	HandleLibrary(ctx context.Context, lib Library) error
}

// RemoteBook is one catalog entry as the media server describes it.
// Validation tags guard against malformed catalogs; entries that fail
// are dropped rather than mirrored.
type RemoteBook struct {
	ID              string          `json:"id" validate:"required"`
	Title           string          `json:"title" validate:"required"`
	Authors         []string        `json:"authors,omitempty"`
	Narrator        string          `json:"narrator,omitempty"`
	Description     string          `json:"description,omitempty"`
	CoverURL        string          `json:"cover_url,omitempty" validate:"omitempty,url"`
	Href            string          `json:"href" validate:"required"`
	HasNarration    bool            `json:"has_narration"`
	DurationSeconds float64         `json:"duration_seconds" validate:"gte=0"`
	Sections        domain.Sections `json:"sections,omitempty"`
}

// Position is one server-held reading position.
type Position struct {
	BookID          string         `json:"book_id"`
	Locator         domain.Locator `json:"locator"`
	TimestampMillis float64        `json:"timestamp_millis"`
}

// Library is the media server's catalog plus its reading positions.
type Library struct {
	Books     []RemoteBook `json:"books"`
	Positions []Position   `json:"positions,omitempty"`
}

// progressUpload is the wire shape of one progress POST.
type progressUpload struct {
	BookID          string         `json:"book_id"`
	Locator         domain.Locator `json:"locator"`
	TimestampMillis float64        `json:"timestamp_millis"`
}

// Client talks to one media server. Safe for concurrent use.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger

	mu       sync.RWMutex
	status   domain.ConnectionStatus
	handler  LibraryHandler
	onStatus func(domain.ConnectionStatus)
}

// Options configure the client.
type Options struct {
	// UploadRPS caps outbound requests. Zero picks 2/s with a small
	// burst, enough for queue replay without hammering the server.
	UploadRPS   float64
	UploadBurst int
	Timeout     time.Duration
}

// New creates a client for the media server at baseURL. An empty
// baseURL yields a permanently disconnected client, which is how the
// daemon runs fully offline.
func New(baseURL, token string, opts Options, logger *slog.Logger) *Client {
	if opts.UploadRPS <= 0 {
		opts.UploadRPS = 2
	}
	if opts.UploadBurst <= 0 {
		opts.UploadBurst = 5
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(opts.UploadRPS), opts.UploadBurst),
		logger:  logger,
		status:  domain.ConnectionDisconnected,
	}
}

// SetLibraryHandler registers the catalog consumer. Set once at
// wiring time, before any FetchLibrary call.
func (c *Client) SetLibraryHandler(h LibraryHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

// SetStatusCallback registers an observer for status edges.
func (c *Client) SetStatusCallback(fn func(domain.ConnectionStatus)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStatus = fn
}

// Status returns the last observed connection status.
func (c *Client) Status() domain.ConnectionStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// setStatus records a status change and notifies the observer on
// edges only.
func (c *Client) setStatus(status domain.ConnectionStatus) {
	c.mu.Lock()
	changed := c.status != status
	c.status = status
	fn := c.onStatus
	c.mu.Unlock()

	if changed && fn != nil {
		fn(status)
	}
}

// Offline reports whether the client has no server configured.
func (c *Client) Offline() bool {
	return c.baseURL == ""
}

// SendProgress uploads one reading position. Implements the sync
// engine's transport contract: outcomes are values, never errors,
// because every failure is absorbed into the queue.
func (c *Client) SendProgress(ctx context.Context, bookID string, loc domain.Locator, timestampMillis float64) progress.UploadResult {
	if c.Offline() {
		return progress.UploadNoConnection
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return progress.UploadFailure
	}

	body, err := json.Marshal(progressUpload{
		BookID:          bookID,
		Locator:         loc,
		TimestampMillis: timestampMillis,
	})
	if err != nil {
		c.logger.Error("failed to marshal progress upload", "book_id", bookID, "error", err)
		return progress.UploadFailure
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/v1/progress", bytes.NewReader(body))
	if err != nil {
		return progress.UploadFailure
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.setStatus(domain.ConnectionDisconnected)
		c.logger.Warn("progress upload unreachable", "book_id", bookID, "error", err)
		return progress.UploadNoConnection
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("progress upload rejected", "book_id", bookID, "status", resp.StatusCode)
		if resp.StatusCode == http.StatusUnauthorized {
			c.setStatus(domain.ConnectionError)
		}
		return progress.UploadFailure
	}

	c.setStatus(domain.ConnectionConnected)
	return progress.UploadSuccess
}

// FetchLibrary pulls the catalog and reading positions and hands them
// to the registered handler.
func (c *Client) FetchLibrary(ctx context.Context) error {
	if c.Offline() {
		return fmt.Errorf("no media server configured")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}

	c.setStatus(domain.ConnectionConnecting)

	req, err := c.newRequest(ctx, http.MethodGet, "/api/v1/library", nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.setStatus(domain.ConnectionDisconnected)
		return fmt.Errorf("fetch library: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusUnauthorized {
			c.setStatus(domain.ConnectionError)
		} else {
			c.setStatus(domain.ConnectionDisconnected)
		}
		return fmt.Errorf("fetch library: status %d", resp.StatusCode)
	}

	var lib Library
	if err := json.UnmarshalRead(resp.Body, &lib); err != nil {
		c.setStatus(domain.ConnectionError)
		return fmt.Errorf("parse library: %w", err)
	}
	lib.Books = c.validBooks(lib.Books)

	c.setStatus(domain.ConnectionConnected)
	c.logger.Debug("fetched library",
		"books", len(lib.Books),
		"positions", len(lib.Positions),
	)

	c.mu.RLock()
	handler := c.handler
	c.mu.RUnlock()
	if handler == nil {
		return nil
	}
	return handler.HandleLibrary(ctx, lib)
}

// validBooks drops catalog entries that fail validation. A single
// malformed record must not abort the whole refresh.
func (c *Client) validBooks(books []RemoteBook) []RemoteBook {
	kept := books[:0]
	for _, book := range books {
		if err := bookValidator.Validate(book); err != nil {
			c.logger.Warn("dropping malformed catalog entry",
				"book_id", book.ID,
				"error", err,
			)
			continue
		}
		kept = append(kept, book)
	}
	return kept
}

// Ping probes the server's health endpoint and updates status.
func (c *Client) Ping(ctx context.Context) bool {
	if c.Offline() {
		return false
	}

	req, err := c.newRequest(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.setStatus(domain.ConnectionDisconnected)
		return false
	}
	defer resp.Body.Close()

	ok := resp.StatusCode == http.StatusOK
	if ok {
		c.setStatus(domain.ConnectionConnected)
	} else {
		c.setStatus(domain.ConnectionError)
	}
	return ok
}

// newRequest builds a request with bearer auth against the base URL.
func (c *Client) newRequest(ctx context.Context, method, path string, body *bytes.Reader) (*http.Request, error) {
	u, err := url.JoinPath(c.baseURL, path)
	if err != nil {
		return nil, fmt.Errorf("build request URL: %w", err)
	}

	var req *http.Request
	if body != nil {
		req, err = http.NewRequestWithContext(ctx, method, u, body)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, u, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")

	return req, nil
}
