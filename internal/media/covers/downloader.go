package covers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	// maxCoverSize caps downloads to prevent memory exhaustion.
	maxCoverSize = 10 * 1024 * 1024

	downloadTimeout = 30 * time.Second
)

// Downloader fetches remote covers into the cache.
type Downloader struct {
	httpClient *http.Client
	cache      *Cache
	logger     *slog.Logger
}

// NewDownloader creates a downloader backed by the given cache.
func NewDownloader(cache *Cache, logger *slog.Logger) *Downloader {
	return &Downloader{
		httpClient: &http.Client{Timeout: downloadTimeout},
		cache:      cache,
		logger:     logger,
	}
}

// Download fetches the cover at url, caches it for bookID, and
// returns the blurhash placeholder. An empty blurhash with nil error
// never happens: decode failures fail the download.
func (d *Downloader) Download(ctx context.Context, bookID, url string) (string, error) {
	if url == "" {
		return "", errors.New("empty cover URL")
	}

	ctx, cancel := context.WithTimeout(ctx, downloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download cover: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download cover: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxCoverSize))
	if err != nil {
		return "", fmt.Errorf("read cover: %w", err)
	}

	hash, err := BlurHash(data)
	if err != nil {
		return "", err
	}

	if err := d.cache.Save(bookID, data); err != nil {
		return "", err
	}

	if w, h, err := Dimensions(data); err == nil {
		d.logger.Debug("downloaded cover",
			"book_id", bookID,
			"size", len(data),
			"width", w,
			"height", h,
		)
	}

	return hash, nil
}
