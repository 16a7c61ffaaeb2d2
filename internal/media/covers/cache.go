// Package covers manages the on-disk cover cache: copies of local
// cover sidecars, artwork extracted from audio files, and downloads
// from the media server, plus blurhash placeholders for all of them.
package covers

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Cache stores one cover image per book under {dataDir}/covers.
// Safe for concurrent use.
type Cache struct {
	dir string
	mu  sync.RWMutex
}

// NewCache creates the cover directory under dataDir if needed.
func NewCache(dataDir string) (*Cache, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("data directory cannot be empty")
	}

	dir := filepath.Join(dataDir, "covers")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create covers directory: %w", err)
	}

	return &Cache{dir: dir}, nil
}

// Save stores cover data for a book, replacing any existing cover.
func (c *Cache) Save(bookID string, data []byte) error {
	if bookID == "" {
		return fmt.Errorf("book ID cannot be empty")
	}
	if len(data) == 0 {
		return fmt.Errorf("cover data cannot be empty")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.WriteFile(c.Path(bookID), data, 0644); err != nil {
		return fmt.Errorf("write cover: %w", err)
	}
	return nil
}

// SaveFromFile copies a cover sidecar found next to a book's content
// into the cache.
func (c *Cache) SaveFromFile(bookID, srcPath string) error {
	data, err := os.ReadFile(srcPath)
	if err != nil {
		return fmt.Errorf("read cover source: %w", err)
	}
	return c.Save(bookID, data)
}

// Get returns the cached cover bytes for a book.
func (c *Cache) Get(bookID string) ([]byte, error) {
	if bookID == "" {
		return nil, fmt.Errorf("book ID cannot be empty")
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	data, err := os.ReadFile(c.Path(bookID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no cover cached for %s: %w", bookID, err)
		}
		return nil, fmt.Errorf("read cover: %w", err)
	}
	return data, nil
}

// Exists reports whether a cover is cached for the book.
func (c *Cache) Exists(bookID string) bool {
	if bookID == "" {
		return false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	_, err := os.Stat(c.Path(bookID))
	return err == nil
}

// Delete removes a book's cached cover. Missing covers are not an
// error.
func (c *Cache) Delete(bookID string) error {
	if bookID == "" {
		return fmt.Errorf("book ID cannot be empty")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.Remove(c.Path(bookID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete cover: %w", err)
	}
	return nil
}

// Hash returns the hex SHA256 of the cached cover, for ETag use.
func (c *Cache) Hash(bookID string) (string, error) {
	data, err := c.Get(bookID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", sha256.Sum256(data)), nil
}

// Path returns the cache file path for a book's cover.
func (c *Cache) Path(bookID string) string {
	return filepath.Join(c.dir, bookID+".jpg")
}
