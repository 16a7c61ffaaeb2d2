// Package persist stores the sync engine's durable state as JSON
// files under the daemon's data directory.
package persist

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"encoding/json/v2"

	"github.com/storylineapp/storyline-core/internal/domain"
)

const (
	queueFile   = "progress_queue.json"
	historyFile = "sync_history.json"
)

// FileStore reads and writes whole state files atomically: marshal,
// write a temp file in the same directory, fsync, rename over the
// destination. A crash mid-write leaves the previous file intact.
type FileStore struct {
	dir string
}

// NewFileStore creates the data directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// LoadQueue reads the pending-sync queue. A missing file is an empty
// queue.
func (s *FileStore) LoadQueue(ctx context.Context) (map[string]domain.PendingProgressSync, error) {
	queue := make(map[string]domain.PendingProgressSync)
	if err := s.load(ctx, queueFile, &queue); err != nil {
		return nil, err
	}
	return queue, nil
}

// SaveQueue writes the pending-sync queue.
func (s *FileStore) SaveQueue(ctx context.Context, queue map[string]domain.PendingProgressSync) error {
	return s.save(ctx, queueFile, queue)
}

// LoadHistory reads the per-book sync audit logs. A missing file is an
// empty history.
func (s *FileStore) LoadHistory(ctx context.Context) (map[string]domain.SyncHistory, error) {
	history := make(map[string]domain.SyncHistory)
	if err := s.load(ctx, historyFile, &history); err != nil {
		return nil, err
	}
	return history, nil
}

// SaveHistory writes the per-book sync audit logs.
func (s *FileStore) SaveHistory(ctx context.Context, history map[string]domain.SyncHistory) error {
	return s.save(ctx, historyFile, history)
}

func (s *FileStore) load(ctx context.Context, name string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path := filepath.Join(s.dir, name)
	data, err := os.ReadFile(path) //#nosec G304 -- Path is daemon-owned data dir
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", name, err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

func (s *FileStore) save(ctx context.Context, name string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}

	path := filepath.Join(s.dir, name)

	// Write to temp file, rename on success (atomic)
	tmpPath := path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600) //#nosec G304 -- Path is daemon-owned data dir
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	defer os.Remove(tmpPath) // Clean up on failure

	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", name, err)
	}

	// Atomic rename
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename %s: %w", name, err)
	}
	return nil
}
