package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/storylineapp/storyline-core/internal/domain"
)

const timingPrefix = "timing:"

// SaveTimingTable stores the narration timing table for a book. The
// table is the parsed, cumulative-filled section list playback runs on.
func (s *Store) SaveTimingTable(ctx context.Context, bookID string, sections domain.Sections) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if bookID == "" {
		return fmt.Errorf("save timing table: book id is required")
	}

	if err := s.set([]byte(timingPrefix+bookID), sections); err != nil {
		return fmt.Errorf("save timing table: %w", err)
	}
	return nil
}

// GetTimingTable retrieves the narration timing table for a book.
func (s *Store) GetTimingTable(ctx context.Context, bookID string) (domain.Sections, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var sections domain.Sections
	err := s.get([]byte(timingPrefix+bookID), &sections)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrTimingNotFound
		}
		return nil, fmt.Errorf("get timing table: %w", err)
	}
	return sections, nil
}

// DeleteTimingTable removes a book's timing table.
func (s *Store) DeleteTimingTable(ctx context.Context, bookID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.delete([]byte(timingPrefix + bookID)); err != nil {
		return fmt.Errorf("delete timing table: %w", err)
	}
	return nil
}
