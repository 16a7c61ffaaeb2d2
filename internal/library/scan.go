package library

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/storylineapp/storyline-core/internal/domain"
	"github.com/storylineapp/storyline-core/internal/media/covers"
	"github.com/storylineapp/storyline-core/internal/scanner"
)

// ScanSummary reports what a rescan changed.
type ScanSummary struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Removed   int `json:"removed"`
	Unchanged int `json:"unchanged"`
}

// Rescan walks the books directory and reconciles the mirror with
// what is on disk. Safe to call repeatedly; concurrent calls
// serialize.
func (s *Service) Rescan(ctx context.Context) (ScanSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var summary ScanSummary

	if s.booksDir == "" {
		return summary, nil
	}
	if _, err := os.Stat(s.booksDir); err != nil {
		return summary, fmt.Errorf("books directory: %w", err)
	}

	results, err := s.scanner.Scan(ctx, s.booksDir, scanner.Options{})
	if err != nil {
		return summary, fmt.Errorf("scan: %w", err)
	}

	existing, err := s.store.ListBooks(ctx)
	if err != nil {
		return summary, fmt.Errorf("list mirror: %w", err)
	}

	diff := scanner.Diff(results, existing)
	summary.Unchanged = diff.Unchanged

	for _, res := range diff.Create {
		if err := s.applyScanned(ctx, res, false); err != nil {
			s.logger.Error("failed to add scanned book", "path", res.Book.Path, "error", err)
			continue
		}
		summary.Created++
	}
	for _, res := range diff.Update {
		if err := s.applyScanned(ctx, res, true); err != nil {
			s.logger.Error("failed to update scanned book", "path", res.Book.Path, "error", err)
			continue
		}
		summary.Updated++
	}
	for _, bookID := range diff.RemoveIDs {
		if err := s.removeBook(ctx, bookID); err != nil {
			s.logger.Error("failed to remove vanished book", "book_id", bookID, "error", err)
			continue
		}
		summary.Removed++
	}

	s.logger.Info("rescan complete",
		"created", summary.Created,
		"updated", summary.Updated,
		"removed", summary.Removed,
		"unchanged", summary.Unchanged,
	)
	return summary, nil
}

// ImportLocalBook scans a single path (a book directory or one audio
// file) and adds or refreshes it in the mirror.
func (s *Service) ImportLocalBook(ctx context.Context, path string) (*domain.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("import path: %w", err)
	}

	// Scan the parent in both cases. A directory scanned as its own
	// root degrades into standalone per-file groups; from the parent
	// it groups back into one book whose path is the directory. For a
	// file, the parent scan lets grouping see its siblings.
	root := filepath.Dir(path)

	results, err := s.scanner.Scan(ctx, root, scanner.Options{})
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}

	var match *scanner.Result
	for _, res := range results {
		if res.Book.Path == path || containsFile(res.Book, path) {
			match = res
			break
		}
		if info.IsDir() && underDir(res.Book.Path, path) {
			match = res
			break
		}
	}
	if match == nil {
		return nil, fmt.Errorf("no importable book found at %s", path)
	}

	existing, err := s.store.ListBooks(ctx)
	if err != nil {
		return nil, fmt.Errorf("list mirror: %w", err)
	}
	diff := scanner.Diff([]*scanner.Result{match}, existing)

	switch {
	case len(diff.Create) == 1:
		if err := s.applyScanned(ctx, diff.Create[0], false); err != nil {
			return nil, err
		}
		return diff.Create[0].Book, nil
	case len(diff.Update) == 1:
		if err := s.applyScanned(ctx, diff.Update[0], true); err != nil {
			return nil, err
		}
		return diff.Update[0].Book, nil
	default:
		// Unchanged: return the stored record.
		return s.store.GetBookByPath(ctx, match.Book.Path)
	}
}

// applyScanned persists one scan result: the book, its timing table,
// and its cover.
func (s *Service) applyScanned(ctx context.Context, res *scanner.Result, update bool) error {
	book := res.Book
	if book.Description != "" {
		book.DescriptionMarkdown = descriptionMarkdown(book.Description)
	}

	s.cacheLocalCover(ctx, book)

	var err error
	if update {
		err = s.store.UpsertBook(ctx, book)
	} else {
		err = s.store.CreateBook(ctx, book)
	}
	if err != nil {
		return fmt.Errorf("persist book: %w", err)
	}

	if len(res.Sections) > 0 {
		if err := s.store.SaveTimingTable(ctx, book.ID, res.Sections); err != nil {
			return fmt.Errorf("persist timing table: %w", err)
		}
	} else if update {
		if err := s.store.DeleteTimingTable(ctx, book.ID); err != nil {
			s.logger.Warn("failed to drop stale timing table", "book_id", book.ID, "error", err)
		}
	}
	return nil
}

// cacheLocalCover picks a cover for a sideloaded book: an image
// sidecar wins, then embedded artwork from the first audio file.
// Failures leave the book coverless.
func (s *Service) cacheLocalCover(ctx context.Context, book *domain.Book) {
	for _, f := range book.Files {
		if f.Kind != "image" {
			continue
		}
		if err := s.coverCache.SaveFromFile(book.ID, f.Path); err != nil {
			s.logger.Warn("failed to cache cover sidecar", "book_id", book.ID, "error", err)
			return
		}
		data, err := s.coverCache.Get(book.ID)
		if err == nil {
			if hash, err := covers.BlurHash(data); err == nil {
				book.CoverBlurHash = hash
			}
		}
		return
	}

	for _, f := range book.Files {
		if f.Kind != "audio" {
			continue
		}
		hash, err := covers.ExtractEmbedded(ctx, s.coverCache, book.ID, f.Path)
		if err != nil {
			s.logger.Debug("no artwork extracted", "book_id", book.ID, "path", f.Path, "error", err)
			return
		}
		if hash != "" {
			book.CoverBlurHash = hash
		}
		return
	}
}

func underDir(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func containsFile(book *domain.Book, path string) bool {
	for _, f := range book.Files {
		if f.Path == path {
			return true
		}
	}
	return false
}
