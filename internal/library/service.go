// Package library orchestrates the book catalog: the remote mirror
// refreshed from the media server, sideloaded books found by the
// scanner, narration timing tables, covers and search.
package library

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/storylineapp/storyline-core/internal/domain"
	"github.com/storylineapp/storyline-core/internal/media/covers"
	"github.com/storylineapp/storyline-core/internal/progress"
	"github.com/storylineapp/storyline-core/internal/scanner"
	"github.com/storylineapp/storyline-core/internal/search"
	"github.com/storylineapp/storyline-core/internal/store"
	"github.com/storylineapp/storyline-core/internal/transport"
)

// PositionSink receives server-held positions discovered during a
// library refresh. The sync engine implements it.
type PositionSink interface {
	UpdateServerPositions(ctx context.Context, positions []progress.ServerPosition) error
}

// Service owns library state transitions. All mutations to the book
// mirror go through here.
type Service struct {
	store      *store.Store
	index      *search.Index
	scanner    *scanner.Scanner
	client     *transport.Client
	coverCache *covers.Cache
	downloader *covers.Downloader
	logger     *slog.Logger

	booksDir string

	mu   sync.Mutex // serializes rescans and refreshes
	sink PositionSink
}

// Options wire the service's collaborators.
type Options struct {
	Store      *store.Store
	Index      *search.Index
	Scanner    *scanner.Scanner
	Client     *transport.Client
	CoverCache *covers.Cache
	Downloader *covers.Downloader
	BooksDir   string
	Logger     *slog.Logger
}

// New creates the library service. The position sink is attached
// afterwards with SetPositionSink because the sync engine is built
// with the service as its catalog.
func New(opts Options) *Service {
	return &Service{
		store:      opts.Store,
		index:      opts.Index,
		scanner:    opts.Scanner,
		client:     opts.Client,
		coverCache: opts.CoverCache,
		downloader: opts.Downloader,
		booksDir:   opts.BooksDir,
		logger:     opts.Logger,
	}
}

// SetPositionSink attaches the sync engine. Call once at wiring time.
func (s *Service) SetPositionSink(sink PositionSink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sink = sink
}

// GetBook returns one book from the mirror.
func (s *Service) GetBook(ctx context.Context, bookID string) (*domain.Book, error) {
	return s.store.GetBook(ctx, bookID)
}

// ListBooks returns the full mirror sorted by title.
func (s *Service) ListBooks(ctx context.Context) ([]*domain.Book, error) {
	return s.store.ListBooks(ctx)
}

// SectionsForBook returns the narration timing table for a book, or
// an empty table when the book has no narration.
func (s *Service) SectionsForBook(ctx context.Context, bookID string) (domain.Sections, error) {
	sections, err := s.store.GetTimingTable(ctx, bookID)
	if errors.Is(err, store.ErrTimingNotFound) {
		return nil, nil
	}
	return sections, err
}

// IsLocalOnly reports whether a book's progress stays on this device.
// Implements the sync engine's catalog contract.
func (s *Service) IsLocalOnly(ctx context.Context, bookID string) (bool, error) {
	book, err := s.store.GetBook(ctx, bookID)
	if err != nil {
		return false, err
	}
	return book.IsLocalOnly(), nil
}

// Search runs a query against the bleve index.
func (s *Service) Search(ctx context.Context, params search.Params) (*search.Result, error) {
	return s.index.Search(ctx, params)
}

// RefreshFromServer fetches the media server's catalog. The transport
// calls back into HandleLibrary with the payload.
func (s *Service) RefreshFromServer(ctx context.Context) error {
	return s.client.FetchLibrary(ctx)
}

// HandleLibrary applies one fetched catalog: upserts the remote
// mirror, prunes remote books the server dropped, then feeds the
// server's positions into the sync engine. Implements the transport's
// library handler.
func (s *Service) HandleLibrary(ctx context.Context, lib transport.Library) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.store.ListBooks(ctx)
	if err != nil {
		return fmt.Errorf("list mirror: %w", err)
	}

	remoteByID := make(map[string]*domain.Book)
	for _, b := range existing {
		if b.Storage == domain.StorageRemote {
			remoteByID[b.ID] = b
		}
	}

	for _, rb := range lib.Books {
		seen := remoteByID[rb.ID]
		delete(remoteByID, rb.ID)

		book := s.mergeRemote(seen, rb)
		if err := s.store.UpsertBook(ctx, book); err != nil {
			s.logger.Error("failed to upsert remote book", "book_id", rb.ID, "error", err)
			continue
		}

		if len(rb.Sections) > 0 {
			if err := s.store.SaveTimingTable(ctx, book.ID, rb.Sections); err != nil {
				s.logger.Error("failed to save timing table", "book_id", book.ID, "error", err)
			}
		}

		if rb.CoverURL != "" && !s.coverCache.Exists(book.ID) {
			s.fetchCover(ctx, book, rb.CoverURL)
		}
	}

	// Whatever remains was dropped server-side.
	for id := range remoteByID {
		if err := s.removeBook(ctx, id); err != nil {
			s.logger.Error("failed to prune remote book", "book_id", id, "error", err)
		}
	}

	s.logger.Info("library refreshed",
		"books", len(lib.Books),
		"pruned", len(remoteByID),
		"positions", len(lib.Positions),
	)

	if s.sink == nil || len(lib.Positions) == 0 {
		return nil
	}

	positions := make([]progress.ServerPosition, 0, len(lib.Positions))
	for _, p := range lib.Positions {
		positions = append(positions, progress.ServerPosition{
			BookID:          p.BookID,
			Locator:         p.Locator,
			TimestampMillis: p.TimestampMillis,
		})
	}
	return s.sink.UpdateServerPositions(ctx, positions)
}

// mergeRemote folds a catalog entry onto the stored record, keeping
// local identity fields when the book was seen before.
func (s *Service) mergeRemote(seen *domain.Book, rb transport.RemoteBook) *domain.Book {
	book := &domain.Book{
		Title:           rb.Title,
		SortTitle:       sortTitle(rb.Title),
		Authors:         rb.Authors,
		Narrator:        rb.Narrator,
		Description:     rb.Description,
		CoverURL:        rb.CoverURL,
		Href:            rb.Href,
		Storage:         domain.StorageRemote,
		HasNarration:    rb.HasNarration,
		DurationSeconds: rb.DurationSeconds,
	}
	book.ID = rb.ID

	if rb.Description != "" {
		book.DescriptionMarkdown = descriptionMarkdown(rb.Description)
	}

	if seen != nil {
		book.CreatedAt = seen.CreatedAt
		book.CoverBlurHash = seen.CoverBlurHash
		book.UpdatedAt = time.Now()
	} else {
		book.InitTimestamps()
	}
	return book
}

// fetchCover downloads a remote cover and records its blurhash. Cover
// failures never fail a refresh.
func (s *Service) fetchCover(ctx context.Context, book *domain.Book, url string) {
	hash, err := s.downloader.Download(ctx, book.ID, url)
	if err != nil {
		s.logger.Warn("cover download failed", "book_id", book.ID, "error", err)
		return
	}

	book.CoverBlurHash = hash
	if err := s.store.UpsertBook(ctx, book); err != nil {
		s.logger.Error("failed to record cover blurhash", "book_id", book.ID, "error", err)
	}
}

// removeBook deletes a book and everything hanging off it.
func (s *Service) removeBook(ctx context.Context, bookID string) error {
	if err := s.store.DeleteTimingTable(ctx, bookID); err != nil {
		s.logger.Warn("failed to delete timing table", "book_id", bookID, "error", err)
	}
	if err := s.coverCache.Delete(bookID); err != nil {
		s.logger.Warn("failed to delete cover", "book_id", bookID, "error", err)
	}
	return s.store.DeleteBook(ctx, bookID)
}

// CoverPath returns the cached cover file for a book, or an error
// when none is cached.
func (s *Service) CoverPath(bookID string) (string, error) {
	if !s.coverCache.Exists(bookID) {
		return "", store.ErrNotFound
	}
	return s.coverCache.Path(bookID), nil
}

// Cover returns the cached cover bytes and their hash for ETag use.
func (s *Service) Cover(bookID string) ([]byte, string, error) {
	data, err := s.coverCache.Get(bookID)
	if err != nil {
		return nil, "", err
	}
	hash, err := s.coverCache.Hash(bookID)
	if err != nil {
		return nil, "", err
	}
	return data, hash, nil
}
