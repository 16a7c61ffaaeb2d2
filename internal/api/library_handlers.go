package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	"github.com/storylineapp/storyline-core/internal/domain"
	"github.com/storylineapp/storyline-core/internal/search"
	"github.com/storylineapp/storyline-core/internal/sse"
)

func (s *Server) registerLibraryRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listBooks",
		Method:      http.MethodGet,
		Path:        "/api/v1/books",
		Summary:     "List books",
		Description: "Returns every book in the library mirror",
		Tags:        []string{"Library"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleListBooks)

	huma.Register(s.api, huma.Operation{
		OperationID: "getBook",
		Method:      http.MethodGet,
		Path:        "/api/v1/books/{id}",
		Summary:     "Get a book",
		Tags:        []string{"Library"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleGetBook)

	huma.Register(s.api, huma.Operation{
		OperationID: "getBookSections",
		Method:      http.MethodGet,
		Path:        "/api/v1/books/{id}/sections",
		Summary:     "Get narration timing",
		Description: "Returns the media-overlay timing tables; empty for books without narration",
		Tags:        []string{"Library"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleGetBookSections)

	huma.Register(s.api, huma.Operation{
		OperationID: "searchBooks",
		Method:      http.MethodGet,
		Path:        "/api/v1/search",
		Summary:     "Search the library",
		Description: "Full-text search over titles, authors and narrators with storage facets",
		Tags:        []string{"Library"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleSearchBooks)

	huma.Register(s.api, huma.Operation{
		OperationID: "importBook",
		Method:      http.MethodPost,
		Path:        "/api/v1/library/import",
		Summary:     "Import a local book",
		Description: "Scans a path on disk and adds the sideloaded book to the library",
		Tags:        []string{"Library"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleImportBook)

	huma.Register(s.api, huma.Operation{
		OperationID: "rescanLibrary",
		Method:      http.MethodPost,
		Path:        "/api/v1/library/rescan",
		Summary:     "Rescan the books directory",
		Tags:        []string{"Library"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleRescanLibrary)

	// Cover bytes stream through chi directly.
	s.router.Get("/api/v1/books/{id}/cover", s.requireDeviceHTTP(s.handleServeCover))
}

// === DTOs ===

// BookListOutput wraps the book list for huma.
type BookListOutput struct {
	Body struct {
		Books []*domain.Book `json:"books" doc:"Library mirror entries"`
		Total int            `json:"total" doc:"Number of books"`
	}
}

// BookInput addresses one book.
type BookInput struct {
	Authorization string `header:"Authorization"`
	ID            string `path:"id" doc:"Book ID"`
}

// BookOutput wraps one book for huma.
type BookOutput struct {
	Body *domain.Book
}

// BookSectionsOutput wraps a book's timing tables for huma.
type BookSectionsOutput struct {
	Body struct {
		BookID   string          `json:"book_id" doc:"Book ID"`
		Sections domain.Sections `json:"sections" doc:"Narration timing tables"`
	}
}

// SearchInput carries the search query and filters.
type SearchInput struct {
	Authorization string  `header:"Authorization"`
	Query         string  `query:"q" minLength:"1" doc:"Search text"`
	Storage       string  `query:"storage" enum:"local,remote," doc:"Restrict to a storage kind"`
	NarratedOnly  bool    `query:"narrated" doc:"Only books with narration timing"`
	MinDuration   float64 `query:"min_duration" minimum:"0" doc:"Minimum duration in seconds"`
	MaxDuration   float64 `query:"max_duration" minimum:"0" doc:"Maximum duration in seconds"`
	Limit         int     `query:"limit" default:"25" minimum:"1" maximum:"100" doc:"Results per page"`
	Offset        int     `query:"offset" minimum:"0" doc:"Result offset"`
}

// SearchOutput wraps search results for huma.
type SearchOutput struct {
	Body *search.Result
}

// ImportBookInput names the path to import.
type ImportBookInput struct {
	Authorization string `header:"Authorization"`
	Body          struct {
		Path string `json:"path" minLength:"1" doc:"Absolute path to a book file or directory"`
	}
}

// ScanSummaryResponse reports what a rescan changed.
type ScanSummaryResponse struct {
	Created   int `json:"created" doc:"Books added"`
	Updated   int `json:"updated" doc:"Books updated"`
	Removed   int `json:"removed" doc:"Books removed"`
	Unchanged int `json:"unchanged" doc:"Books untouched"`
}

// ScanSummaryOutput wraps the rescan summary for huma.
type ScanSummaryOutput struct {
	Body ScanSummaryResponse
}

// === Handlers ===

func (s *Server) handleListBooks(ctx context.Context, _ *AuthOnlyInput) (*BookListOutput, error) {
	if _, err := GetDevice(ctx); err != nil {
		return nil, err
	}

	books, err := s.services.Library.ListBooks(ctx)
	if err != nil {
		return nil, err
	}

	out := &BookListOutput{}
	out.Body.Books = books
	out.Body.Total = len(books)
	return out, nil
}

func (s *Server) handleGetBook(ctx context.Context, input *BookInput) (*BookOutput, error) {
	if _, err := GetDevice(ctx); err != nil {
		return nil, err
	}

	book, err := s.services.Library.GetBook(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	return &BookOutput{Body: book}, nil
}

func (s *Server) handleGetBookSections(ctx context.Context, input *BookInput) (*BookSectionsOutput, error) {
	if _, err := GetDevice(ctx); err != nil {
		return nil, err
	}

	// Confirm the book exists so a bad ID is a 404, not an empty table.
	if _, err := s.services.Library.GetBook(ctx, input.ID); err != nil {
		return nil, err
	}

	sections, err := s.services.Library.SectionsForBook(ctx, input.ID)
	if err != nil {
		return nil, err
	}

	out := &BookSectionsOutput{}
	out.Body.BookID = input.ID
	out.Body.Sections = sections
	return out, nil
}

func (s *Server) handleSearchBooks(ctx context.Context, input *SearchInput) (*SearchOutput, error) {
	if _, err := GetDevice(ctx); err != nil {
		return nil, err
	}

	result, err := s.services.Library.Search(ctx, search.Params{
		Query:        input.Query,
		Storage:      input.Storage,
		NarratedOnly: input.NarratedOnly,
		MinDuration:  input.MinDuration,
		MaxDuration:  input.MaxDuration,
		Limit:        input.Limit,
		Offset:       input.Offset,
	})
	if err != nil {
		return nil, err
	}
	return &SearchOutput{Body: result}, nil
}

func (s *Server) handleImportBook(ctx context.Context, input *ImportBookInput) (*BookOutput, error) {
	if _, err := GetDevice(ctx); err != nil {
		return nil, err
	}

	book, err := s.services.Library.ImportLocalBook(ctx, input.Body.Path)
	if err != nil {
		return nil, err
	}
	return &BookOutput{Body: book}, nil
}

func (s *Server) handleRescanLibrary(ctx context.Context, _ *AuthOnlyInput) (*ScanSummaryOutput, error) {
	if _, err := GetDevice(ctx); err != nil {
		return nil, err
	}

	s.sseManager.Emit(sse.NewScanStartedEvent())
	summary, err := s.services.Library.Rescan(ctx)
	if err != nil {
		return nil, err
	}
	s.sseManager.Emit(sse.NewScanCompleteEvent(summary.Created, summary.Updated, summary.Removed))

	return &ScanSummaryOutput{
		Body: ScanSummaryResponse{
			Created:   summary.Created,
			Updated:   summary.Updated,
			Removed:   summary.Removed,
			Unchanged: summary.Unchanged,
		},
	}, nil
}

// handleServeCover streams cached cover bytes.
func (s *Server) handleServeCover(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	path, err := s.services.Library.CoverPath(id)
	if err != nil {
		http.Error(w, "cover not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Cache-Control", CacheOneDay)
	http.ServeFile(w, r, path)
}
