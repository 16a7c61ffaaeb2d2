package search

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storylineapp/storyline-core/internal/domain"
)

// setupTestIndex creates a temporary search index for testing.
func setupTestIndex(t *testing.T) *Index {
	t.Helper()

	index, err := New(Options{
		DataPath: t.TempDir(),
		Logger:   slog.New(slog.DiscardHandler),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })

	return index
}

func testBook(id, title string, authors ...string) *domain.Book {
	book := &domain.Book{
		Title:   title,
		Authors: authors,
		Storage: domain.StorageRemote,
		Href:    "books/" + id,
	}
	book.ID = id
	book.InitTimestamps()
	return book
}

func TestNewIndex(t *testing.T) {
	index := setupTestIndex(t)

	count, err := index.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), count)
}

func TestIndexBook(t *testing.T) {
	index := setupTestIndex(t)
	ctx := context.Background()

	err := index.IndexBook(ctx, testBook("book_1", "The Hobbit", "J.R.R. Tolkien"))
	require.NoError(t, err)

	count, err := index.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)

	// Reindexing the same ID replaces, not duplicates
	err = index.IndexBook(ctx, testBook("book_1", "The Hobbit, Revised", "J.R.R. Tolkien"))
	require.NoError(t, err)

	count, err = index.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}

func TestIndexBooks_Batch(t *testing.T) {
	index := setupTestIndex(t)

	books := []*domain.Book{
		testBook("book_1", "Book One"),
		testBook("book_2", "Book Two"),
		testBook("book_3", "Book Three"),
	}

	err := index.IndexBooks(context.Background(), books)
	require.NoError(t, err)

	count, err := index.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), count)
}

func TestDeleteBook(t *testing.T) {
	index := setupTestIndex(t)
	ctx := context.Background()

	err := index.IndexBook(ctx, testBook("book_1", "Test Book"))
	require.NoError(t, err)

	err = index.DeleteBook(ctx, "book_1")
	require.NoError(t, err)

	count, err := index.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), count)
}

func TestSearch_AuthorMatch(t *testing.T) {
	index := setupTestIndex(t)
	ctx := context.Background()

	books := []*domain.Book{
		testBook("book_1", "The Hobbit", "J.R.R. Tolkien"),
		testBook("book_2", "The Lord of the Rings", "J.R.R. Tolkien"),
		testBook("book_3", "Harry Potter", "J.K. Rowling"),
	}
	require.NoError(t, index.IndexBooks(ctx, books))

	result, err := index.Search(ctx, Params{
		Query: "Tolkien",
		Limit: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), result.Total)
	assert.Len(t, result.Hits, 2)
}

func TestSearch_TitleOutranksAuthor(t *testing.T) {
	index := setupTestIndex(t)
	ctx := context.Background()

	books := []*domain.Book{
		testBook("book_title", "The Dune Chronicles", "Frank Herbert"),
		testBook("book_author", "Heretics of Arrakis", "Dune Society"),
	}
	require.NoError(t, index.IndexBooks(ctx, books))

	result, err := index.Search(ctx, Params{
		Query: "Dune",
		Limit: 10,
	})
	require.NoError(t, err)
	require.Equal(t, uint64(2), result.Total)
	assert.Equal(t, "book_title", result.Hits[0].ID)
}

func TestSearch_Prefix(t *testing.T) {
	index := setupTestIndex(t)
	ctx := context.Background()

	require.NoError(t, index.IndexBook(ctx, testBook("book_1", "The Hobbit")))

	// "Hobb" is a prefix of "Hobbit" - the prefix clause should find it
	result, err := index.Search(ctx, Params{
		Query: "Hobb",
		Limit: 10,
	})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, result.Total, uint64(1))
}

func TestSearch_FuzzyTypo(t *testing.T) {
	index := setupTestIndex(t)
	ctx := context.Background()

	require.NoError(t, index.IndexBook(ctx, testBook("book_1", "The Hobbit")))

	// One edit away from "hobbit"
	result, err := index.Search(ctx, Params{
		Query: "hobit",
		Limit: 10,
	})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, result.Total, uint64(1))
}

func TestSearch_StorageFilter(t *testing.T) {
	index := setupTestIndex(t)
	ctx := context.Background()

	local := testBook("book_local", "Sideloaded Book")
	local.Storage = domain.StorageLocal
	remote := testBook("book_remote", "Server Book")

	require.NoError(t, index.IndexBook(ctx, local))
	require.NoError(t, index.IndexBook(ctx, remote))

	result, err := index.Search(ctx, Params{
		Storage: string(domain.StorageLocal),
		Limit:   10,
	})
	require.NoError(t, err)
	require.Equal(t, uint64(1), result.Total)
	assert.Equal(t, "book_local", result.Hits[0].ID)
	assert.Equal(t, "local", result.Hits[0].Storage)
}

func TestSearch_NarratedOnly(t *testing.T) {
	index := setupTestIndex(t)
	ctx := context.Background()

	narrated := testBook("book_narrated", "Spoken Words")
	narrated.HasNarration = true
	silent := testBook("book_silent", "Quiet Pages")

	require.NoError(t, index.IndexBook(ctx, narrated))
	require.NoError(t, index.IndexBook(ctx, silent))

	result, err := index.Search(ctx, Params{
		NarratedOnly: true,
		Limit:        10,
	})
	require.NoError(t, err)
	require.Equal(t, uint64(1), result.Total)
	assert.Equal(t, "book_narrated", result.Hits[0].ID)
	assert.True(t, result.Hits[0].HasNarration)
}

func TestSearch_DurationRange(t *testing.T) {
	index := setupTestIndex(t)
	ctx := context.Background()

	short := testBook("book_short", "Short Book")
	short.DurationSeconds = 3600
	medium := testBook("book_medium", "Medium Book")
	medium.DurationSeconds = 36000
	long := testBook("book_long", "Long Book")
	long.DurationSeconds = 72000

	require.NoError(t, index.IndexBooks(ctx, []*domain.Book{short, medium, long}))

	result, err := index.Search(ctx, Params{
		MinDuration: 10000,
		MaxDuration: 50000,
		Limit:       10,
	})
	require.NoError(t, err)
	require.Equal(t, uint64(1), result.Total)
	assert.Equal(t, "book_medium", result.Hits[0].ID)
}

func TestSearch_SortByDuration(t *testing.T) {
	index := setupTestIndex(t)
	ctx := context.Background()

	first := testBook("book_a", "Alpha")
	first.DurationSeconds = 100
	second := testBook("book_b", "Beta")
	second.DurationSeconds = 200
	third := testBook("book_c", "Gamma")
	third.DurationSeconds = 300

	require.NoError(t, index.IndexBooks(ctx, []*domain.Book{third, first, second}))

	result, err := index.Search(ctx, Params{
		SortBy:    "duration",
		SortOrder: "asc",
		Limit:     10,
	})
	require.NoError(t, err)
	require.Len(t, result.Hits, 3)
	assert.Equal(t, "book_a", result.Hits[0].ID)
	assert.Equal(t, "book_b", result.Hits[1].ID)
	assert.Equal(t, "book_c", result.Hits[2].ID)
}

func TestSearch_StorageFacet(t *testing.T) {
	index := setupTestIndex(t)
	ctx := context.Background()

	localOne := testBook("book_1", "One")
	localOne.Storage = domain.StorageLocal
	localTwo := testBook("book_2", "Two")
	localTwo.Storage = domain.StorageLocal
	remote := testBook("book_3", "Three")

	require.NoError(t, index.IndexBooks(ctx, []*domain.Book{localOne, localTwo, remote}))

	result, err := index.Search(ctx, Params{
		IncludeFacets: true,
		Limit:         10,
	})
	require.NoError(t, err)

	counts := make(map[string]int)
	for _, fc := range result.Facets.Storage {
		counts[fc.Value] = fc.Count
	}
	assert.Equal(t, 2, counts["local"])
	assert.Equal(t, 1, counts["remote"])
}

func TestRebuild(t *testing.T) {
	index := setupTestIndex(t)
	ctx := context.Background()

	require.NoError(t, index.IndexBook(ctx, testBook("book_1", "Test")))

	count, err := index.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)

	require.NoError(t, index.Rebuild())

	count, err = index.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), count)
}

func TestPersistence(t *testing.T) {
	dir := t.TempDir()
	logger := slog.New(slog.DiscardHandler)
	ctx := context.Background()

	index1, err := New(Options{DataPath: dir, Logger: logger})
	require.NoError(t, err)

	require.NoError(t, index1.IndexBook(ctx, testBook("book_1", "Test Book")))
	require.NoError(t, index1.Close())

	// Reopen and verify the document survived
	index2, err := New(Options{DataPath: dir, Logger: logger})
	require.NoError(t, err)
	defer index2.Close()

	count, err := index2.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)

	result, err := index2.Search(ctx, Params{Query: "Test", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), result.Total)
}

func TestMappingVersionTriggersRebuild(t *testing.T) {
	dir := t.TempDir()
	logger := slog.New(slog.DiscardHandler)
	ctx := context.Background()

	index1, err := New(Options{DataPath: dir, Logger: logger})
	require.NoError(t, err)
	require.NoError(t, index1.IndexBook(ctx, testBook("book_1", "Stale")))
	require.NoError(t, index1.Close())

	// Simulate an index written by an older mapping
	err = os.WriteFile(filepath.Join(dir, "search.version"), []byte("0"), 0644)
	require.NoError(t, err)

	index2, err := New(Options{DataPath: dir, Logger: logger})
	require.NoError(t, err)
	defer index2.Close()

	count, err := index2.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), count, "version mismatch should drop the old index")
}

func TestFromBook(t *testing.T) {
	book := testBook("book_123", "The Great Book", "Jane Author", "Co Writer")
	book.SortTitle = "Great Book, The"
	book.Narrator = "John Narrator"
	book.Description = "A wonderful tale"
	book.Storage = domain.StorageLocal
	book.HasNarration = true
	book.DurationSeconds = 7200

	doc := FromBook(book)

	assert.Equal(t, "book_123", doc.ID)
	assert.Equal(t, "The Great Book", doc.Title)
	assert.Equal(t, "Great Book, The", doc.SortTitle)
	assert.Equal(t, []string{"Jane Author", "Co Writer"}, doc.Authors)
	assert.Equal(t, "John Narrator", doc.Narrator)
	assert.Equal(t, "A wonderful tale", doc.Description)
	assert.Equal(t, "local", doc.Storage)
	assert.True(t, doc.HasNarration)
	assert.Equal(t, float64(7200), doc.Duration)
	assert.Equal(t, book.CreatedAt.UnixMilli(), doc.CreatedAt)
	assert.Equal(t, book.UpdatedAt.UnixMilli(), doc.UpdatedAt)
}
