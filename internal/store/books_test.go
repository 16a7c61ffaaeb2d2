package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storylineapp/storyline-core/internal/domain"
)

// Helper function to create a test book
func createTestBook(id string) *domain.Book {
	now := time.Now()
	return &domain.Book{
		Record: domain.Record{
			ID:        id,
			CreatedAt: now,
			UpdatedAt: now,
		},
		Title:           "Test Book " + id,
		Authors:         []string{"Test Author"},
		Narrator:        "Test Narrator",
		Href:            "/books/" + id,
		Path:            "/library/" + id,
		Storage:         domain.StorageLocal,
		HasNarration:    true,
		DurationSeconds: 900,
		Files: []domain.MediaFile{
			{
				ID:       "mf-" + id + "-1",
				Path:     "/library/" + id + "/part1.m4b",
				Filename: "part1.m4b",
				Kind:     "audio",
				Format:   "m4b",
				Size:     1024000,
				Duration: 450,
				Inode:    1001,
				ModTime:  now.Unix(),
			},
			{
				ID:       "mf-" + id + "-2",
				Path:     "/library/" + id + "/part2.m4b",
				Filename: "part2.m4b",
				Kind:     "audio",
				Format:   "m4b",
				Size:     2048000,
				Duration: 450,
				Inode:    1002,
				ModTime:  now.Unix(),
			},
		},
	}
}

func TestCreateBook(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	book := createTestBook("book-001")
	require.NoError(t, s.CreateBook(ctx, book))

	retrieved, err := s.GetBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, book.Title, retrieved.Title)
	assert.Equal(t, book.Path, retrieved.Path)
	assert.Equal(t, domain.StorageLocal, retrieved.Storage)
	assert.Len(t, retrieved.Files, 2)
}

func TestCreateBook_Duplicate(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	book := createTestBook("book-dup")
	require.NoError(t, s.CreateBook(ctx, book))

	err := s.CreateBook(ctx, book)
	assert.ErrorIs(t, err, ErrBookExists)
}

func TestGetBook_NotFound(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.GetBook(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrBookNotFound)
}

func TestGetBookByPath(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	book := createTestBook("book-path")
	require.NoError(t, s.CreateBook(ctx, book))

	retrieved, err := s.GetBookByPath(ctx, book.Path)
	require.NoError(t, err)
	assert.Equal(t, book.ID, retrieved.ID)

	_, err = s.GetBookByPath(ctx, "/library/unknown")
	assert.ErrorIs(t, err, ErrBookNotFound)
}

func TestGetBookByInode(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	book := createTestBook("book-inode")
	require.NoError(t, s.CreateBook(ctx, book))

	retrieved, err := s.GetBookByInode(ctx, 1002)
	require.NoError(t, err)
	assert.Equal(t, book.ID, retrieved.ID)

	_, err = s.GetBookByInode(ctx, 9999)
	assert.ErrorIs(t, err, ErrBookNotFound)
}

func TestUpsertBook_ReindexesLookups(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	book := createTestBook("book-upsert")
	require.NoError(t, s.CreateBook(ctx, book))

	// Files moved: new path, new inodes
	updated := createTestBook("book-upsert")
	updated.Path = "/library/relocated"
	updated.Files = updated.Files[:1]
	updated.Files[0].Inode = 2002
	require.NoError(t, s.UpsertBook(ctx, updated))

	_, err := s.GetBookByPath(ctx, book.Path)
	assert.ErrorIs(t, err, ErrBookNotFound)
	_, err = s.GetBookByInode(ctx, 1001)
	assert.ErrorIs(t, err, ErrBookNotFound)

	retrieved, err := s.GetBookByInode(ctx, 2002)
	require.NoError(t, err)
	assert.Equal(t, "/library/relocated", retrieved.Path)
}

func TestUpsertBook_CreatesWhenMissing(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	book := createTestBook("book-fresh")
	require.NoError(t, s.UpsertBook(ctx, book))

	retrieved, err := s.GetBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, book.Title, retrieved.Title)
}

func TestListBooks_SortedBySortTitle(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	zebra := createTestBook("book-z")
	zebra.Title = "The Zebra Chronicles"
	zebra.SortTitle = "Zebra Chronicles, The"
	zebra.Path = "/library/zebra"
	require.NoError(t, s.CreateBook(ctx, zebra))

	apple := createTestBook("book-a")
	apple.Title = "apple season"
	apple.SortTitle = ""
	apple.Path = "/library/apple"
	require.NoError(t, s.CreateBook(ctx, apple))

	books, err := s.ListBooks(ctx)
	require.NoError(t, err)
	require.Len(t, books, 2)
	assert.Equal(t, "book-a", books[0].ID)
	assert.Equal(t, "book-z", books[1].ID)
}

func TestCountBooks(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	count, err := s.CountBooks(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	require.NoError(t, s.CreateBook(ctx, createTestBook("book-1")))

	second := createTestBook("book-2")
	second.Path = "/library/other"
	require.NoError(t, s.CreateBook(ctx, second))

	count, err = s.CountBooks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestDeleteBook(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	book := createTestBook("book-del")
	require.NoError(t, s.CreateBook(ctx, book))
	require.NoError(t, s.SaveTimingTable(ctx, book.ID, domain.Sections{{Index: 0, ID: "c1"}}))

	require.NoError(t, s.DeleteBook(ctx, book.ID))

	_, err := s.GetBook(ctx, book.ID)
	assert.ErrorIs(t, err, ErrBookNotFound)
	_, err = s.GetBookByPath(ctx, book.Path)
	assert.ErrorIs(t, err, ErrBookNotFound)
	_, err = s.GetBookByInode(ctx, 1001)
	assert.ErrorIs(t, err, ErrBookNotFound)
	_, err = s.GetTimingTable(ctx, book.ID)
	assert.ErrorIs(t, err, ErrTimingNotFound)
}

func TestDeleteBook_NotFound(t *testing.T) {
	s := setupTestStore(t)

	err := s.DeleteBook(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrBookNotFound)
}

func TestBookEventsEmitted(t *testing.T) {
	emitter := &recordingEmitter{}
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := New(dbPath, nil, emitter)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ctx := context.Background()
	book := createTestBook("book-ev")
	require.NoError(t, s.CreateBook(ctx, book))
	require.NoError(t, s.DeleteBook(ctx, book.ID))

	events := emitter.all()
	require.Len(t, events, 2)

	upserted, ok := events[0].(BookUpsertedEvent)
	require.True(t, ok)
	assert.Equal(t, "book-ev", upserted.Book.ID)

	deleted, ok := events[1].(BookDeletedEvent)
	require.True(t, ok)
	assert.Equal(t, "book-ev", deleted.BookID)
}

func TestSearchIndexerNotified(t *testing.T) {
	s := setupTestStore(t)
	indexer := &recordingIndexer{}
	s.SetSearchIndexer(indexer)

	ctx := context.Background()
	book := createTestBook("book-idx")
	require.NoError(t, s.CreateBook(ctx, book))
	require.NoError(t, s.DeleteBook(ctx, book.ID))

	// Index updates run on their own goroutines
	assert.Eventually(t, func() bool {
		indexed, deleted := indexer.counts()
		return indexed == 1 && deleted == 1
	}, time.Second, 10*time.Millisecond)
}
