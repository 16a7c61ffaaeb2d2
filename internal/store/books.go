package store

import (
	"context"
	"encoding/json/v2"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/storylineapp/storyline-core/internal/domain"
)

const (
	bookPrefix        = "book:"
	bookByPathPrefix  = "idx:books:path:"
	bookByInodePrefix = "idx:books:inode:"
)

// Book Operations

// CreateBook creates a new book with its path and inode indexes.
// Returns ErrBookExists when the ID is already taken.
func (s *Store) CreateBook(ctx context.Context, book *domain.Book) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key := []byte(bookPrefix + book.ID)

	exists, err := s.exists(key)
	if err != nil {
		return fmt.Errorf("check book exists: %w", err)
	}
	if exists {
		return ErrBookExists
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return writeBookTxn(txn, book)
	})
	if err != nil {
		return fmt.Errorf("create book: %w", err)
	}

	if s.logger != nil {
		s.logger.LogAttrs(ctx, slog.LevelInfo, "book created",
			slog.String("id", book.ID),
			slog.String("title", book.Title),
			slog.String("storage", string(book.Storage)),
			slog.Int("files", len(book.Files)),
		)
	}

	s.emit(BookUpsertedEvent{Book: book})
	s.indexAsync(book)
	return nil
}

// UpsertBook creates or replaces a book. Stale path and inode indexes
// from the previous version are removed in the same transaction. This
// is the write path of library mirror refreshes.
func (s *Store) UpsertBook(ctx context.Context, book *domain.Book) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	old, err := s.GetBook(ctx, book.ID)
	if err != nil && !errors.Is(err, ErrBookNotFound) {
		return fmt.Errorf("load previous book: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if old != nil {
			if err := deleteBookIndexesTxn(txn, old); err != nil {
				return err
			}
		}
		return writeBookTxn(txn, book)
	})
	if err != nil {
		return fmt.Errorf("upsert book: %w", err)
	}

	s.emit(BookUpsertedEvent{Book: book})
	s.indexAsync(book)
	return nil
}

// writeBookTxn stores the book record plus its lookup indexes.
func writeBookTxn(txn *badger.Txn, book *domain.Book) error {
	data, err := json.Marshal(book)
	if err != nil {
		return fmt.Errorf("marshal book: %w", err)
	}

	if err := txn.Set([]byte(bookPrefix+book.ID), data); err != nil {
		return err
	}

	if book.Path != "" {
		if err := txn.Set([]byte(bookByPathPrefix+book.Path), []byte(book.ID)); err != nil {
			return err
		}
	}

	// Inode indexes give the file watcher O(1) lookups on change events
	for _, file := range book.Files {
		if file.Inode > 0 {
			inodeKey := []byte(fmt.Sprintf("%s%d", bookByInodePrefix, file.Inode))
			if err := txn.Set(inodeKey, []byte(book.ID)); err != nil {
				return err
			}
		}
	}
	return nil
}

// deleteBookIndexesTxn removes the book's lookup indexes.
func deleteBookIndexesTxn(txn *badger.Txn, book *domain.Book) error {
	if book.Path != "" {
		if err := txn.Delete([]byte(bookByPathPrefix + book.Path)); err != nil {
			return err
		}
	}
	for _, file := range book.Files {
		if file.Inode > 0 {
			inodeKey := []byte(fmt.Sprintf("%s%d", bookByInodePrefix, file.Inode))
			if err := txn.Delete(inodeKey); err != nil {
				return err
			}
		}
	}
	return nil
}

// GetBook retrieves a book by ID.
func (s *Store) GetBook(ctx context.Context, id string) (*domain.Book, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var book domain.Book
	err := s.get([]byte(bookPrefix+id), &book)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrBookNotFound
		}
		return nil, fmt.Errorf("get book: %w", err)
	}
	return &book, nil
}

// GetBookByPath retrieves a book by its content root path.
func (s *Store) GetBookByPath(ctx context.Context, path string) (*domain.Book, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	id, err := s.lookupID([]byte(bookByPathPrefix + path))
	if err != nil {
		return nil, err
	}
	return s.GetBook(ctx, id)
}

// GetBookByInode retrieves a book by one of its file inodes.
// This is used during file watching for fast lookups when a file
// changes on disk.
func (s *Store) GetBookByInode(ctx context.Context, inode uint64) (*domain.Book, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	inodeKey := []byte(fmt.Sprintf("%s%d", bookByInodePrefix, inode))
	id, err := s.lookupID(inodeKey)
	if err != nil {
		return nil, err
	}
	return s.GetBook(ctx, id)
}

// lookupID resolves an index key to the book ID it points at.
func (s *Store) lookupID(key []byte) (string, error) {
	var id string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			id = string(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", ErrBookNotFound
	}
	if err != nil {
		return "", fmt.Errorf("lookup book id: %w", err)
	}
	return id, nil
}

// ListBooks returns all books sorted by sort title.
func (s *Store) ListBooks(ctx context.Context) ([]*domain.Book, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prefix := []byte(bookPrefix)
	var books []*domain.Book

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()

			err := item.Value(func(val []byte) error {
				var book domain.Book
				if err := json.Unmarshal(val, &book); err != nil {
					return fmt.Errorf("unmarshal book %s: %w", item.Key(), err)
				}
				books = append(books, &book)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}

	sort.Slice(books, func(i, j int) bool {
		return strings.ToLower(sortKey(books[i])) < strings.ToLower(sortKey(books[j]))
	})
	return books, nil
}

func sortKey(b *domain.Book) string {
	if b.SortTitle != "" {
		return b.SortTitle
	}
	return b.Title
}

// CountBooks returns the number of books in the library.
func (s *Store) CountBooks(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	prefix := []byte(bookPrefix)
	count := 0

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false // Keys are enough for counting

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count books: %w", err)
	}
	return count, nil
}

// DeleteBook removes a book, its indexes and its timing table.
func (s *Store) DeleteBook(ctx context.Context, id string) error {
	book, err := s.GetBook(ctx, id)
	if err != nil {
		return err
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := deleteBookIndexesTxn(txn, book); err != nil {
			return err
		}
		if err := txn.Delete([]byte(timingPrefix + id)); err != nil {
			return err
		}
		return txn.Delete([]byte(bookPrefix + id))
	})
	if err != nil {
		return fmt.Errorf("delete book: %w", err)
	}

	if s.logger != nil {
		s.logger.LogAttrs(ctx, slog.LevelInfo, "book deleted",
			slog.String("id", id),
			slog.String("title", book.Title),
		)
	}

	s.emit(BookDeletedEvent{BookID: id})
	s.deindexAsync(id)
	return nil
}

// indexAsync pushes a book into the search index without blocking the
// write path.
func (s *Store) indexAsync(book *domain.Book) {
	indexer := s.searchIndexer
	if indexer == nil {
		return
	}
	go func() {
		if err := indexer.IndexBook(context.Background(), book); err != nil && s.logger != nil {
			s.logger.Warn("search index update failed",
				slog.String("book_id", book.ID), slog.Any("error", err))
		}
	}()
}

func (s *Store) deindexAsync(bookID string) {
	indexer := s.searchIndexer
	if indexer == nil {
		return
	}
	go func() {
		if err := indexer.DeleteBook(context.Background(), bookID); err != nil && s.logger != nil {
			s.logger.Warn("search index delete failed",
				slog.String("book_id", bookID), slog.Any("error", err))
		}
	}()
}
