package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storylineapp/storyline-core/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeMetaSource serves canned metadata keyed by base filename.
type fakeMetaSource struct {
	metas map[string]*fileMeta
}

func (f *fakeMetaSource) probe(_ context.Context, path string) (*fileMeta, error) {
	if m, ok := f.metas[filepath.Base(path)]; ok {
		return m, nil
	}
	return nil, fmt.Errorf("no metadata for %s", filepath.Base(path))
}

func writeFile(t *testing.T, root, rel string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func TestScan_DirectoryBook(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "The Stand/part1.m4b")
	writeFile(t, root, "The Stand/part2.m4b")
	writeFile(t, root, "The Stand/cover.jpg")

	s := New(1, testLogger())
	s.prober.source = &fakeMetaSource{metas: map[string]*fileMeta{
		"part1.m4b": {Duration: 100, Album: "The Stand", Artist: "Stephen King", Narrator: "Grover Gardner"},
		"part2.m4b": {Duration: 200, Album: "The Stand"},
	}}

	results, err := s.Scan(context.Background(), root, Options{})
	require.NoError(t, err)
	require.Len(t, results, 1)

	book := results[0].Book
	assert.Equal(t, "The Stand", book.Title)
	assert.Equal(t, []string{"Stephen King"}, book.Authors)
	assert.Equal(t, "Grover Gardner", book.Narrator)
	assert.Equal(t, domain.StorageLocal, book.Storage)
	assert.True(t, book.IsLocalOnly())
	assert.InDelta(t, 300.0, book.DurationSeconds, 0.001)
	assert.Len(t, book.Files, 3, "two audio files plus the cover")

	// No chapters and no sidecars: one section per file.
	sections := results[0].Sections
	require.Len(t, sections, 2)
	assert.True(t, book.HasNarration)
	assert.InDelta(t, 100.0, sections[0].Entries[0].End, 0.001)
	assert.InDelta(t, 300.0, sections[1].Entries[0].CumulativeAtEnd, 0.001, "cumulative spans the whole book")
}

func TestScan_ChapterMarksBecomeSections(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "Dune/dune.m4b")

	s := New(1, testLogger())
	s.prober.source = &fakeMetaSource{metas: map[string]*fileMeta{
		"dune.m4b": {
			Duration: 300,
			Album:    "Dune",
			Chapters: []chapterMark{
				{Index: 0, Title: "Book One", Begin: 0, End: 120},
				{Index: 1, Title: "Book Two", Begin: 120, End: 300},
			},
		},
	}}

	results, err := s.Scan(context.Background(), root, Options{})
	require.NoError(t, err)
	require.Len(t, results, 1)

	sections := results[0].Sections
	require.Len(t, sections, 2)
	assert.Equal(t, "Book One", sections[0].Label)
	assert.Equal(t, "Book Two", sections[1].Label)
	require.Len(t, sections[0].Entries, 1)
	assert.InDelta(t, 120.0, sections[0].Entries[0].End, 0.001)
	assert.InDelta(t, 300.0, sections[1].Entries[0].CumulativeAtEnd, 0.001)
}

func TestScan_StandaloneFileWithCover(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "hobbit.mp3")
	writeFile(t, root, "hobbit.jpg")

	s := New(1, testLogger())
	s.prober.source = &fakeMetaSource{metas: map[string]*fileMeta{
		"hobbit.mp3": {Duration: 90, Title: "The Hobbit", Artist: "J.R.R. Tolkien"},
	}}

	results, err := s.Scan(context.Background(), root, Options{})
	require.NoError(t, err)
	require.Len(t, results, 1)

	book := results[0].Book
	assert.Equal(t, "The Hobbit", book.Title, "single-file books take the title tag")
	assert.Len(t, book.Files, 2, "cover rides along by name stem")
}

func TestScan_FailedProbeFallsBackToFilename(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "Mystery Book/audio.mp3")

	s := New(1, testLogger())
	s.prober.source = &fakeMetaSource{metas: map[string]*fileMeta{}}

	results, err := s.Scan(context.Background(), root, Options{})
	require.NoError(t, err)
	require.Len(t, results, 1)

	book := results[0].Book
	assert.Equal(t, "Mystery Book", book.Title, "title falls back to directory name")
	assert.False(t, book.HasNarration, "unknown duration yields no narration")
	assert.Empty(t, results[0].Sections)
}

func TestScan_ReportsProgress(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "Book/a.mp3")

	s := New(1, testLogger())
	s.prober.source = &fakeMetaSource{metas: map[string]*fileMeta{
		"a.mp3": {Duration: 10, Album: "Book"},
	}}

	// The tracker serializes callbacks, so plain map access is fine.
	seen := make(map[Phase]bool)
	_, err := s.Scan(context.Background(), root, Options{
		OnProgress: func(p Progress) {
			seen[p.Phase] = true
		},
	})
	require.NoError(t, err)

	assert.True(t, seen[PhaseWalking])
	assert.True(t, seen[PhaseGrouping])
	assert.True(t, seen[PhaseComplete])
}

func TestGrouper_DiscDirsCollapse(t *testing.T) {
	g := NewGrouper(testLogger())

	groups := g.Group([]WalkResult{
		{RelPath: "Long Book/CD1/01.mp3", Path: "/lib/Long Book/CD1/01.mp3"},
		{RelPath: "Long Book/CD2/01.mp3", Path: "/lib/Long Book/CD2/01.mp3"},
		{RelPath: "Long Book/cover.jpg", Path: "/lib/Long Book/cover.jpg"},
	})

	require.Len(t, groups, 1, "disc directories collapse into one book")
	assert.Equal(t, "Long Book", groups[0].Root)
	assert.Len(t, groups[0].Files, 3)
}

func TestGrouper_NestedAuthorLayout(t *testing.T) {
	g := NewGrouper(testLogger())

	groups := g.Group([]WalkResult{
		{RelPath: "King/The Stand/a.mp3"},
		{RelPath: "King/The Shining/b.mp3"},
		{RelPath: "notes.txt"},
	})

	require.Len(t, groups, 2, "one book per leaf directory with audio")
	assert.Equal(t, "King/The Shining", groups[0].Root)
	assert.Equal(t, "King/The Stand", groups[1].Root)
}

func TestDiff_MatchesByPathAndInode(t *testing.T) {
	existing := &domain.Book{
		Title:   "Old Title",
		Path:    "/lib/Book",
		Storage: domain.StorageLocal,
		Files: []domain.MediaFile{
			{Filename: "a.mp3", Inode: 42, Size: 10, ModTime: 1},
		},
	}
	existing.ID = "bk-1"

	// Same inode, new path: rename detected, identity kept.
	scanned := &Result{Book: &domain.Book{
		Title:   "New Title",
		Path:    "/lib/Renamed",
		Storage: domain.StorageLocal,
		Files: []domain.MediaFile{
			{Filename: "a.mp3", Inode: 42, Size: 10, ModTime: 1},
		},
	}}
	scanned.Book.ID = "bk-temp"

	diff := Diff([]*Result{scanned}, []*domain.Book{existing})

	require.Len(t, diff.Update, 1)
	assert.Equal(t, "bk-1", diff.Update[0].Book.ID, "matched book keeps the stored identity")
	assert.Empty(t, diff.Create)
	assert.Empty(t, diff.RemoveIDs)
}

func TestDiff_RemovesMissingLocalBooks(t *testing.T) {
	gone := &domain.Book{Title: "Gone", Path: "/lib/Gone", Storage: domain.StorageLocal}
	gone.ID = "bk-gone"
	remote := &domain.Book{Title: "Remote", Storage: domain.StorageRemote}
	remote.ID = "bk-remote"

	diff := Diff(nil, []*domain.Book{gone, remote})

	assert.Equal(t, []string{"bk-gone"}, diff.RemoveIDs, "only local books are removed")
}

func TestDiff_UnchangedBookSkipped(t *testing.T) {
	existing := &domain.Book{
		Title:   "Same",
		Path:    "/lib/Same",
		Storage: domain.StorageLocal,
		Files:   []domain.MediaFile{{Filename: "a.mp3", Inode: 7, Size: 5, ModTime: 2}},
	}
	existing.ID = "bk-1"

	scanned := &Result{Book: &domain.Book{
		Title:   "Same",
		Path:    "/lib/Same",
		Storage: domain.StorageLocal,
		Files:   []domain.MediaFile{{Filename: "a.mp3", Inode: 7, Size: 5, ModTime: 2}},
	}}
	scanned.Book.ID = "bk-temp"

	diff := Diff([]*Result{scanned}, []*domain.Book{existing})

	assert.Equal(t, 1, diff.Unchanged)
	assert.Empty(t, diff.Create)
	assert.Empty(t, diff.Update)
}
