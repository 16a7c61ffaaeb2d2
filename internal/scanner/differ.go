package scanner

import (
	"fmt"

	"github.com/storylineapp/storyline-core/internal/domain"
)

// Diff maps a scan pass onto the stored mirror. Matching goes by book
// path first, then by shared file inodes so renamed or moved books
// keep their identity. Matched books that changed adopt the stored
// record's ID and CreatedAt so progress and timing rows stay attached.
// Remote mirror records are ignored; only sideloaded books are ever
// removed.
func Diff(scanned []*Result, existing []*domain.Book) *DiffResult {
	byPath := make(map[string]*domain.Book)
	byInode := make(map[uint64]*domain.Book)
	local := make([]*domain.Book, 0, len(existing))
	for _, b := range existing {
		if !b.IsLocalOnly() {
			continue
		}
		local = append(local, b)
		byPath[b.Path] = b
		for _, f := range b.Files {
			if f.Inode > 0 {
				byInode[f.Inode] = b
			}
		}
	}

	diff := &DiffResult{}
	matched := make(map[string]bool, len(local))

	for _, res := range scanned {
		match := byPath[res.Book.Path]
		if match == nil {
			for _, f := range res.Book.Files {
				if f.Inode == 0 {
					continue
				}
				if b := byInode[f.Inode]; b != nil && !matched[b.ID] {
					match = b
					break
				}
			}
		}

		if match == nil || matched[match.ID] {
			diff.Create = append(diff.Create, res)
			continue
		}

		matched[match.ID] = true
		if !bookChanged(match, res.Book) {
			diff.Unchanged++
			continue
		}

		res.Book.ID = match.ID
		res.Book.CreatedAt = match.CreatedAt
		res.Book.Touch()
		diff.Update = append(diff.Update, res)
	}

	for _, b := range local {
		if !matched[b.ID] {
			diff.RemoveIDs = append(diff.RemoveIDs, b.ID)
		}
	}

	return diff
}

// bookChanged reports whether a rescan produced a materially different
// record. File identity goes by inode when available, by name
// otherwise, plus size and modtime to catch rewrites in place.
func bookChanged(old, scanned *domain.Book) bool {
	if old.Title != scanned.Title || old.Path != scanned.Path {
		return true
	}
	if len(old.Files) != len(scanned.Files) {
		return true
	}

	sigs := make(map[string]int, len(old.Files))
	for _, f := range old.Files {
		sigs[fileSig(f)]++
	}
	for _, f := range scanned.Files {
		sig := fileSig(f)
		sigs[sig]--
		if sigs[sig] < 0 {
			return true
		}
	}
	return false
}

func fileSig(f domain.MediaFile) string {
	if f.Inode > 0 {
		return fmt.Sprintf("i:%d:%d:%d", f.Inode, f.Size, f.ModTime)
	}
	return fmt.Sprintf("p:%s:%d:%d", f.Filename, f.Size, f.ModTime)
}
