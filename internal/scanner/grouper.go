package scanner

import (
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
)

// group is one prospective book: the directory (relative to the scan
// root) anchoring it and every file that belongs to it. Standalone
// marks a single audio file sitting directly in the scan root.
type group struct {
	Root       string
	Standalone bool
	Files      []WalkResult
}

// Grouper clusters walked files into prospective books.
//
// Grouping rules:
//   - A single audio file in the scan root is a standalone book.
//     Root-level images sharing its name stem ride along as covers.
//   - A directory containing audio files is one book, including
//     everything beneath it.
//   - Disc-style subdirectories (CD1/, Disc 2/, disk3/) collapse into
//     the parent book.
//   - Nested author/book layouts resolve to one book per leaf
//     directory that holds audio.
type Grouper struct {
	logger *slog.Logger
}

// NewGrouper creates a new grouper.
func NewGrouper(logger *slog.Logger) *Grouper {
	return &Grouper{
		logger: logger,
	}
}

// Group clusters files into prospective books. Files that belong to
// no book, like loose text in the scan root or folders without any
// audio, are dropped with a debug log. Groups and their files come
// back in path order so repeated scans are deterministic.
func (g *Grouper) Group(files []WalkResult) []group {
	itemDirs := make(map[string]bool)
	standalone := make(map[string]*group)

	for _, f := range files {
		if !isAudioPath(f.RelPath) {
			continue
		}
		dir := itemDirFor(f.RelPath)
		if dir == "." {
			standalone[f.RelPath] = &group{
				Root:       f.RelPath,
				Standalone: true,
				Files:      []WalkResult{f},
			}
			continue
		}
		itemDirs[dir] = true
	}

	dirGroups := make(map[string]*group, len(itemDirs))
	for dir := range itemDirs {
		dirGroups[dir] = &group{Root: dir}
	}

	for _, f := range files {
		dir := filepath.Dir(f.RelPath)
		if dir == "." {
			if isAudioPath(f.RelPath) {
				continue // Already a standalone group.
			}
			if owner := standaloneOwner(standalone, f.RelPath); owner != nil {
				owner.Files = append(owner.Files, f)
				continue
			}
			g.logger.Debug("skipping loose file in scan root", "path", f.RelPath)
			continue
		}

		if grp := deepestItemDir(dirGroups, dir); grp != nil {
			grp.Files = append(grp.Files, f)
			continue
		}
		g.logger.Debug("skipping file outside any book", "path", f.RelPath)
	}

	out := make([]group, 0, len(dirGroups)+len(standalone))
	for _, grp := range dirGroups {
		sort.Slice(grp.Files, func(i, j int) bool { return grp.Files[i].RelPath < grp.Files[j].RelPath })
		out = append(out, *grp)
	}
	for _, grp := range standalone {
		sort.Slice(grp.Files, func(i, j int) bool { return grp.Files[i].RelPath < grp.Files[j].RelPath })
		out = append(out, *grp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Root < out[j].Root })

	return out
}

// itemDirFor returns the directory that anchors the book owning the
// audio file at rel, collapsing disc-style directories into their
// parent.
func itemDirFor(rel string) string {
	dir := filepath.Dir(rel)
	if dir != "." && isDiscDir(filepath.Base(dir)) {
		parent := filepath.Dir(dir)
		if parent != "." {
			return parent
		}
	}
	return dir
}

// deepestItemDir finds the group whose root is the nearest ancestor
// of dir, or nil when no book claims it.
func deepestItemDir(groups map[string]*group, dir string) *group {
	for d := dir; d != "." && d != string(filepath.Separator); d = filepath.Dir(d) {
		if grp, ok := groups[d]; ok {
			return grp
		}
	}
	return nil
}

// standaloneOwner matches a root-level companion file (cover art,
// mostly) to the standalone book sharing its name stem.
func standaloneOwner(standalone map[string]*group, rel string) *group {
	stem := strings.TrimSuffix(rel, filepath.Ext(rel))
	for audioRel, grp := range standalone {
		if strings.TrimSuffix(audioRel, filepath.Ext(audioRel)) == stem {
			return grp
		}
	}
	return nil
}

// isDiscDir reports whether a directory name looks like a disc
// subdirectory (cd1, disc 2, disk03).
func isDiscDir(name string) bool {
	name = strings.ToLower(name)

	for _, pattern := range []string{"cd", "disc", "disk"} {
		if after, ok := strings.CutPrefix(name, pattern); ok {
			rest := strings.TrimSpace(after)
			if rest != "" && rest[0] >= '0' && rest[0] <= '9' {
				return true
			}
		}
	}

	return false
}
