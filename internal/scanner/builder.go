package scanner

import (
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/storylineapp/storyline-core/internal/domain"
	"github.com/storylineapp/storyline-core/internal/id"
	"github.com/storylineapp/storyline-core/internal/normalize"
	"github.com/storylineapp/storyline-core/internal/smil"
)

//nolint:gochecknoglobals // Extension tables are effectively constants.
var (
	audioExtensions = map[string]bool{
		".mp3": true, ".m4a": true, ".m4b": true, ".flac": true,
		".ogg": true, ".opus": true, ".aac": true, ".wma": true, ".wav": true,
	}

	// probeableExtensions are the formats audiometa can open. Other
	// audio formats are carried as files but get no probed metadata.
	probeableExtensions = map[string]bool{
		".mp3": true, ".m4a": true, ".m4b": true,
	}

	textExtensions = map[string]bool{
		".xhtml": true, ".html": true, ".htm": true,
		".txt": true, ".md": true, ".epub": true, ".smil": true,
	}

	imageExtensions = map[string]bool{
		".jpg": true, ".jpeg": true, ".png": true, ".webp": true, ".gif": true,
	}
)

func isAudioPath(p string) bool {
	return audioExtensions[strings.ToLower(filepath.Ext(p))]
}

func isProbeablePath(p string) bool {
	return probeableExtensions[strings.ToLower(filepath.Ext(p))]
}

// kindForPath classifies a file for the library record. Unrecognized
// extensions return "".
func kindForPath(p string) string {
	ext := strings.ToLower(filepath.Ext(p))
	switch {
	case audioExtensions[ext]:
		return "audio"
	case textExtensions[ext]:
		return "text"
	case imageExtensions[ext]:
		return "image"
	default:
		return ""
	}
}

// buildResult assembles one group into a library record plus its
// narration timing table.
//
// Sections come from the first source that yields any, in order:
// overlay sidecars (.smil), embedded chapter marks, then one section
// per audio file. Audio paths inside sections are relative to the
// book root so the library survives being moved.
func buildResult(root string, grp group, metas map[string]*fileMeta, logger *slog.Logger) (*Result, error) {
	var (
		files    []domain.MediaFile
		audio    []WalkResult
		sidecars []WalkResult
	)
	for _, f := range grp.Files {
		kind := kindForPath(f.RelPath)
		if kind == "" {
			logger.Debug("skipping unrecognized file", "path", f.RelPath)
			continue
		}
		if kind == "audio" {
			audio = append(audio, f)
		}
		if strings.EqualFold(filepath.Ext(f.RelPath), ".smil") {
			sidecars = append(sidecars, f)
		}

		mfID, err := id.Generate("mf")
		if err != nil {
			return nil, fmt.Errorf("generate file ID: %w", err)
		}
		mf := domain.MediaFile{
			ID:       mfID,
			Path:     f.Path,
			Filename: filepath.Base(f.Path),
			Kind:     kind,
			Format:   strings.TrimPrefix(strings.ToLower(filepath.Ext(f.RelPath)), "."),
			Size:     f.Size,
			Inode:    f.Inode,
			ModTime:  f.ModTime,
		}
		if m := metas[f.Path]; m != nil {
			mf.Duration = m.Duration
		}
		files = append(files, mf)
	}

	title, authors, narrator, description := pickMetadata(grp, audio, metas)

	sections := sectionsFromSidecars(grp, sidecars, logger)
	if len(sections) == 0 {
		sections = sectionsFromChapters(grp, audio, metas)
	}
	if len(sections) == 0 {
		sections = sectionsPerFile(grp, audio, metas)
	}
	sections = smil.FillCumulative(sections)

	duration := 0.0
	for _, f := range audio {
		if m := metas[f.Path]; m != nil {
			duration += m.Duration
		}
	}
	if duration == 0 {
		duration = sectionsTotal(sections)
	}

	hasNarration := false
	for _, sec := range sections {
		if sec.HasNarration() {
			hasNarration = true
			break
		}
	}

	bookID, err := id.Generate("bk")
	if err != nil {
		return nil, fmt.Errorf("generate book ID: %w", err)
	}

	book := &domain.Book{
		Title:           title,
		SortTitle:       normalize.SortTitle(title),
		Authors:         authors,
		Narrator:        narrator,
		Description:     description,
		Href:            filepath.ToSlash(grp.Root),
		Path:            filepath.Join(root, grp.Root),
		Storage:         domain.StorageLocal,
		HasNarration:    hasNarration,
		DurationSeconds: duration,
		Files:           files,
	}
	book.ID = bookID
	book.InitTimestamps()

	return &Result{Book: book, Sections: sections}, nil
}

// pickMetadata chooses book-level metadata from probed tags, falling
// back to names on disk. Album is the book-level tag; the per-file
// Title tag only stands in for single-file books, where it is not a
// chapter name.
func pickMetadata(grp group, audio []WalkResult, metas map[string]*fileMeta) (title string, authors []string, narrator, description string) {
	for _, f := range audio {
		m := metas[f.Path]
		if m == nil {
			continue
		}
		if title == "" && m.Album != "" {
			title = m.Album
		}
		if len(authors) == 0 && m.Artist != "" {
			authors = splitNames(m.Artist)
		}
		if narrator == "" && m.Narrator != "" {
			narrator = m.Narrator
		}
		if description == "" && m.Comment != "" {
			description = m.Comment
		}
	}

	if title == "" && len(audio) == 1 {
		if m := metas[audio[0].Path]; m != nil {
			title = m.Title
		}
	}
	if title == "" {
		title = stemOf(filepath.Base(grp.Root))
	}

	title = normalize.Clean(title)
	for i, a := range authors {
		authors[i] = normalize.Clean(a)
	}
	narrator = normalize.Clean(narrator)
	description = strings.ReplaceAll(description, "\x00", "")

	return title, authors, narrator, description
}

// sectionsFromSidecars parses overlay sidecars into sections, one per
// document. Entry hrefs and audio paths are rebased from the sidecar's
// directory onto the book root.
func sectionsFromSidecars(grp group, sidecars []WalkResult, logger *slog.Logger) domain.Sections {
	var sections domain.Sections
	for _, sc := range sidecars {
		f, err := os.Open(sc.Path)
		if err != nil {
			logger.Warn("failed to open overlay sidecar", "path", sc.Path, "error", err)
			continue
		}
		entries, err := smil.Parse(f)
		f.Close()
		if err != nil {
			logger.Warn("failed to parse overlay sidecar", "path", sc.Path, "error", err)
			continue
		}

		rel := grp.itemRel(sc)
		dir := path.Dir(rel)
		for i := range entries {
			if entries[i].AudioFile != "" {
				entries[i].AudioFile = path.Join(dir, entries[i].AudioFile)
			}
			if entries[i].Href != "" {
				entries[i].Href = path.Join(dir, entries[i].Href)
			}
		}

		stem := stemOf(path.Base(rel))
		sections = append(sections, domain.Section{
			Index:   len(sections),
			ID:      stem,
			Label:   sectionLabel(stem),
			Level:   1,
			Entries: entries,
		})
	}
	return sections
}

// sectionsFromChapters synthesizes one narrated section per embedded
// chapter mark. Each section holds a single entry spanning the
// chapter's clip within its file.
func sectionsFromChapters(grp group, audio []WalkResult, metas map[string]*fileMeta) domain.Sections {
	var sections domain.Sections
	for _, f := range audio {
		m := metas[f.Path]
		if m == nil {
			continue
		}
		rel := grp.itemRel(f)
		for _, ch := range m.Chapters {
			if ch.End <= ch.Begin {
				continue
			}
			label := ch.Title
			if label == "" {
				label = fmt.Sprintf("Chapter %d", len(sections)+1)
			}
			anchor := fmt.Sprintf("ch%03d", len(sections)+1)
			sections = append(sections, domain.Section{
				Index: len(sections),
				ID:    anchor,
				Label: normalize.Clean(label),
				Level: 1,
				Entries: []domain.NarrationEntry{{
					AnchorID:  anchor,
					AudioFile: rel,
					Begin:     ch.Begin,
					End:       ch.End,
				}},
			})
		}
	}
	return sections
}

// sectionsPerFile falls back to one section per audio file. Files
// whose duration is unknown yield no section since playback cannot
// schedule them.
func sectionsPerFile(grp group, audio []WalkResult, metas map[string]*fileMeta) domain.Sections {
	var sections domain.Sections
	for _, f := range audio {
		m := metas[f.Path]
		if m == nil || m.Duration <= 0 {
			continue
		}
		rel := grp.itemRel(f)
		label := m.Title
		if label == "" {
			label = stemOf(path.Base(rel))
		}
		anchor := fmt.Sprintf("part%03d", len(sections)+1)
		sections = append(sections, domain.Section{
			Index: len(sections),
			ID:    anchor,
			Label: normalize.Clean(label),
			Level: 1,
			Entries: []domain.NarrationEntry{{
				AnchorID:  anchor,
				AudioFile: rel,
				Begin:     0,
				End:       m.Duration,
			}},
		})
	}
	return sections
}

// itemRel returns f's path relative to the group root, slash
// separated. Standalone groups resolve to the bare filename.
func (g group) itemRel(f WalkResult) string {
	if g.Standalone {
		return filepath.Base(f.RelPath)
	}
	rel, err := filepath.Rel(g.Root, f.RelPath)
	if err != nil {
		return filepath.ToSlash(f.RelPath)
	}
	return filepath.ToSlash(rel)
}

func sectionsTotal(sections domain.Sections) float64 {
	for i := len(sections) - 1; i >= 0; i-- {
		if n := len(sections[i].Entries); n > 0 {
			return sections[i].Entries[n-1].CumulativeAtEnd
		}
	}
	return 0
}

func stemOf(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

func sectionLabel(stem string) string {
	s := strings.NewReplacer("_", " ", "-", " ").Replace(stem)
	return strings.Join(strings.Fields(s), " ")
}

// splitNames splits a multi-value tag on semicolons. Commas stay
// intact since "Last, First" is a common single-author form.
func splitNames(s string) []string {
	var names []string
	for _, part := range strings.Split(s, ";") {
		if p := strings.TrimSpace(part); p != "" {
			names = append(names, p)
		}
	}
	return names
}
