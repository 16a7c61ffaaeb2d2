package domain

// StorageKind tells where a book's content lives.
type StorageKind string

const (
	// StorageLocal marks a sideloaded book; progress is recorded
	// locally and never queued for upload.
	StorageLocal StorageKind = "local"
	// StorageRemote marks a book streamed from the media server.
	StorageRemote StorageKind = "remote"
)

// Book is one entry of the library mirror.
type Book struct {
	Record
	Title               string      `json:"title"`
	SortTitle           string      `json:"sort_title,omitempty"`
	Authors             []string    `json:"authors,omitempty"`
	Narrator            string      `json:"narrator,omitempty"`
	Description         string      `json:"description,omitempty"`
	DescriptionMarkdown string      `json:"description_markdown,omitempty"`
	CoverURL            string      `json:"cover_url,omitempty"`
	CoverBlurHash       string      `json:"cover_blur_hash,omitempty"`
	Href                string      `json:"href"`
	Path                string      `json:"path,omitempty"` // local content root, empty for remote books
	Storage             StorageKind `json:"storage"`
	HasNarration        bool        `json:"has_narration"`
	DurationSeconds     float64     `json:"duration_seconds"`
	Files               []MediaFile `json:"files,omitempty"`
}

// MediaFile is one file of a local book's content.
type MediaFile struct {
	ID       string  `json:"id"`
	Path     string  `json:"path"`
	Filename string  `json:"filename"`
	Kind     string  `json:"kind"` // audio, text, image
	Format   string  `json:"format"`
	Size     int64   `json:"size"`
	Duration float64 `json:"duration,omitempty"`
	Inode    uint64  `json:"inode"`
	ModTime  int64   `json:"mod_time"`
}

// IsLocalOnly reports whether the book never talks to the media
// server. Progress for local-only books is recorded, not queued.
func (b *Book) IsLocalOnly() bool {
	return b.Storage == StorageLocal
}

// PrimaryAuthor returns the first author, or empty.
func (b *Book) PrimaryAuthor() string {
	if len(b.Authors) == 0 {
		return ""
	}
	return b.Authors[0]
}

// FileByInode finds a media file by its inode.
// Used during rescans to match files after renames.
func (b *Book) FileByInode(inode uint64) *MediaFile {
	for i := range b.Files {
		if b.Files[i].Inode == inode {
			return &b.Files[i]
		}
	}
	return nil
}

// UpdateFile updates an existing media file or adds it if not found.
// Returns true if this was an update (ie. file existed), false if it was added.
func (b *Book) UpdateFile(file MediaFile) bool {
	// try to find by inode first (which handles renames).
	for i := range b.Files {
		if b.Files[i].Inode == file.Inode {
			b.Files[i] = file
			return true
		}
	}

	// Not found, add it.
	b.Files = append(b.Files, file)
	return false
}

// RemoveFileByInode removes a media file by inode.
// Returns true if a file was removed.
func (b *Book) RemoveFileByInode(inode uint64) bool {
	for i := range b.Files {
		if b.Files[i].Inode == inode {
			b.Files = append(b.Files[:i], b.Files[i+1:]...)
			return true
		}
	}
	return false
}
