package scanner

import (
	"github.com/storylineapp/storyline-core/internal/domain"
)

// Result is one discovered sideloaded book: the assembled library
// record plus its narration timing table. Sections is empty when the
// content carries no overlay sidecars and no chapter marks.
type Result struct {
	Book     *domain.Book
	Sections domain.Sections
}

// Progress tracks scan progress for UI reporting.
type Progress struct {
	Phase       Phase
	CurrentItem string
	Current     int
	Errors      int
}

// Phase represents the current scan phase.
type Phase string

const (
	// PhaseWalking represents the file system walking phase.
	PhaseWalking Phase = "walking"
	// PhaseGrouping represents the file grouping phase.
	PhaseGrouping Phase = "grouping"
	// PhaseProbing represents the audio metadata probing phase.
	PhaseProbing Phase = "probing"
	// PhaseAssembling represents the book assembly phase.
	PhaseAssembling Phase = "assembling"
	// PhaseComplete represents the completion phase.
	PhaseComplete Phase = "complete"
)

// DiffResult describes how a scan pass maps onto the stored mirror.
type DiffResult struct {
	Create    []*Result
	Update    []*Result // Book identity rewritten to the matched record's
	RemoveIDs []string  // Stored local books no longer present on disk
	Unchanged int
}

// WalkResult represents a file discovered during walking.
type WalkResult struct {
	Path    string
	RelPath string
	Size    int64
	ModTime int64 // Unix millis
	Inode   uint64
}

// fileMeta is what the prober extracts from one audio file.
type fileMeta struct {
	Format   string
	Duration float64 // Seconds
	Title    string
	Album    string
	Artist   string
	Narrator string
	Comment  string
	Chapters []chapterMark
}

// chapterMark is one embedded chapter boundary, in seconds.
type chapterMark struct {
	Index int
	Title string
	Begin float64
	End   float64
}
