package domain

// NarrationEntry maps one text anchor to a clip of an audio file.
// Entries are immutable once parsed and ordered within their section.
// CumulativeAtEnd is the book-level narrated duration at the end of the
// clip: monotonically non-decreasing across a section's entries and,
// with sections concatenated in book order, across the whole book.
type NarrationEntry struct {
	AnchorID  string `json:"anchor_id"`
	Href      string `json:"href"`
	AudioFile string `json:"audio_file"`

	Begin float64 `json:"begin"` // seconds within AudioFile
	End   float64 `json:"end"`

	CumulativeAtEnd float64 `json:"cumulative_at_end"`
}

// ClipDuration returns the narrated length of the entry in seconds.
func (e NarrationEntry) ClipDuration() float64 {
	return e.End - e.Begin
}

// Section is one reading-order unit of a book with its narration
// timing. Sections are immutable for the lifetime of a loaded book.
type Section struct {
	Index   int              `json:"index"`
	ID      string           `json:"id"`
	Label   string           `json:"label,omitempty"`
	Level   int              `json:"level,omitempty"`
	Entries []NarrationEntry `json:"entries"`
}

// HasNarration reports whether the section has any timed entries.
// Playback skips sections without narration.
func (s Section) HasNarration() bool {
	return len(s.Entries) > 0
}

// Sections is a book's full reading order. All elapsed/duration math
// is a pure function of this list and a position; callers recompute it
// per snapshot rather than caching across position changes.
type Sections []Section

// Valid reports whether pos addresses an existing entry.
func (ss Sections) Valid(pos PlaybackPosition) bool {
	if pos.SectionIndex < 0 || pos.SectionIndex >= len(ss) {
		return false
	}
	return pos.EntryIndex >= 0 && pos.EntryIndex < len(ss[pos.SectionIndex].Entries)
}

// EntryAt returns the entry addressed by pos.
func (ss Sections) EntryAt(pos PlaybackPosition) (NarrationEntry, bool) {
	if !ss.Valid(pos) {
		return NarrationEntry{}, false
	}
	return ss[pos.SectionIndex].Entries[pos.EntryIndex], true
}

// FirstNarrated returns the index of the first section with narration.
func (ss Sections) FirstNarrated() (int, bool) {
	return ss.NextNarratedFrom(0)
}

// NextNarratedFrom returns the index of the first narrated section at
// or after i.
func (ss Sections) NextNarratedFrom(i int) (int, bool) {
	if i < 0 {
		i = 0
	}
	for ; i < len(ss); i++ {
		if ss[i].HasNarration() {
			return i, true
		}
	}
	return 0, false
}

// sectionBase returns the book-level cumulative duration at the start
// of section i: the cumulative-at-end of the nearest preceding narrated
// section's last entry, or 0 when none precedes it.
func (ss Sections) sectionBase(i int) float64 {
	for j := i - 1; j >= 0; j-- {
		if n := len(ss[j].Entries); n > 0 {
			return ss[j].Entries[n-1].CumulativeAtEnd
		}
	}
	return 0
}

// ChapterTotal returns the narrated duration of section i in seconds.
func (ss Sections) ChapterTotal(i int) float64 {
	if i < 0 || i >= len(ss) || !ss[i].HasNarration() {
		return 0
	}
	entries := ss[i].Entries
	return entries[len(entries)-1].CumulativeAtEnd - ss.sectionBase(i)
}

// BookTotal returns the narrated duration of the whole book in seconds.
func (ss Sections) BookTotal() float64 {
	for i := len(ss) - 1; i >= 0; i-- {
		if n := len(ss[i].Entries); n > 0 {
			return ss[i].Entries[n-1].CumulativeAtEnd
		}
	}
	return 0
}

// Elapsed is the derived progress of a position, in seconds.
type Elapsed struct {
	Chapter      float64
	ChapterTotal float64
	Book         float64
	BookTotal    float64
}

// ElapsedAt computes chapter and book progress for a position at time t
// within the current entry's audio file. Time before the entry's begin
// is floored to the entry start.
func (ss Sections) ElapsedAt(pos PlaybackPosition, t float64) Elapsed {
	if !ss.Valid(pos) {
		return Elapsed{BookTotal: ss.BookTotal()}
	}

	section := ss[pos.SectionIndex]
	entry := section.Entries[pos.EntryIndex]
	base := ss.sectionBase(pos.SectionIndex)

	// Cumulative at the start of the current entry.
	startCum := base
	if pos.EntryIndex > 0 {
		startCum = section.Entries[pos.EntryIndex-1].CumulativeAtEnd
	}

	within := t - entry.Begin
	if within < 0 {
		within = 0
	}

	book := startCum + within
	return Elapsed{
		Chapter:      book - base,
		ChapterTotal: section.Entries[len(section.Entries)-1].CumulativeAtEnd - base,
		Book:         book,
		BookTotal:    ss.BookTotal(),
	}
}

// FindFragment returns the index of the entry in section i whose anchor
// id equals fragment.
func (ss Sections) FindFragment(i int, fragment string) (int, bool) {
	if i < 0 || i >= len(ss) {
		return 0, false
	}
	for k, e := range ss[i].Entries {
		if e.AnchorID == fragment {
			return k, true
		}
	}
	return 0, false
}

// FirstVisibleEntry returns the index of the first entry in section i,
// in document order, whose anchor id appears in visible.
func (ss Sections) FirstVisibleEntry(i int, visible map[string]bool) (int, bool) {
	if i < 0 || i >= len(ss) {
		return 0, false
	}
	for k, e := range ss[i].Entries {
		if visible[e.AnchorID] {
			return k, true
		}
	}
	return 0, false
}
