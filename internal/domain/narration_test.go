package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// twoSectionBook builds a book where section 0 holds 100s of narration
// and section 1 opens with a 20s entry in a fresh audio file.
func twoSectionBook() Sections {
	return Sections{
		{
			Index: 0,
			ID:    "ch1",
			Label: "Chapter 1",
			Entries: []NarrationEntry{
				{AnchorID: "p1", AudioFile: "ch1.mp3", Begin: 0, End: 60, CumulativeAtEnd: 60},
				{AnchorID: "p2", AudioFile: "ch1.mp3", Begin: 60, End: 100, CumulativeAtEnd: 100},
			},
		},
		{
			Index: 1,
			ID:    "ch2",
			Label: "Chapter 2",
			Entries: []NarrationEntry{
				{AnchorID: "p3", AudioFile: "ch2.mp3", Begin: 0, End: 20, CumulativeAtEnd: 120},
				{AnchorID: "p4", AudioFile: "ch2.mp3", Begin: 20, End: 50, CumulativeAtEnd: 150},
			},
		},
	}
}

func TestSections_ElapsedAt_CrossSection(t *testing.T) {
	ss := twoSectionBook()

	// 10s into the first entry of section 1.
	pos := PlaybackPosition{SectionIndex: 1, EntryIndex: 0, AudioFile: "ch2.mp3", TimeWithinFile: 10}
	e := ss.ElapsedAt(pos, 10)

	assert.Equal(t, 10.0, e.Chapter)
	assert.Equal(t, 50.0, e.ChapterTotal)
	assert.Equal(t, 110.0, e.Book)
	assert.Equal(t, 150.0, e.BookTotal)
}

func TestSections_ElapsedAt_SecondEntry(t *testing.T) {
	ss := twoSectionBook()

	// 5s into the second entry of section 1 (entry begins at 20s).
	pos := PlaybackPosition{SectionIndex: 1, EntryIndex: 1, AudioFile: "ch2.mp3", TimeWithinFile: 25}
	e := ss.ElapsedAt(pos, 25)

	// 20s of entry p3 plus 5s of p4.
	assert.Equal(t, 25.0, e.Chapter)
	assert.Equal(t, 125.0, e.Book)
}

func TestSections_ElapsedAt_FlooredAtEntryStart(t *testing.T) {
	ss := twoSectionBook()

	// Audio clock slightly before the entry begin must not produce
	// negative progress.
	pos := PlaybackPosition{SectionIndex: 1, EntryIndex: 1, AudioFile: "ch2.mp3", TimeWithinFile: 19.5}
	e := ss.ElapsedAt(pos, 19.5)

	assert.Equal(t, 20.0, e.Chapter)
	assert.Equal(t, 120.0, e.Book)
}

func TestSections_ElapsedAt_InvalidPosition(t *testing.T) {
	ss := twoSectionBook()

	e := ss.ElapsedAt(PlaybackPosition{SectionIndex: 5, EntryIndex: 0}, 0)

	assert.Equal(t, 0.0, e.Book)
	assert.Equal(t, 150.0, e.BookTotal)
}

func TestSections_Totals_SkipEmptySections(t *testing.T) {
	ss := Sections{
		{Index: 0, ID: "cover"}, // no narration
		{Index: 1, ID: "ch1", Entries: []NarrationEntry{
			{AnchorID: "p1", Begin: 0, End: 30, CumulativeAtEnd: 30},
		}},
		{Index: 2, ID: "interlude"}, // no narration
		{Index: 3, ID: "ch2", Entries: []NarrationEntry{
			{AnchorID: "p2", Begin: 0, End: 45, CumulativeAtEnd: 75},
		}},
	}

	assert.Equal(t, 75.0, ss.BookTotal())
	assert.Equal(t, 30.0, ss.ChapterTotal(1))
	// Section 3's base is section 1's cumulative end.
	assert.Equal(t, 45.0, ss.ChapterTotal(3))
	assert.Equal(t, 0.0, ss.ChapterTotal(0))
	assert.Equal(t, 0.0, ss.ChapterTotal(2))
}

func TestSections_NextNarratedFrom(t *testing.T) {
	ss := Sections{
		{Index: 0},
		{Index: 1, Entries: []NarrationEntry{{AnchorID: "p1", Begin: 0, End: 1, CumulativeAtEnd: 1}}},
		{Index: 2},
	}

	idx, ok := ss.NextNarratedFrom(0)
	assert.True(t, ok)
	assert.Equal(t, 1, idx)

	idx, ok = ss.FirstNarrated()
	assert.True(t, ok)
	assert.Equal(t, 1, idx)

	_, ok = ss.NextNarratedFrom(2)
	assert.False(t, ok)
}

func TestSections_Valid(t *testing.T) {
	ss := twoSectionBook()

	tests := []struct {
		name    string
		section int
		entry   int
		want    bool
	}{
		{"first entry", 0, 0, true},
		{"last entry", 1, 1, true},
		{"entry out of range", 0, 2, false},
		{"negative entry", 0, -1, false},
		{"section out of range", 2, 0, false},
		{"negative section", -1, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pos := PlaybackPosition{SectionIndex: tt.section, EntryIndex: tt.entry}
			assert.Equal(t, tt.want, ss.Valid(pos))
		})
	}
}

func TestSections_FindFragment(t *testing.T) {
	ss := twoSectionBook()

	idx, ok := ss.FindFragment(1, "p4")
	assert.True(t, ok)
	assert.Equal(t, 1, idx)

	_, ok = ss.FindFragment(1, "nonexistent-id")
	assert.False(t, ok)

	_, ok = ss.FindFragment(9, "p1")
	assert.False(t, ok)
}

func TestSections_FirstVisibleEntry(t *testing.T) {
	ss := twoSectionBook()

	// p4 and p3 both visible: document order wins, not map order.
	visible := map[string]bool{"p4": true, "p3": true}
	idx, ok := ss.FirstVisibleEntry(1, visible)
	assert.True(t, ok)
	assert.Equal(t, 0, idx)

	// Nothing on screen matches narration.
	_, ok = ss.FirstVisibleEntry(1, map[string]bool{"figure-7": true})
	assert.False(t, ok)
}

func TestSection_HasNarration(t *testing.T) {
	assert.False(t, Section{}.HasNarration())
	assert.True(t, Section{Entries: []NarrationEntry{{}}}.HasNarration())
}

func TestNarrationEntry_ClipDuration(t *testing.T) {
	e := NarrationEntry{Begin: 12.5, End: 20}
	assert.Equal(t, 7.5, e.ClipDuration())
}
