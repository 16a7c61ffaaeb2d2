package domain

// PlaybackPosition addresses a moment of narrated audio. Transient and
// mutated only by the playback engine; always bounds-checked against
// the loaded book's section list.
type PlaybackPosition struct {
	SectionIndex   int     `json:"section_index"`
	EntryIndex     int     `json:"entry_index"`
	AudioFile      string  `json:"audio_file"`
	TimeWithinFile float64 `json:"time_within_file"`
}

// PlaybackSnapshot is the immutable state value broadcast to observers.
// Produced fresh on every state-affecting operation, never mutated in
// place.
type PlaybackSnapshot struct {
	IsPlaying bool `json:"is_playing"`

	CurrentTime float64 `json:"current_time"` // seconds within the open audio file
	Duration    float64 `json:"duration"`

	SectionIndex    int    `json:"section_index"`
	EntryIndex      int    `json:"entry_index"`
	CurrentFragment string `json:"current_fragment"`
	ChapterLabel    string `json:"chapter_label,omitempty"`

	ChapterElapsed float64 `json:"chapter_elapsed"`
	ChapterTotal   float64 `json:"chapter_total"`
	BookElapsed    float64 `json:"book_elapsed"`
	BookTotal      float64 `json:"book_total"`

	Rate   float64 `json:"rate"`
	Volume float64 `json:"volume"`

	BookID string `json:"book_id,omitempty"`
	Title  string `json:"title,omitempty"`
}
