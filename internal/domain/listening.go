package domain

import "time"

// ListeningSession is the atomic, immutable record of listening
// activity. Sessions are append-only - the stats views derive from
// them.
type ListeningSession struct {
	ID     string `json:"id"`
	BookID string `json:"book_id"`

	StartSeconds float64   `json:"start_seconds"`
	EndSeconds   float64   `json:"end_seconds"`
	StartedAt    time.Time `json:"started_at"`
	EndedAt      time.Time `json:"ended_at"`

	Rate     float64 `json:"rate"`
	DeviceID string  `json:"device_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// NewListeningSession creates a session record with computed fields.
func NewListeningSession(
	id, bookID string,
	startSeconds, endSeconds float64,
	startedAt, endedAt time.Time,
	rate float64,
	deviceID string,
) *ListeningSession {
	return &ListeningSession{
		ID:           id,
		BookID:       bookID,
		StartSeconds: startSeconds,
		EndSeconds:   endSeconds,
		StartedAt:    startedAt,
		EndedAt:      endedAt,
		Rate:         rate,
		DeviceID:     deviceID,
		CreatedAt:    time.Now(),
	}
}

// DurationSeconds returns the amount of narrated content covered.
func (s *ListeningSession) DurationSeconds() float64 {
	return s.EndSeconds - s.StartSeconds
}

// WallSeconds returns the actual elapsed time (wall clock).
// This differs from DurationSeconds when the playback rate != 1.0.
// Example: 30 min of content at 2x speed = 15 min wall time.
func (s *ListeningSession) WallSeconds() float64 {
	if s.Rate == 0 {
		return s.DurationSeconds()
	}
	return s.DurationSeconds() / s.Rate
}
