package domain

import "time"

// DailyListening is the aggregated listening activity for one day.
// Days with no sessions are filled in by the stats store so charts
// get a contiguous series.
type DailyListening struct {
	Date          time.Time `json:"date"`
	ListenSeconds float64   `json:"listen_seconds"`
	BooksListened int       `json:"books_listened"`
}

// ListeningSummary is the headline view over the session log.
type ListeningSummary struct {
	TotalListenSeconds float64 `json:"total_listen_seconds"`
	SessionCount       int     `json:"session_count"`
	CurrentStreakDays  int     `json:"current_streak_days"`
}
