package domain

import "time"

// Settings are the user-tunable knobs persisted across restarts.
type Settings struct {
	// SyncEnabled controls whether the view/audio reconciler moves
	// audio on every navigation even while paused.
	SyncEnabled bool `json:"sync_enabled"`

	PlaybackRate float64 `json:"playback_rate"`
	Volume       float64 `json:"volume"`

	SleepDefaultMinutes int `json:"sleep_default_minutes"`

	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultSettings returns the settings used before the user changes
// anything. UpdatedAt stays zero until the first save, so a zero
// timestamp means nothing was ever persisted.
func DefaultSettings() Settings {
	return Settings{
		SyncEnabled:         true,
		PlaybackRate:        1.0,
		Volume:              1.0,
		SleepDefaultMinutes: 15,
	}
}
