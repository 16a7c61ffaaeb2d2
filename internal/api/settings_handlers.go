package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/storylineapp/storyline-core/internal/domain"
)

func (s *Server) registerSettingsRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "getSettings",
		Method:      http.MethodGet,
		Path:        "/api/v1/settings",
		Summary:     "Get settings",
		Tags:        []string{"Settings"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleGetSettings)

	huma.Register(s.api, huma.Operation{
		OperationID: "updateSettings",
		Method:      http.MethodPut,
		Path:        "/api/v1/settings",
		Summary:     "Update settings",
		Description: "Persists the settings and applies them to the running engines",
		Tags:        []string{"Settings"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleUpdateSettings)
}

// SettingsOutput wraps the settings for huma.
type SettingsOutput struct {
	Body domain.Settings
}

// UpdateSettingsInput carries the full settings document.
type UpdateSettingsInput struct {
	Authorization string `header:"Authorization"`
	Body          struct {
		SyncEnabled         bool    `json:"sync_enabled" doc:"Move audio on every navigation, even paused"`
		PlaybackRate        float64 `json:"playback_rate" exclusiveMinimum:"0" maximum:"4" doc:"Playback rate multiplier"`
		Volume              float64 `json:"volume" minimum:"0" maximum:"1" doc:"Volume in [0, 1]"`
		SleepDefaultMinutes int     `json:"sleep_default_minutes" minimum:"1" maximum:"720" doc:"Default sleep timer length"`
	}
}

func (s *Server) handleGetSettings(ctx context.Context, _ *AuthOnlyInput) (*SettingsOutput, error) {
	if _, err := GetDevice(ctx); err != nil {
		return nil, err
	}

	settings, err := s.store.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	return &SettingsOutput{Body: settings}, nil
}

func (s *Server) handleUpdateSettings(ctx context.Context, input *UpdateSettingsInput) (*SettingsOutput, error) {
	if _, err := GetDevice(ctx); err != nil {
		return nil, err
	}

	settings := domain.Settings{
		SyncEnabled:         input.Body.SyncEnabled,
		PlaybackRate:        input.Body.PlaybackRate,
		Volume:              input.Body.Volume,
		SleepDefaultMinutes: input.Body.SleepDefaultMinutes,
		UpdatedAt:           time.Now(),
	}
	if err := s.store.UpdateSettings(ctx, settings); err != nil {
		return nil, err
	}

	// Apply to the running engines. A book may not be loaded; rate
	// and volume then land when the next one opens.
	s.services.Reader.SetSyncEnabled(settings.SyncEnabled)
	if err := s.services.Playback.SetRate(settings.PlaybackRate); err != nil {
		return nil, err
	}
	if err := s.services.Playback.SetVolume(settings.Volume); err != nil {
		return nil, err
	}

	return &SettingsOutput{Body: settings}, nil
}
