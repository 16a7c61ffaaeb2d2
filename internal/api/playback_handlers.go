package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/storylineapp/storyline-core/internal/domain"
)

func (s *Server) registerPlaybackRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "getPlaybackState",
		Method:      http.MethodGet,
		Path:        "/api/v1/playback",
		Summary:     "Get playback state",
		Description: "Returns the current playback snapshot, or loaded=false when no book is open",
		Tags:        []string{"Playback"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleGetPlaybackState)

	huma.Register(s.api, huma.Operation{
		OperationID: "loadBook",
		Method:      http.MethodPost,
		Path:        "/api/v1/playback/load",
		Summary:     "Load a book",
		Description: "Loads a book's narration into the playback engine and reconciler",
		Tags:        []string{"Playback"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleLoadBook)

	huma.Register(s.api, huma.Operation{
		OperationID: "play",
		Method:      http.MethodPost,
		Path:        "/api/v1/playback/play",
		Summary:     "Start playback",
		Tags:        []string{"Playback"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handlePlay)

	huma.Register(s.api, huma.Operation{
		OperationID: "pause",
		Method:      http.MethodPost,
		Path:        "/api/v1/playback/pause",
		Summary:     "Pause playback",
		Tags:        []string{"Playback"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handlePause)

	huma.Register(s.api, huma.Operation{
		OperationID: "togglePlayPause",
		Method:      http.MethodPost,
		Path:        "/api/v1/playback/toggle",
		Summary:     "Toggle play/pause",
		Tags:        []string{"Playback"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleToggle)

	huma.Register(s.api, huma.Operation{
		OperationID: "seekToEntry",
		Method:      http.MethodPost,
		Path:        "/api/v1/playback/seek",
		Summary:     "Seek to a timing entry",
		Description: "Positions playback at the start of the given section and entry",
		Tags:        []string{"Playback"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleSeekToEntry)

	huma.Register(s.api, huma.Operation{
		OperationID: "seekToFragment",
		Method:      http.MethodPost,
		Path:        "/api/v1/playback/seek-fragment",
		Summary:     "Seek to a text fragment",
		Description: "Positions playback at the entry narrating the given anchor; matched=false when the anchor has no timing entry",
		Tags:        []string{"Playback"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleSeekToFragment)

	huma.Register(s.api, huma.Operation{
		OperationID: "skip",
		Method:      http.MethodPost,
		Path:        "/api/v1/playback/skip",
		Summary:     "Skip forward or backward",
		Description: "Skips by the given number of seconds; negative values skip backward",
		Tags:        []string{"Playback"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleSkip)

	huma.Register(s.api, huma.Operation{
		OperationID: "setRate",
		Method:      http.MethodPost,
		Path:        "/api/v1/playback/rate",
		Summary:     "Set playback rate",
		Tags:        []string{"Playback"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleSetRate)

	huma.Register(s.api, huma.Operation{
		OperationID: "setVolume",
		Method:      http.MethodPost,
		Path:        "/api/v1/playback/volume",
		Summary:     "Set volume",
		Tags:        []string{"Playback"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleSetVolume)
}

// === DTOs ===

// PlaybackStateResponse reports the engine state. Snapshot is nil
// until a book is loaded.
type PlaybackStateResponse struct {
	Loaded   bool                     `json:"loaded" doc:"Whether a book is loaded"`
	Snapshot *domain.PlaybackSnapshot `json:"snapshot,omitempty" doc:"Current playback snapshot"`
}

// PlaybackStateOutput wraps the playback state for huma.
type PlaybackStateOutput struct {
	Body PlaybackStateResponse
}

// LoadBookInput contains the book to load.
type LoadBookInput struct {
	Authorization string `header:"Authorization"`
	Body          struct {
		BookID string `json:"book_id" minLength:"1" doc:"Book ID"`
	}
}

// SeekEntryInput addresses a timing entry.
type SeekEntryInput struct {
	Authorization string `header:"Authorization"`
	Body          struct {
		Section int `json:"section" minimum:"0" doc:"Section index"`
		Entry   int `json:"entry" minimum:"0" doc:"Entry index within the section"`
	}
}

// SeekFragmentInput addresses a narrated text anchor.
type SeekFragmentInput struct {
	Authorization string `header:"Authorization"`
	Body          struct {
		Section  int    `json:"section" minimum:"0" doc:"Section index"`
		AnchorID string `json:"anchor_id" minLength:"1" doc:"Text fragment anchor"`
	}
}

// SeekFragmentOutput reports whether the anchor had a timing entry.
type SeekFragmentOutput struct {
	Body struct {
		Matched bool `json:"matched" doc:"Whether the anchor matched a timing entry"`
	}
}

// SkipInput is the signed skip amount.
type SkipInput struct {
	Authorization string `header:"Authorization"`
	Body          struct {
		Seconds float64 `json:"seconds" doc:"Seconds to skip; negative skips backward"`
	}
}

// RateInput sets the playback rate.
type RateInput struct {
	Authorization string `header:"Authorization"`
	Body          struct {
		Rate float64 `json:"rate" exclusiveMinimum:"0" maximum:"4" doc:"Playback rate multiplier"`
	}
}

// VolumeInput sets the volume.
type VolumeInput struct {
	Authorization string `header:"Authorization"`
	Body          struct {
		Volume float64 `json:"volume" minimum:"0" maximum:"1" doc:"Volume in [0, 1]"`
	}
}

// AuthOnlyInput is the input for operations with no parameters.
type AuthOnlyInput struct {
	Authorization string `header:"Authorization"`
}

// === Handlers ===

func (s *Server) handleGetPlaybackState(ctx context.Context, _ *AuthOnlyInput) (*PlaybackStateOutput, error) {
	if _, err := GetDevice(ctx); err != nil {
		return nil, err
	}

	snap, ok := s.services.Playback.CurrentState()
	out := &PlaybackStateOutput{}
	out.Body.Loaded = ok
	if ok {
		out.Body.Snapshot = &snap
	}
	return out, nil
}

func (s *Server) handleLoadBook(ctx context.Context, input *LoadBookInput) (*PlaybackStateOutput, error) {
	if _, err := GetDevice(ctx); err != nil {
		return nil, err
	}

	book, err := s.services.Library.GetBook(ctx, input.Body.BookID)
	if err != nil {
		return nil, err
	}

	sections, err := s.services.Library.SectionsForBook(ctx, book.ID)
	if err != nil {
		return nil, err
	}

	// The reconciler loads the engine and rebinds its own mirror.
	if err := s.services.Reader.LoadBook(ctx, book.ID, book.Title, sections); err != nil {
		return nil, err
	}

	// Resume from the freshest known position when one exists. The
	// reconciler seeks audio and points the renderer there.
	if bp, ok := s.services.Sync.GetBookProgress(ctx, book.ID); ok {
		s.services.Reader.RestorePosition(ctx, bp.Locator)
	}

	snap, ok := s.services.Playback.CurrentState()
	out := &PlaybackStateOutput{}
	out.Body.Loaded = ok
	if ok {
		out.Body.Snapshot = &snap
	}
	return out, nil
}

func (s *Server) handlePlay(ctx context.Context, _ *AuthOnlyInput) (*PlaybackStateOutput, error) {
	if _, err := GetDevice(ctx); err != nil {
		return nil, err
	}
	if err := s.services.Playback.Play(ctx); err != nil {
		return nil, err
	}
	return s.playbackState()
}

func (s *Server) handlePause(ctx context.Context, _ *AuthOnlyInput) (*PlaybackStateOutput, error) {
	if _, err := GetDevice(ctx); err != nil {
		return nil, err
	}
	s.services.Playback.Pause()
	return s.playbackState()
}

func (s *Server) handleToggle(ctx context.Context, _ *AuthOnlyInput) (*PlaybackStateOutput, error) {
	if _, err := GetDevice(ctx); err != nil {
		return nil, err
	}
	if err := s.services.Playback.TogglePlayPause(ctx); err != nil {
		return nil, err
	}
	return s.playbackState()
}

func (s *Server) handleSeekToEntry(ctx context.Context, input *SeekEntryInput) (*PlaybackStateOutput, error) {
	if _, err := GetDevice(ctx); err != nil {
		return nil, err
	}
	if err := s.services.Playback.SeekToEntry(ctx, input.Body.Section, input.Body.Entry); err != nil {
		return nil, err
	}
	return s.playbackState()
}

func (s *Server) handleSeekToFragment(ctx context.Context, input *SeekFragmentInput) (*SeekFragmentOutput, error) {
	if _, err := GetDevice(ctx); err != nil {
		return nil, err
	}

	matched := s.services.Playback.SeekToFragment(ctx, input.Body.Section, input.Body.AnchorID)
	out := &SeekFragmentOutput{}
	out.Body.Matched = matched
	return out, nil
}

func (s *Server) handleSkip(ctx context.Context, input *SkipInput) (*PlaybackStateOutput, error) {
	if _, err := GetDevice(ctx); err != nil {
		return nil, err
	}

	var err error
	if input.Body.Seconds < 0 {
		err = s.services.Playback.SkipBackward(ctx, -input.Body.Seconds)
	} else {
		err = s.services.Playback.SkipForward(ctx, input.Body.Seconds)
	}
	if err != nil {
		return nil, err
	}
	return s.playbackState()
}

func (s *Server) handleSetRate(ctx context.Context, input *RateInput) (*PlaybackStateOutput, error) {
	if _, err := GetDevice(ctx); err != nil {
		return nil, err
	}
	if err := s.services.Playback.SetRate(input.Body.Rate); err != nil {
		return nil, err
	}
	return s.playbackState()
}

func (s *Server) handleSetVolume(ctx context.Context, input *VolumeInput) (*PlaybackStateOutput, error) {
	if _, err := GetDevice(ctx); err != nil {
		return nil, err
	}
	if err := s.services.Playback.SetVolume(input.Body.Volume); err != nil {
		return nil, err
	}
	return s.playbackState()
}

func (s *Server) playbackState() (*PlaybackStateOutput, error) {
	snap, ok := s.services.Playback.CurrentState()
	out := &PlaybackStateOutput{}
	out.Body.Loaded = ok
	if ok {
		out.Body.Snapshot = &snap
	}
	return out, nil
}
