package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/storylineapp/storyline-core/internal/domain"
)

func (s *Server) registerStatsRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "getListeningSummary",
		Method:      http.MethodGet,
		Path:        "/api/v1/stats/summary",
		Summary:     "Get listening summary",
		Tags:        []string{"Stats"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleGetListeningSummary)

	huma.Register(s.api, huma.Operation{
		OperationID: "getDailyListening",
		Method:      http.MethodGet,
		Path:        "/api/v1/stats/daily",
		Summary:     "Get daily listening totals",
		Tags:        []string{"Stats"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleGetDailyListening)

	huma.Register(s.api, huma.Operation{
		OperationID: "getBookSessions",
		Method:      http.MethodGet,
		Path:        "/api/v1/books/{id}/sessions",
		Summary:     "List listening sessions for a book",
		Tags:        []string{"Stats"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleGetBookSessions)
}

// SummaryOutput wraps the listening summary for huma.
type SummaryOutput struct {
	Body domain.ListeningSummary
}

// DailyListeningInput selects the window for daily totals.
type DailyListeningInput struct {
	Authorization string `header:"Authorization"`
	Days          int    `query:"days" minimum:"1" maximum:"365" default:"30" doc:"Number of days to include, ending today"`
}

// DailyListeningOutput is the per-day breakdown, oldest first.
type DailyListeningOutput struct {
	Body struct {
		Days []domain.DailyListening `json:"days"`
	}
}

// BookSessionsInput identifies the book whose sessions to list.
type BookSessionsInput struct {
	Authorization string `header:"Authorization"`
	ID            string `path:"id" doc:"Book ID"`
	Limit         int    `query:"limit" minimum:"1" maximum:"500" default:"50"`
}

// BookSessionsOutput lists sessions newest first.
type BookSessionsOutput struct {
	Body struct {
		Sessions []*domain.ListeningSession `json:"sessions"`
	}
}

func (s *Server) handleGetListeningSummary(ctx context.Context, _ *AuthOnlyInput) (*SummaryOutput, error) {
	if _, err := GetDevice(ctx); err != nil {
		return nil, err
	}

	summary, err := s.services.Stats.Summary(ctx)
	if err != nil {
		return nil, err
	}
	return &SummaryOutput{Body: summary}, nil
}

func (s *Server) handleGetDailyListening(ctx context.Context, input *DailyListeningInput) (*DailyListeningOutput, error) {
	if _, err := GetDevice(ctx); err != nil {
		return nil, err
	}

	days, err := s.services.Stats.DailyTotals(ctx, input.Days)
	if err != nil {
		return nil, err
	}

	resp := &DailyListeningOutput{}
	resp.Body.Days = days
	return resp, nil
}

func (s *Server) handleGetBookSessions(ctx context.Context, input *BookSessionsInput) (*BookSessionsOutput, error) {
	if _, err := GetDevice(ctx); err != nil {
		return nil, err
	}

	// Surface a 404 for unknown books rather than an empty list.
	if _, err := s.services.Library.GetBook(ctx, input.ID); err != nil {
		return nil, err
	}

	sessions, err := s.services.Stats.SessionsForBook(ctx, input.ID, input.Limit)
	if err != nil {
		return nil, err
	}

	resp := &BookSessionsOutput{}
	resp.Body.Sessions = sessions
	return resp, nil
}
