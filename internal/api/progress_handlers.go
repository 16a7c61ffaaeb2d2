package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/storylineapp/storyline-core/internal/domain"
	domainerrors "github.com/storylineapp/storyline-core/internal/errors"
)

func (s *Server) registerProgressRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listProgress",
		Method:      http.MethodGet,
		Path:        "/api/v1/progress",
		Summary:     "List reading progress",
		Description: "Returns the freshest known position for every tracked book",
		Tags:        []string{"Progress"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleListProgress)

	huma.Register(s.api, huma.Operation{
		OperationID: "getBookProgress",
		Method:      http.MethodGet,
		Path:        "/api/v1/progress/{bookID}",
		Summary:     "Get book progress",
		Tags:        []string{"Progress"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleGetBookProgress)

	huma.Register(s.api, huma.Operation{
		OperationID: "getSyncHistory",
		Method:      http.MethodGet,
		Path:        "/api/v1/progress/{bookID}/history",
		Summary:     "Get sync history",
		Description: "Returns the per-book sync audit log, newest first",
		Tags:        []string{"Progress"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleGetSyncHistory)

	huma.Register(s.api, huma.Operation{
		OperationID: "getSyncStatus",
		Method:      http.MethodGet,
		Path:        "/api/v1/sync/status",
		Summary:     "Get sync status",
		Description: "Reports the remote connection state and the pending upload queue depth",
		Tags:        []string{"Sync"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleGetSyncStatus)

	huma.Register(s.api, huma.Operation{
		OperationID: "flushSyncQueue",
		Method:      http.MethodPost,
		Path:        "/api/v1/sync/flush",
		Summary:     "Flush the pending queue",
		Description: "Attempts to upload every pending position now",
		Tags:        []string{"Sync"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleFlushSync)

	huma.Register(s.api, huma.Operation{
		OperationID: "refreshLibrary",
		Method:      http.MethodPost,
		Path:        "/api/v1/sync/refresh",
		Summary:     "Refresh from the media server",
		Description: "Fetches the remote catalog and server positions, reconciling the local mirror",
		Tags:        []string{"Sync"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleRefreshLibrary)
}

// === DTOs ===

// ProgressListOutput wraps all book positions for huma.
type ProgressListOutput struct {
	Body struct {
		Progress []domain.BookProgress `json:"progress" doc:"Per-book positions"`
	}
}

// BookProgressInput addresses one book's progress.
type BookProgressInput struct {
	Authorization string `header:"Authorization"`
	BookID        string `path:"bookID" doc:"Book ID"`
}

// BookProgressOutput wraps one book's position for huma.
type BookProgressOutput struct {
	Body domain.BookProgress
}

// SyncHistoryOutput wraps the audit log for huma.
type SyncHistoryOutput struct {
	Body struct {
		BookID  string                   `json:"book_id" doc:"Book ID"`
		Entries []domain.SyncHistoryEntry `json:"entries" doc:"Audit entries, newest first"`
	}
}

// SyncStatusResponse reports the transport and queue state.
type SyncStatusResponse struct {
	Connection domain.ConnectionStatus `json:"connection" doc:"Remote connection state"`
	Pending    int                     `json:"pending" doc:"Queued uploads awaiting confirmation"`
	Offline    bool                    `json:"offline" doc:"True when no media server is configured"`
}

// SyncStatusOutput wraps the sync status for huma.
type SyncStatusOutput struct {
	Body SyncStatusResponse
}

// FlushResultResponse summarizes one queue replay pass.
type FlushResultResponse struct {
	Attempted int `json:"attempted" doc:"Entries examined"`
	Synced    int `json:"synced" doc:"Entries confirmed or resolved"`
	Failed    int `json:"failed" doc:"Entries left queued"`
}

// FlushResultOutput wraps the flush result for huma.
type FlushResultOutput struct {
	Body FlushResultResponse
}

// === Handlers ===

func (s *Server) handleListProgress(ctx context.Context, _ *AuthOnlyInput) (*ProgressListOutput, error) {
	if _, err := GetDevice(ctx); err != nil {
		return nil, err
	}

	out := &ProgressListOutput{}
	out.Body.Progress = s.services.Sync.GetAllBookProgress(ctx)
	return out, nil
}

func (s *Server) handleGetBookProgress(ctx context.Context, input *BookProgressInput) (*BookProgressOutput, error) {
	if _, err := GetDevice(ctx); err != nil {
		return nil, err
	}

	bp, ok := s.services.Sync.GetBookProgress(ctx, input.BookID)
	if !ok {
		return nil, domainerrors.NotFoundf("no progress recorded for book %s", input.BookID)
	}
	return &BookProgressOutput{Body: bp}, nil
}

func (s *Server) handleGetSyncHistory(ctx context.Context, input *BookProgressInput) (*SyncHistoryOutput, error) {
	if _, err := GetDevice(ctx); err != nil {
		return nil, err
	}

	out := &SyncHistoryOutput{}
	out.Body.BookID = input.BookID
	out.Body.Entries = s.services.Sync.History(input.BookID)
	return out, nil
}

func (s *Server) handleGetSyncStatus(ctx context.Context, _ *AuthOnlyInput) (*SyncStatusOutput, error) {
	if _, err := GetDevice(ctx); err != nil {
		return nil, err
	}

	return &SyncStatusOutput{
		Body: SyncStatusResponse{
			Connection: s.services.Remote.Status(),
			Pending:    s.services.Sync.PendingCount(),
			Offline:    s.services.Remote.Offline(),
		},
	}, nil
}

func (s *Server) handleFlushSync(ctx context.Context, _ *AuthOnlyInput) (*FlushResultOutput, error) {
	if _, err := GetDevice(ctx); err != nil {
		return nil, err
	}

	result, err := s.services.Sync.SyncPendingQueue(ctx)
	if err != nil {
		return nil, err
	}
	return &FlushResultOutput{
		Body: FlushResultResponse{
			Attempted: result.Attempted,
			Synced:    result.Synced,
			Failed:    result.Failed,
		},
	}, nil
}

func (s *Server) handleRefreshLibrary(ctx context.Context, _ *AuthOnlyInput) (*SyncStatusOutput, error) {
	if _, err := GetDevice(ctx); err != nil {
		return nil, err
	}

	if err := s.services.Library.RefreshFromServer(ctx); err != nil {
		return nil, err
	}
	return s.handleGetSyncStatus(ctx, nil)
}
