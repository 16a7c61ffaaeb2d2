package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/storylineapp/storyline-core/internal/reader"
)

// The renderer's inbound half: navigation and visibility events flow
// in through these endpoints, while commands flow back out over the
// SSE stream.
func (s *Server) registerRendererRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "rendererRelocated",
		Method:      http.MethodPost,
		Path:        "/api/v1/renderer/relocated",
		Summary:     "Report a relocation",
		Description: "The view landed on a page; audio follows when view-audio sync is on",
		Tags:        []string{"Renderer"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleRelocated)

	huma.Register(s.api, huma.Operation{
		OperationID: "rendererVisibility",
		Method:      http.MethodPost,
		Path:        "/api/v1/renderer/visibility",
		Summary:     "Report element visibility",
		Description: "How much of the highlighted element is still on-screen; paces page flips",
		Tags:        []string{"Renderer"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleVisibility)

	huma.Register(s.api, huma.Operation{
		OperationID: "rendererChapterJump",
		Method:      http.MethodPost,
		Path:        "/api/v1/renderer/chapter-jump",
		Summary:     "Report a chapter jump",
		Tags:        []string{"Renderer"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleChapterJump)

	huma.Register(s.api, huma.Operation{
		OperationID: "rendererPageNavigation",
		Method:      http.MethodPost,
		Path:        "/api/v1/renderer/navigate",
		Summary:     "Report a page navigation",
		Description: "An explicit page turn; moves audio even while paused when sync is on",
		Tags:        []string{"Renderer"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handlePageNavigation)

	huma.Register(s.api, huma.Operation{
		OperationID: "rendererSeek",
		Method:      http.MethodPost,
		Path:        "/api/v1/renderer/seek",
		Summary:     "Seek from a tapped fragment",
		Description: "The user tapped a narrated element; playback jumps to its timing entry",
		Tags:        []string{"Renderer"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleRendererSeek)

	huma.Register(s.api, huma.Operation{
		OperationID: "rendererVisibleElements",
		Method:      http.MethodPost,
		Path:        "/api/v1/renderer/visible-elements",
		Summary:     "Answer a visible-elements request",
		Description: "Replies to a visible_elements_request event with the fully visible anchor IDs",
		Tags:        []string{"Renderer"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleVisibleElements)
}

// === DTOs ===

// RelocatedInput wraps the renderer's relocation event.
type RelocatedInput struct {
	Authorization string `header:"Authorization"`
	Body          reader.Relocated
}

// VisibilityInput wraps the renderer's visibility report.
type VisibilityInput struct {
	Authorization string `header:"Authorization"`
	Body          reader.ElementVisibility
}

// ChapterJumpInput names the section jumped to.
type ChapterJumpInput struct {
	Authorization string `header:"Authorization"`
	Body          struct {
		Section int `json:"section" minimum:"0" doc:"Section index"`
	}
}

// PageNavigationInput reports an explicit page turn.
type PageNavigationInput struct {
	Authorization string `header:"Authorization"`
	Body          struct {
		Section int `json:"section" minimum:"0" doc:"Section index"`
		Page    int `json:"page" minimum:"0" doc:"Page index within the section"`
	}
}

// RendererSeekInput names the tapped fragment.
type RendererSeekInput struct {
	Authorization string `header:"Authorization"`
	Body          struct {
		Section  int    `json:"section" minimum:"0" doc:"Section index"`
		AnchorID string `json:"anchor_id" minLength:"1" doc:"Tapped fragment anchor"`
	}
}

// VisibleElementsInput is the reply to a visible-elements request.
type VisibleElementsInput struct {
	Authorization string `header:"Authorization"`
	Body          struct {
		RequestID string   `json:"request_id" minLength:"1" doc:"Request correlation ID"`
		AnchorIDs []string `json:"anchor_ids" doc:"Fully visible anchor IDs, document order"`
	}
}

// AcceptedOutput is the empty 204-style acknowledgment.
type AcceptedOutput struct {
	Body struct {
		Accepted bool `json:"accepted" doc:"Always true"`
	}
}

func accepted() *AcceptedOutput {
	out := &AcceptedOutput{}
	out.Body.Accepted = true
	return out
}

// === Handlers ===

func (s *Server) handleRelocated(ctx context.Context, input *RelocatedInput) (*AcceptedOutput, error) {
	if _, err := GetDevice(ctx); err != nil {
		return nil, err
	}
	if err := s.services.Reader.HandleRelocated(ctx, input.Body); err != nil {
		return nil, err
	}
	return accepted(), nil
}

func (s *Server) handleVisibility(ctx context.Context, input *VisibilityInput) (*AcceptedOutput, error) {
	if _, err := GetDevice(ctx); err != nil {
		return nil, err
	}
	s.services.Reader.HandleElementVisibility(ctx, input.Body)
	return accepted(), nil
}

func (s *Server) handleChapterJump(ctx context.Context, input *ChapterJumpInput) (*AcceptedOutput, error) {
	if _, err := GetDevice(ctx); err != nil {
		return nil, err
	}
	if err := s.services.Reader.HandleChapterJump(ctx, input.Body.Section); err != nil {
		return nil, err
	}
	return accepted(), nil
}

func (s *Server) handlePageNavigation(ctx context.Context, input *PageNavigationInput) (*AcceptedOutput, error) {
	if _, err := GetDevice(ctx); err != nil {
		return nil, err
	}
	if err := s.services.Reader.HandlePageNavigation(ctx, input.Body.Section, input.Body.Page); err != nil {
		return nil, err
	}
	return accepted(), nil
}

func (s *Server) handleRendererSeek(ctx context.Context, input *RendererSeekInput) (*AcceptedOutput, error) {
	if _, err := GetDevice(ctx); err != nil {
		return nil, err
	}
	if err := s.services.Reader.HandleExplicitSeek(ctx, input.Body.Section, input.Body.AnchorID); err != nil {
		return nil, err
	}
	return accepted(), nil
}

func (s *Server) handleVisibleElements(ctx context.Context, input *VisibleElementsInput) (*AcceptedOutput, error) {
	if _, err := GetDevice(ctx); err != nil {
		return nil, err
	}
	s.bridge.DeliverVisibleElements(input.Body.RequestID, input.Body.AnchorIDs)
	return accepted(), nil
}
