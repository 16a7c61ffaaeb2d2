package sse

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/storylineapp/storyline-core/internal/domain"
	"github.com/storylineapp/storyline-core/internal/id"
)

// defaultReplyTimeout bounds how long a visible-elements request
// waits for the renderer to answer through the control API.
const defaultReplyTimeout = 2 * time.Second

// Bridge is the outbound half of the renderer protocol: commands go
// out as events, and the one request/reply exchange
// (FullyVisibleElementIDs) is correlated by request ID with replies
// arriving through the control API.
type Bridge struct {
	manager *Manager
	logger  *slog.Logger
	timeout time.Duration

	mu      sync.Mutex
	pending map[string]chan []string
}

// NewBridge creates a bridge over the event manager.
func NewBridge(manager *Manager, logger *slog.Logger) *Bridge {
	return &Bridge{
		manager: manager,
		logger:  logger,
		timeout: defaultReplyTimeout,
		pending: make(map[string]chan []string),
	}
}

// GoToHref navigates the renderer to a content document.
func (b *Bridge) GoToHref(_ context.Context, href string) error {
	b.manager.Emit(NewGoToEvent(GoToEventData{Kind: "href", Href: href}))
	return nil
}

// GoToFractionInSection navigates to a fraction within a section.
func (b *Bridge) GoToFractionInSection(_ context.Context, section int, fraction float64) error {
	b.manager.Emit(NewGoToEvent(GoToEventData{
		Kind:         "section_fraction",
		SectionIndex: section,
		Fraction:     fraction,
	}))
	return nil
}

// GoToBookFraction navigates to a fraction of the whole book.
func (b *Bridge) GoToBookFraction(_ context.Context, fraction float64) error {
	b.manager.Emit(NewGoToEvent(GoToEventData{Kind: "book_fraction", Fraction: fraction}))
	return nil
}

// GoToLocator navigates to a full locator.
func (b *Bridge) GoToLocator(_ context.Context, loc domain.Locator) error {
	b.manager.Emit(NewGoToEvent(GoToEventData{Kind: "locator", Locator: &loc}))
	return nil
}

// HighlightFragment highlights a narrated fragment, optionally
// scrolling the view to it.
func (b *Bridge) HighlightFragment(_ context.Context, section int, anchorID string, seekToLocation bool) error {
	b.manager.Emit(NewHighlightEvent(section, anchorID, seekToLocation))
	return nil
}

// ClearHighlight drops the active highlight.
func (b *Bridge) ClearHighlight(_ context.Context) error {
	b.manager.Emit(NewClearHighlightEvent())
	return nil
}

// FullyVisibleElementIDs asks the renderer which anchor IDs are fully
// on-screen. Blocks until the reply arrives via DeliverVisibleElements
// or the timeout passes. With no renderer connected this simply times
// out, which callers treat as "nothing visible".
func (b *Bridge) FullyVisibleElementIDs(ctx context.Context) ([]string, error) {
	requestID, err := id.Generate("req")
	if err != nil {
		return nil, err
	}

	reply := make(chan []string, 1)
	b.mu.Lock()
	b.pending[requestID] = reply
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.pending, requestID)
		b.mu.Unlock()
	}()

	b.manager.Emit(NewVisibleRequestEvent(requestID))

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()

	select {
	case ids := <-reply:
		return ids, nil
	case <-timer.C:
		return nil, fmt.Errorf("renderer did not reply to visible-elements request")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// DeliverVisibleElements resolves a pending visible-elements request.
// Called by the control API when the renderer posts its reply.
// Unknown or already-expired request IDs are ignored.
func (b *Bridge) DeliverVisibleElements(requestID string, anchorIDs []string) {
	b.mu.Lock()
	reply, ok := b.pending[requestID]
	b.mu.Unlock()

	if !ok {
		b.logger.Debug("late visible-elements reply dropped", "request_id", requestID)
		return
	}

	select {
	case reply <- anchorIDs:
	default:
	}
}
