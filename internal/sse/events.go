// Package sse broadcasts daemon state to connected companion apps:
// playback snapshots, sync status, library changes, and the outbound
// half of the renderer bridge.
package sse

import (
	"time"

	"github.com/storylineapp/storyline-core/internal/domain"
	"github.com/storylineapp/storyline-core/internal/progress"
)

// EventType represents the type of SSE event.
type EventType string

const (
	// EventPlaybackSnapshot carries the throttled playback state.
	EventPlaybackSnapshot EventType = "playback.snapshot"

	// EventSyncUpdate fires when the sync engine records an outcome.
	EventSyncUpdate EventType = "sync.update"
	// EventConnectionStatus fires on remote connection edges.
	EventConnectionStatus EventType = "sync.connection"

	// EventBookUpserted fires when a book is created or refreshed.
	EventBookUpserted EventType = "library.book_upserted"
	// EventBookDeleted fires when a book leaves the library.
	EventBookDeleted EventType = "library.book_deleted"
	// EventScanStarted fires when a rescan begins.
	EventScanStarted EventType = "library.scan_started"
	// EventScanComplete fires when a rescan finishes.
	EventScanComplete EventType = "library.scan_completed"

	// EventSettingsUpdated fires when the client settings change.
	EventSettingsUpdated EventType = "settings.updated"

	// EventRendererHighlight tells the renderer to highlight a
	// narrated fragment, optionally scrolling to it.
	EventRendererHighlight EventType = "renderer.highlight"
	// EventRendererClearHighlight tells the renderer to drop the
	// active highlight.
	EventRendererClearHighlight EventType = "renderer.clear_highlight"
	// EventRendererGoTo tells the renderer to navigate.
	EventRendererGoTo EventType = "renderer.goto"
	// EventRendererVisibleRequest asks the renderer which elements are
	// fully visible; it replies through the control API.
	EventRendererVisibleRequest EventType = "renderer.visible_elements_request"

	// EventPairingRequested fires when a companion starts pairing; the
	// surface showing it presents the code for the user to relay.
	EventPairingRequested EventType = "pairing.requested"

	// EventHeartbeat is the connection keepalive.
	EventHeartbeat EventType = "heartbeat"
)

// Event is one SSE event. Data holds the payload as a JSON object for
// direct deserialization on the client.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
	Type      EventType `json:"type"`
}

// SnapshotEventData is the payload for playback snapshot events.
type SnapshotEventData struct {
	Snapshot domain.PlaybackSnapshot `json:"snapshot"`
}

// SyncUpdateEventData is the payload for sync outcome events.
type SyncUpdateEventData struct {
	BookID  string             `json:"book_id,omitempty"`
	Outcome domain.SyncOutcome `json:"outcome,omitempty"`
	Pending int                `json:"pending"`
}

// ConnectionStatusEventData is the payload for connection edges.
type ConnectionStatusEventData struct {
	Status domain.ConnectionStatus `json:"status"`
}

// BookUpsertedEventData is the payload for book upsert events. The
// full record rides along so clients render without a follow-up GET.
type BookUpsertedEventData struct {
	Book *domain.Book `json:"book"`
}

// BookDeletedEventData is the payload for book delete events.
type BookDeletedEventData struct {
	BookID string `json:"book_id"`
}

// ScanStartedEventData is the payload for scan start events.
type ScanStartedEventData struct {
	StartedAt time.Time `json:"started_at"`
}

// ScanCompleteEventData is the payload for scan completion events.
type ScanCompleteEventData struct {
	CompletedAt  time.Time `json:"completed_at"`
	BooksAdded   int       `json:"books_added"`
	BooksUpdated int       `json:"books_updated"`
	BooksRemoved int       `json:"books_removed"`
}

// SettingsUpdatedEventData is the payload for settings changes.
type SettingsUpdatedEventData struct {
	Settings domain.Settings `json:"settings"`
}

// HighlightEventData is the payload for renderer highlight commands.
type HighlightEventData struct {
	SectionIndex   int    `json:"section_index"`
	AnchorID       string `json:"anchor_id"`
	SeekToLocation bool   `json:"seek_to_location"`
}

// GoToEventData is the payload for renderer navigation commands.
// Kind selects which target fields apply.
type GoToEventData struct {
	Kind         string          `json:"kind"` // href, section_fraction, book_fraction, locator
	Href         string          `json:"href,omitempty"`
	SectionIndex int             `json:"section_index,omitempty"`
	Fraction     float64         `json:"fraction,omitempty"`
	Locator      *domain.Locator `json:"locator,omitempty"`
}

// VisibleRequestEventData is the payload for visible-elements
// requests. The renderer posts its reply with the same request ID.
type VisibleRequestEventData struct {
	RequestID string `json:"request_id"`
}

// HeartbeatEventData is the payload for heartbeat events.
type HeartbeatEventData struct {
	ServerTime time.Time `json:"server_time"`
}

// NewSnapshotEvent creates a playback.snapshot event.
func NewSnapshotEvent(snap domain.PlaybackSnapshot) Event {
	return Event{
		Type:      EventPlaybackSnapshot,
		Data:      SnapshotEventData{Snapshot: snap},
		Timestamp: time.Now(),
	}
}

// NewSyncUpdateEvent creates a sync.update event from an engine
// notification.
func NewSyncUpdateEvent(ev progress.SyncEvent) Event {
	return Event{
		Type: EventSyncUpdate,
		Data: SyncUpdateEventData{
			BookID:  ev.BookID,
			Outcome: ev.Outcome,
			Pending: ev.Pending,
		},
		Timestamp: time.Now(),
	}
}

// NewConnectionStatusEvent creates a sync.connection event.
func NewConnectionStatusEvent(status domain.ConnectionStatus) Event {
	return Event{
		Type:      EventConnectionStatus,
		Data:      ConnectionStatusEventData{Status: status},
		Timestamp: time.Now(),
	}
}

// NewBookUpsertedEvent creates a library.book_upserted event.
func NewBookUpsertedEvent(book *domain.Book) Event {
	return Event{
		Type:      EventBookUpserted,
		Data:      BookUpsertedEventData{Book: book},
		Timestamp: time.Now(),
	}
}

// NewBookDeletedEvent creates a library.book_deleted event.
func NewBookDeletedEvent(bookID string) Event {
	return Event{
		Type:      EventBookDeleted,
		Data:      BookDeletedEventData{BookID: bookID},
		Timestamp: time.Now(),
	}
}

// NewScanStartedEvent creates a library.scan_started event.
func NewScanStartedEvent() Event {
	return Event{
		Type:      EventScanStarted,
		Data:      ScanStartedEventData{StartedAt: time.Now()},
		Timestamp: time.Now(),
	}
}

// NewScanCompleteEvent creates a library.scan_completed event.
func NewScanCompleteEvent(added, updated, removed int) Event {
	return Event{
		Type: EventScanComplete,
		Data: ScanCompleteEventData{
			CompletedAt:  time.Now(),
			BooksAdded:   added,
			BooksUpdated: updated,
			BooksRemoved: removed,
		},
		Timestamp: time.Now(),
	}
}

// NewSettingsUpdatedEvent creates a settings.updated event.
func NewSettingsUpdatedEvent(settings domain.Settings) Event {
	return Event{
		Type:      EventSettingsUpdated,
		Data:      SettingsUpdatedEventData{Settings: settings},
		Timestamp: time.Now(),
	}
}

// NewHighlightEvent creates a renderer.highlight command event.
func NewHighlightEvent(sectionIndex int, anchorID string, seekToLocation bool) Event {
	return Event{
		Type: EventRendererHighlight,
		Data: HighlightEventData{
			SectionIndex:   sectionIndex,
			AnchorID:       anchorID,
			SeekToLocation: seekToLocation,
		},
		Timestamp: time.Now(),
	}
}

// NewClearHighlightEvent creates a renderer.clear_highlight event.
func NewClearHighlightEvent() Event {
	return Event{
		Type:      EventRendererClearHighlight,
		Timestamp: time.Now(),
	}
}

// NewGoToEvent creates a renderer.goto command event.
func NewGoToEvent(data GoToEventData) Event {
	return Event{
		Type:      EventRendererGoTo,
		Data:      data,
		Timestamp: time.Now(),
	}
}

// NewVisibleRequestEvent creates a visible-elements request event.
func NewVisibleRequestEvent(requestID string) Event {
	return Event{
		Type:      EventRendererVisibleRequest,
		Data:      VisibleRequestEventData{RequestID: requestID},
		Timestamp: time.Now(),
	}
}

// PairingRequestedEventData carries a pending pairing code. The code
// travels only over the already-authenticated event stream.
type PairingRequestedEventData struct {
	PairingID  string `json:"pairing_id"`
	DeviceName string `json:"device_name"`
	Code       string `json:"code"`
}

// NewPairingRequestedEvent creates a pairing.requested event.
func NewPairingRequestedEvent(pairingID, deviceName, code string) Event {
	return Event{
		Type: EventPairingRequested,
		Data: PairingRequestedEventData{
			PairingID:  pairingID,
			DeviceName: deviceName,
			Code:       code,
		},
		Timestamp: time.Now(),
	}
}

// NewHeartbeatEvent creates a heartbeat event.
func NewHeartbeatEvent() Event {
	return Event{
		Type:      EventHeartbeat,
		Data:      HeartbeatEventData{ServerTime: time.Now()},
		Timestamp: time.Now(),
	}
}
