package domain

// SyncOutcome classifies how a position-sync attempt resolved.
type SyncOutcome string

const (
	SyncQueued                 SyncOutcome = "queued"
	SyncReplacedQueued         SyncOutcome = "replacedQueued"
	SyncSynced                 SyncOutcome = "synced"
	SyncCompleted              SyncOutcome = "completed"
	SyncRecordedLocalOnly      SyncOutcome = "recordedLocalOnly"
	SyncSkippedNoChange        SyncOutcome = "skippedNoChange"
	SyncSkippedQueueHasNewer   SyncOutcome = "skippedQueueHasNewer"
	SyncRejectedServerHasNewer SyncOutcome = "rejectedServerHasNewer"
	SyncServerIncomingAccepted SyncOutcome = "serverIncomingAccepted"
	SyncServerIncomingRejected SyncOutcome = "serverIncomingRejected"
	SyncDroppedLocalOnly       SyncOutcome = "droppedLocalOnly"
	SyncUploadFailed           SyncOutcome = "uploadFailed"
)

// ConnectionStatus describes the remote transport's link state.
type ConnectionStatus string

const (
	ConnectionConnected    ConnectionStatus = "connected"
	ConnectionConnecting   ConnectionStatus = "connecting"
	ConnectionDisconnected ConnectionStatus = "disconnected"
	ConnectionError        ConnectionStatus = "error"
)

// PendingProgressSync is a position advance awaiting remote
// confirmation. The queue holds at most one entry per book; a newer
// candidate replaces the held one, never appends.
type PendingProgressSync struct {
	BookID          string  `json:"book_id"`
	Locator         Locator `json:"locator"`
	TimestampMillis float64 `json:"timestamp_millis"`
	SyncedToRemote  bool    `json:"synced_to_remote"`
}

// BookReadingPosition is the confirmed position for a book: either
// server-acknowledged or, for local-only books, recorded directly.
// Updated only by a strictly greater timestamp.
type BookReadingPosition struct {
	Locator         Locator        `json:"locator"`
	TimestampMillis float64        `json:"timestamp_millis"`
	Origin          ProgressSource `json:"origin,omitempty"`
}

// ProgressSource names where a reported position came from.
type ProgressSource string

const (
	ProgressSourceQueue  ProgressSource = "queue"
	ProgressSourceServer ProgressSource = "server"
	ProgressSourceLocal  ProgressSource = "local"
)

// BookProgress is the freshest known position for a book. A pending
// queue entry wins over the confirmed position because it is by
// construction at least as new.
type BookProgress struct {
	BookID          string         `json:"book_id"`
	Locator         Locator        `json:"locator"`
	TimestampMillis float64        `json:"timestamp_millis"`
	Source          ProgressSource `json:"source"`
}

// HistoryLimit bounds the per-book sync audit log.
const HistoryLimit = 20

// SyncHistoryEntry is one line of the per-book sync audit log.
// Diagnostic only; never drives behavior.
type SyncHistoryEntry struct {
	ID              string      `json:"id"`
	TimestampMillis float64     `json:"timestamp_millis"`
	Source          string      `json:"source"`
	Location        string      `json:"location"`
	Reason          string      `json:"reason"`
	Result          SyncOutcome `json:"result"`
	LocatorSummary  string      `json:"locator_summary"`
	Locator         *Locator    `json:"locator,omitempty"`
}

// SyncHistory is a bounded, append-only audit log for one book.
type SyncHistory []SyncHistoryEntry

// Append adds an entry and drops the oldest beyond HistoryLimit.
func (h SyncHistory) Append(e SyncHistoryEntry) SyncHistory {
	h = append(h, e)
	if len(h) > HistoryLimit {
		h = h[len(h)-HistoryLimit:]
	}
	return h
}
