package store

import "github.com/storylineapp/storyline-core/internal/domain"

// Events broadcast through the EventEmitter when the store changes.
// The event stream forwards them to connected clients as-is.

// BookUpsertedEvent fires when a book is created or refreshed.
type BookUpsertedEvent struct {
	Book *domain.Book `json:"book"`
}

// BookDeletedEvent fires when a book is removed from the library.
type BookDeletedEvent struct {
	BookID string `json:"book_id"`
}

// SettingsUpdatedEvent fires when the client settings change.
type SettingsUpdatedEvent struct {
	Settings domain.Settings `json:"settings"`
}
