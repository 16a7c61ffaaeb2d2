// Package search provides full-text search over the library mirror using Bleve.
package search

import (
	"github.com/storylineapp/storyline-core/internal/domain"
)

// Document is the indexed shape of a library book. Author and narrator
// names ride along so a single query covers everything a reader types
// into the search box.
type Document struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	SortTitle    string   `json:"sort_title,omitempty"`
	Authors      []string `json:"authors,omitempty"`
	Narrator     string   `json:"narrator,omitempty"`
	Description  string   `json:"description,omitempty"`
	Storage      string   `json:"storage"`
	HasNarration bool     `json:"has_narration"`
	Duration     float64  `json:"duration,omitempty"` // Seconds
	CreatedAt    int64    `json:"created_at"`         // Unix millis
	UpdatedAt    int64    `json:"updated_at"`
}

// FromBook converts a library book to its indexed form.
func FromBook(book *domain.Book) *Document {
	return &Document{
		ID:           book.ID,
		Title:        book.Title,
		SortTitle:    book.SortTitle,
		Authors:      book.Authors,
		Narrator:     book.Narrator,
		Description:  book.Description,
		Storage:      string(book.Storage),
		HasNarration: book.HasNarration,
		Duration:     book.DurationSeconds,
		CreatedAt:    book.CreatedAt.UnixMilli(),
		UpdatedAt:    book.UpdatedAt.UnixMilli(),
	}
}

// ToMap converts the document to a map with lowercase field names.
// Bleve would otherwise index the capitalized Go field names and miss
// the mapping entirely.
func (d *Document) ToMap() map[string]interface{} {
	m := map[string]interface{}{
		"id":            d.ID,
		"title":         d.Title,
		"storage":       d.Storage,
		"has_narration": d.HasNarration,
		"created_at":    d.CreatedAt,
		"updated_at":    d.UpdatedAt,
	}

	// Optional fields - only add if non-empty
	if d.SortTitle != "" {
		m["sort_title"] = d.SortTitle
	}
	if len(d.Authors) > 0 {
		m["authors"] = d.Authors
	}
	if d.Narrator != "" {
		m["narrator"] = d.Narrator
	}
	if d.Description != "" {
		m["description"] = d.Description
	}
	if d.Duration > 0 {
		m["duration"] = d.Duration
	}

	return m
}
