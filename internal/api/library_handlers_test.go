package api

import (
	"encoding/json/v2"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storylineapp/storyline-core/internal/domain"
	"github.com/storylineapp/storyline-core/internal/search"
)

func TestListBooks(t *testing.T) {
	ts := setupTestServer(t)
	token := ts.deviceToken(t)
	book := seedBook(t, ts)

	resp := ts.api.Get("/api/v1/books", token)
	require.Equal(t, http.StatusOK, resp.Code)

	var body struct {
		Books []*domain.Book `json:"books"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))

	require.Len(t, body.Books, 1)
	assert.Equal(t, book.ID, body.Books[0].ID)
	assert.Equal(t, "A Short Story", body.Books[0].Title)
}

func TestGetBook(t *testing.T) {
	ts := setupTestServer(t)
	token := ts.deviceToken(t)
	book := seedBook(t, ts)

	resp := ts.api.Get("/api/v1/books/"+book.ID, token)
	require.Equal(t, http.StatusOK, resp.Code)

	var got domain.Book
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &got))
	assert.Equal(t, book.ID, got.ID)
	assert.True(t, got.HasNarration)

	missing := ts.api.Get("/api/v1/books/book_missing", token)
	assert.Equal(t, http.StatusNotFound, missing.Code)
}

func TestGetBookSections(t *testing.T) {
	ts := setupTestServer(t)
	token := ts.deviceToken(t)
	book := seedBook(t, ts)

	resp := ts.api.Get("/api/v1/books/"+book.ID+"/sections", token)
	require.Equal(t, http.StatusOK, resp.Code)

	var body struct {
		Sections domain.Sections `json:"sections"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))

	require.Len(t, body.Sections, 2)
	assert.Equal(t, "Chapter 1", body.Sections[0].Label)
	assert.Len(t, body.Sections[0].Entries, 2)

	// Bad book IDs are a 404, not an empty list.
	missing := ts.api.Get("/api/v1/books/book_missing/sections", token)
	assert.Equal(t, http.StatusNotFound, missing.Code)
}

func TestSearchBooks(t *testing.T) {
	ts := setupTestServer(t)
	token := ts.deviceToken(t)
	seedBook(t, ts)

	// Indexing happens off the write path; poll until it lands.
	require.Eventually(t, func() bool {
		resp := ts.api.Get("/api/v1/search?q=short", token)
		if resp.Code != http.StatusOK {
			return false
		}
		var result search.Result
		if err := json.Unmarshal(resp.Body.Bytes(), &result); err != nil {
			return false
		}
		return len(result.Hits) == 1
	}, 5*time.Second, 50*time.Millisecond, "indexed book never became searchable")

	// Queries matching nothing return an empty hit list.
	resp := ts.api.Get("/api/v1/search?q=zebra", token)
	require.Equal(t, http.StatusOK, resp.Code)

	var result search.Result
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &result))
	assert.Empty(t, result.Hits)
}

func TestSearchBooks_MissingQuery(t *testing.T) {
	ts := setupTestServer(t)
	token := ts.deviceToken(t)

	resp := ts.api.Get("/api/v1/search", token)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
}
