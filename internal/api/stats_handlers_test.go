package api

import (
	"context"
	"encoding/json/v2"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storylineapp/storyline-core/internal/domain"
)

func recordSession(t *testing.T, ts *testServer, bookID string, start time.Time, seconds float64) {
	t.Helper()
	err := ts.services.Stats.RecordSession(context.Background(), domain.ListeningSession{
		BookID:       bookID,
		StartSeconds: 0,
		EndSeconds:   seconds,
		StartedAt:    start,
		EndedAt:      start.Add(time.Duration(seconds) * time.Second),
		Rate:         1.0,
	})
	require.NoError(t, err)
}

func TestGetListeningSummary(t *testing.T) {
	ts := setupTestServer(t)
	token := ts.deviceToken(t)
	book := seedBook(t, ts)

	now := time.Now()
	recordSession(t, ts, book.ID, now.Add(-2*time.Hour), 300)
	recordSession(t, ts, book.ID, now.Add(-1*time.Hour), 150)

	resp := ts.api.Get("/api/v1/stats/summary", token)
	require.Equal(t, http.StatusOK, resp.Code)

	var summary domain.ListeningSummary
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &summary))

	assert.InDelta(t, 450, summary.TotalListenSeconds, 0.001)
	assert.Equal(t, 2, summary.SessionCount)
	assert.Equal(t, 1, summary.CurrentStreakDays)
}

func TestGetDailyListening(t *testing.T) {
	ts := setupTestServer(t)
	token := ts.deviceToken(t)
	book := seedBook(t, ts)

	now := time.Now()
	recordSession(t, ts, book.ID, now.Add(-30*time.Minute), 600)
	recordSession(t, ts, book.ID, now.AddDate(0, 0, -1), 120)

	resp := ts.api.Get("/api/v1/stats/daily?days=7", token)
	require.Equal(t, http.StatusOK, resp.Code)

	var body struct {
		Days []domain.DailyListening `json:"days"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))

	require.Len(t, body.Days, 7)
	today := body.Days[6]
	yesterday := body.Days[5]
	assert.InDelta(t, 600, today.ListenSeconds, 0.001)
	assert.InDelta(t, 120, yesterday.ListenSeconds, 0.001)
	// Quiet days are present with zero totals.
	assert.Zero(t, body.Days[0].ListenSeconds)
}

func TestGetBookSessions(t *testing.T) {
	ts := setupTestServer(t)
	token := ts.deviceToken(t)
	book := seedBook(t, ts)

	now := time.Now()
	recordSession(t, ts, book.ID, now.Add(-2*time.Hour), 300)
	recordSession(t, ts, book.ID, now.Add(-1*time.Hour), 200)

	resp := ts.api.Get("/api/v1/books/"+book.ID+"/sessions", token)
	require.Equal(t, http.StatusOK, resp.Code)

	var body struct {
		Sessions []domain.ListeningSession `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))

	require.Len(t, body.Sessions, 2)
	// Newest first.
	assert.InDelta(t, 200, body.Sessions[0].EndSeconds, 0.001)
	assert.InDelta(t, 300, body.Sessions[1].EndSeconds, 0.001)
}

func TestGetBookSessions_UnknownBook(t *testing.T) {
	ts := setupTestServer(t)
	token := ts.deviceToken(t)

	resp := ts.api.Get("/api/v1/books/book_missing/sessions", token)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}
