package api

import (
	"encoding/json/v2"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storylineapp/storyline-core/internal/reader"
)

func sleepStatus(t *testing.T, ts *testServer, token string) reader.SleepStatus {
	t.Helper()

	resp := ts.api.Get("/api/v1/sleep", token)
	require.Equal(t, http.StatusOK, resp.Code)

	var status reader.SleepStatus
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &status))
	return status
}

func TestSleepTimer_Lifecycle(t *testing.T) {
	ts := setupTestServer(t)
	token := ts.deviceToken(t)

	assert.Equal(t, "off", sleepStatus(t, ts, token).Mode)

	resp := ts.api.Post("/api/v1/sleep", token, map[string]any{"minutes": 15})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	status := sleepStatus(t, ts, token)
	assert.Equal(t, "fixed", status.Mode)
	assert.InDelta(t, 15*60, status.RemainingSeconds, 2)

	resp = ts.api.Delete("/api/v1/sleep", token)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "off", sleepStatus(t, ts, token).Mode)
}

func TestSleepTimer_ChapterEnd(t *testing.T) {
	ts := setupTestServer(t)
	token := ts.deviceToken(t)

	resp := ts.api.Post("/api/v1/sleep", token, map[string]any{"at_chapter_end": true})
	require.Equal(t, http.StatusOK, resp.Code)

	status := sleepStatus(t, ts, token)
	assert.Equal(t, "chapter", status.Mode)
	assert.Zero(t, status.RemainingSeconds)
}

func TestSleepTimer_DefaultMinutes(t *testing.T) {
	ts := setupTestServer(t)
	token := ts.deviceToken(t)

	// minutes omitted falls back to the stored default.
	resp := ts.api.Post("/api/v1/sleep", token, map[string]any{})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	status := sleepStatus(t, ts, token)
	assert.Equal(t, "fixed", status.Mode)
	assert.Positive(t, status.RemainingSeconds)
}

func TestSleepTimer_Replaces(t *testing.T) {
	ts := setupTestServer(t)
	token := ts.deviceToken(t)

	resp := ts.api.Post("/api/v1/sleep", token, map[string]any{"minutes": 30})
	require.Equal(t, http.StatusOK, resp.Code)
	resp = ts.api.Post("/api/v1/sleep", token, map[string]any{"minutes": 5})
	require.Equal(t, http.StatusOK, resp.Code)

	status := sleepStatus(t, ts, token)
	assert.Equal(t, "fixed", status.Mode)
	assert.InDelta(t, 5*60, status.RemainingSeconds, 2)
}
