package transport_test

import (
	"context"
	"encoding/json/v2"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storylineapp/storyline-core/internal/domain"
	"github.com/storylineapp/storyline-core/internal/progress"
	"github.com/storylineapp/storyline-core/internal/transport"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type capturedUpload struct {
	BookID          string         `json:"book_id"`
	Locator         domain.Locator `json:"locator"`
	TimestampMillis float64        `json:"timestamp_millis"`
}

type libraryRecorder struct {
	lib transport.Library
}

func (r *libraryRecorder) HandleLibrary(_ context.Context, lib transport.Library) error {
	r.lib = lib
	return nil
}

func TestSendProgress_Success(t *testing.T) {
	var got capturedUpload
	var gotAuth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v1/progress", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.UnmarshalRead(r.Body, &got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := transport.New(srv.URL, "secret-token", transport.Options{}, testLogger())

	loc := domain.Locator{
		Href: "chapter3.xhtml",
		Type: "application/xhtml+xml",
		Locations: domain.Locations{
			Fragments:   []string{"para-12"},
			Progression: domain.Float64Ptr(0.42),
		},
	}
	result := c.SendProgress(context.Background(), "book-1", loc, 1700000000000)

	assert.Equal(t, progress.UploadSuccess, result)
	assert.Equal(t, "Bearer secret-token", gotAuth)
	assert.Equal(t, "book-1", got.BookID)
	assert.Equal(t, "chapter3.xhtml", got.Locator.Href)
	assert.Equal(t, float64(1700000000000), got.TimestampMillis)
	assert.Equal(t, domain.ConnectionConnected, c.Status())
}

func TestSendProgress_ServerRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := transport.New(srv.URL, "token", transport.Options{}, testLogger())

	result := c.SendProgress(context.Background(), "book-1", domain.Locator{}, 1)
	assert.Equal(t, progress.UploadFailure, result)
}

func TestSendProgress_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // connection refused from here on

	c := transport.New(srv.URL, "token", transport.Options{}, testLogger())

	result := c.SendProgress(context.Background(), "book-1", domain.Locator{}, 1)
	assert.Equal(t, progress.UploadNoConnection, result)
	assert.Equal(t, domain.ConnectionDisconnected, c.Status())
}

func TestSendProgress_Offline(t *testing.T) {
	c := transport.New("", "", transport.Options{}, testLogger())

	result := c.SendProgress(context.Background(), "book-1", domain.Locator{}, 1)
	assert.Equal(t, progress.UploadNoConnection, result)
	assert.True(t, c.Offline())
}

func TestFetchLibrary_DeliversToHandler(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/library", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"books": [
				{"id": "srv-1", "title": "The Remote Book", "href": "/books/srv-1", "has_narration": true, "duration_seconds": 3600}
			],
			"positions": [
				{"book_id": "srv-1", "locator": {"href": "ch1.xhtml"}, "timestamp_millis": 1000}
			]
		}`))
	}))
	defer srv.Close()

	c := transport.New(srv.URL, "token", transport.Options{}, testLogger())
	rec := &libraryRecorder{}
	c.SetLibraryHandler(rec)

	require.NoError(t, c.FetchLibrary(context.Background()))

	require.Len(t, rec.lib.Books, 1)
	assert.Equal(t, "The Remote Book", rec.lib.Books[0].Title)
	assert.True(t, rec.lib.Books[0].HasNarration)
	require.Len(t, rec.lib.Positions, 1)
	assert.Equal(t, "srv-1", rec.lib.Positions[0].BookID)
	assert.Equal(t, domain.ConnectionConnected, c.Status())
}

func TestFetchLibrary_UnauthorizedMarksError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := transport.New(srv.URL, "stale-token", transport.Options{}, testLogger())

	err := c.FetchLibrary(context.Background())
	require.Error(t, err)
	assert.Equal(t, domain.ConnectionError, c.Status())
}

func TestStatusCallback_FiresOnEdgesOnly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := transport.New(srv.URL, "token", transport.Options{}, testLogger())

	var transitions []domain.ConnectionStatus
	c.SetStatusCallback(func(s domain.ConnectionStatus) {
		transitions = append(transitions, s)
	})

	c.SendProgress(context.Background(), "b", domain.Locator{}, 1)
	c.SendProgress(context.Background(), "b", domain.Locator{}, 2)

	assert.Equal(t, []domain.ConnectionStatus{domain.ConnectionConnected}, transitions)
}

func TestPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := transport.New(srv.URL, "", transport.Options{}, testLogger())
	assert.True(t, c.Ping(context.Background()))
	assert.Equal(t, domain.ConnectionConnected, c.Status())
}
