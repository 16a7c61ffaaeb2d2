package api

import (
	"encoding/json/v2"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storylineapp/storyline-core/internal/sse"
)

// awaitPairingCode subscribes to the event stream and returns the code
// surfaced for the next pairing request.
func awaitPairingCode(t *testing.T, ts *testServer, begin func()) sse.PairingRequestedEventData {
	t.Helper()

	client, err := ts.sse.Connect("test-reader")
	require.NoError(t, err)
	defer ts.sse.Disconnect(client.ID)

	begin()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case event := <-client.EventChan:
			if event.Type != sse.EventPairingRequested {
				continue
			}
			data, ok := event.Data.(sse.PairingRequestedEventData)
			require.True(t, ok, "unexpected event payload %T", event.Data)
			return data
		case <-deadline:
			t.Fatal("pairing.requested event never arrived")
		}
	}
}

func TestPairingRoundTrip(t *testing.T) {
	ts := setupTestServer(t)

	var beginBody map[string]any
	data := awaitPairingCode(t, ts, func() {
		resp := ts.api.Post("/api/v1/pair/begin", map[string]any{
			"device_name": "Kitchen Phone",
		})
		require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &beginBody))
	})

	pairingID, ok := beginBody["pairing_id"].(string)
	require.True(t, ok)
	assert.Equal(t, pairingID, data.PairingID)
	assert.Equal(t, "Kitchen Phone", data.DeviceName)
	assert.Len(t, data.Code, 6)

	resp := ts.api.Post("/api/v1/pair/complete", map[string]any{
		"pairing_id": pairingID,
		"code":       data.Code,
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var completeBody map[string]any
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &completeBody))

	token, ok := completeBody["token"].(string)
	require.True(t, ok)
	assert.NotEmpty(t, token)
	assert.Equal(t, pairingID, completeBody["device_id"])

	// The minted token works on an authenticated endpoint.
	authed := ts.api.Get("/api/v1/settings", "Authorization: Bearer "+token)
	assert.Equal(t, http.StatusOK, authed.Code)

	// The code is single-use.
	again := ts.api.Post("/api/v1/pair/complete", map[string]any{
		"pairing_id": pairingID,
		"code":       data.Code,
	})
	assert.Equal(t, http.StatusConflict, again.Code)
}

func TestCompletePairing_WrongCode(t *testing.T) {
	ts := setupTestServer(t)

	var beginBody map[string]any
	awaitPairingCode(t, ts, func() {
		resp := ts.api.Post("/api/v1/pair/begin", map[string]any{
			"device_name": "Impostor",
		})
		require.Equal(t, http.StatusOK, resp.Code)
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &beginBody))
	})

	resp := ts.api.Post("/api/v1/pair/complete", map[string]any{
		"pairing_id": beginBody["pairing_id"],
		"code":       "000000",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestCompletePairing_UnknownID(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Post("/api/v1/pair/complete", map[string]any{
		"pairing_id": "pair_nope",
		"code":       "123456",
	})
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestListPairings_SkipsPending(t *testing.T) {
	ts := setupTestServer(t)
	token := ts.deviceToken(t)

	// A begun but not completed handshake is not a device yet.
	awaitPairingCode(t, ts, func() {
		resp := ts.api.Post("/api/v1/pair/begin", map[string]any{
			"device_name": "Half Paired",
		})
		require.Equal(t, http.StatusOK, resp.Code)
	})

	resp := ts.api.Get("/api/v1/pairings", token)
	require.Equal(t, http.StatusOK, resp.Code)

	var body struct {
		Pairings []PairingResponse `json:"pairings"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))

	require.Len(t, body.Pairings, 1)
	assert.Equal(t, "pair_test", body.Pairings[0].ID)
	assert.Equal(t, "Test Remote", body.Pairings[0].DeviceName)
}

func TestRevokePairing(t *testing.T) {
	ts := setupTestServer(t)
	token := ts.deviceToken(t)

	resp := ts.api.Delete("/api/v1/pairings/pair_test", token)
	require.Equal(t, http.StatusOK, resp.Code)

	// The token survives verification but its device is gone from the
	// pairing list.
	list := ts.api.Get("/api/v1/pairings", token)
	require.Equal(t, http.StatusOK, list.Code)

	var body struct {
		Pairings []PairingResponse `json:"pairings"`
	}
	require.NoError(t, json.Unmarshal(list.Body.Bytes(), &body))
	assert.Empty(t, body.Pairings)
}

func TestBeginPairing_RateLimited(t *testing.T) {
	ts := setupTestServer(t)

	var limited bool
	for range 10 {
		resp := ts.api.Post("/api/v1/pair/begin", map[string]any{
			"device_name": "Greedy",
		})
		if resp.Code == http.StatusTooManyRequests {
			limited = true
			break
		}
		require.Equal(t, http.StatusOK, resp.Code)
	}
	assert.True(t, limited, "burst of begins should hit the rate limit")
}
