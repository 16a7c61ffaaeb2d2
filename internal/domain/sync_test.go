package domain

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSyncHistory_Append_Bounded(t *testing.T) {
	var h SyncHistory

	for i := range 25 {
		h = h.Append(SyncHistoryEntry{
			ID:              fmt.Sprintf("his_%d", i),
			TimestampMillis: float64(i),
			Result:          SyncQueued,
		})
	}

	assert.Len(t, h, HistoryLimit)
	// Oldest five dropped, most recent kept in order.
	assert.Equal(t, "his_5", h[0].ID)
	assert.Equal(t, "his_24", h[len(h)-1].ID)
}

func TestSyncHistory_Append_UnderLimit(t *testing.T) {
	var h SyncHistory
	h = h.Append(SyncHistoryEntry{ID: "his_a"})
	h = h.Append(SyncHistoryEntry{ID: "his_b"})

	assert.Len(t, h, 2)
	assert.Equal(t, "his_a", h[0].ID)
}
