package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubSnapshotRing(t *testing.T) {
	h := NewHub(3)
	for i := range 5 {
		h.Publish(TypeEventCreated, map[string]int{"n": i})
	}

	all := h.SnapshotSince(0)
	require.Len(t, all, 3)
	assert.Equal(t, int64(3), all[0].ID)
	assert.Equal(t, int64(5), all[2].ID)

	since := h.SnapshotSince(4)
	require.Len(t, since, 1)
	assert.Equal(t, int64(5), since[0].ID)

	var payload map[string]int
	require.NoError(t, json.Unmarshal(since[0].Data, &payload))
	assert.Equal(t, 4, payload["n"])
}

func TestHubSubscribeReceivesAndCancels(t *testing.T) {
	h := NewHub(8)
	ch, cancel := h.Subscribe()

	h.Publish(TypeEventDelivered, map[string]string{"event_id": "e1"})

	select {
	case ev := <-ch:
		assert.Equal(t, TypeEventDelivered, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("expected event")
	}

	cancel()
	_, ok := <-ch
	assert.False(t, ok, "channel closed after cancel")

	// cancel twice is harmless
	cancel()
}

func TestNilHubPublishIsNoop(t *testing.T) {
	var h *Hub
	assert.NotPanics(t, func() { h.Publish(TypeEventFailed, nil) })
}

func TestHubSnapshotPastHead(t *testing.T) {
	h := NewHub(4)
	assert.Empty(t, h.SnapshotSince(0))

	h.Publish(TypeEventCreated, nil)
	h.Publish(TypeEventCreated, nil)
	assert.Empty(t, h.SnapshotSince(2))
	assert.Empty(t, h.SnapshotSince(99))
	assert.Equal(t, []byte("{}"), h.SnapshotSince(1)[0].Data)
}
