// Package events fans store and relay lifecycle changes out to in-process
// listeners such as the admin SSE stream.
package events

import (
	"encoding/json"
	"sync"
	"time"
)

// Event types published for inbound message lifecycle changes.
const (
	TypeEventCreated   = "event.created"
	TypeEventDuplicate = "event.duplicate"
	TypeEventDelivered = "event.delivered"
	TypeEventFailed    = "event.failed"
	TypeRelayDead      = "relay.dead"
)

const subscriberBuffer = 64

type Event struct {
	ID   int64     `json:"id"`
	Type string    `json:"type"`
	At   time.Time `json:"at"`
	Data []byte    `json:"data"` // JSON payload
}

// Hub keeps the last few events for late subscribers and broadcasts new ones.
// IDs are assigned under the lock, so the backlog is always in ID order.
// A nil *Hub accepts Publish calls and drops them.
type Hub struct {
	mu      sync.Mutex
	lastID  int64
	limit   int
	backlog []Event
	subs    map[chan Event]struct{}
}

func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = 100
	}
	return &Hub{
		limit:   capacity,
		backlog: make([]Event, 0, capacity),
		subs:    make(map[chan Event]struct{}),
	}
}

// Publish records an event of eventType with data marshalled as JSON.
func (h *Hub) Publish(eventType string, data any) {
	if h == nil {
		return
	}
	payload, err := json.Marshal(data)
	if err != nil || data == nil {
		payload = []byte("{}")
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastID++
	ev := Event{ID: h.lastID, Type: eventType, At: time.Now().UTC(), Data: payload}

	if len(h.backlog) == h.limit {
		copy(h.backlog, h.backlog[1:])
		h.backlog = h.backlog[:h.limit-1]
	}
	h.backlog = append(h.backlog, ev)

	for ch := range h.subs {
		// Slow subscribers miss events rather than block the ingest path.
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe returns a channel of events published from now on and a cancel
// func that closes it. Cancel may be called more than once.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// SnapshotSince returns backlog events with ID > lastID, oldest first.
func (h *Hub) SnapshotSince(lastID int64) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	// Backlog IDs are contiguous, so the first match is found by offset.
	start := 0
	if n := len(h.backlog); n > 0 {
		start = int(lastID - h.backlog[0].ID + 1)
		start = max(0, min(start, n))
	}
	return append([]Event(nil), h.backlog[start:]...)
}
