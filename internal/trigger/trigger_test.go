package trigger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/courier/internal/events"
	"github.com/mattjoyce/courier/internal/notify"
	"github.com/mattjoyce/courier/internal/storage"
	"github.com/mattjoyce/courier/internal/store"
)

func TestDecide(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	settle := 30 * time.Second
	fresh := now.Add(-5 * time.Second)
	stale := now.Add(-time.Minute)

	tests := []struct {
		name string
		ev   store.InboundEvent
		want Decision
	}{
		{"delivered", store.InboundEvent{Status: store.StatusDelivered, DeliveryAttempted: true}, Skip},
		{"pending", store.InboundEvent{Status: store.StatusPending, CreatedAt: fresh}, Relay},
		{"missing status", store.InboundEvent{CreatedAt: fresh}, Relay},
		{"failed", store.InboundEvent{Status: store.StatusFailed, DeliveryAttempted: true, CreatedAt: fresh}, Relay},
		{"received in flight", store.InboundEvent{Status: store.StatusReceived, CreatedAt: fresh}, Wait},
		{"received never settled", store.InboundEvent{Status: store.StatusReceived, CreatedAt: stale}, Relay},
		{"received attempted", store.InboundEvent{Status: store.StatusReceived, DeliveryAttempted: true, CreatedAt: fresh}, Relay},
		{"unknown status", store.InboundEvent{Status: "archived", CreatedAt: stale}, Skip},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.ev, now, settle))
		})
	}
}

type countingSender struct {
	calls atomic.Int32
	err   error
	last  notify.Notification
}

func (c *countingSender) Send(_ context.Context, n notify.Notification) error {
	c.calls.Add(1)
	c.last = n
	return c.err
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "courier.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return store.New(db, storage.DialectSQLite, nil, events.NewHub(16), slog.New(slog.NewJSONHandler(io.Discard, nil)))
}

func newTrigger(st EventStore, sender notify.Sender) *Trigger {
	return New(st, sender, 30*time.Second, slog.New(slog.NewJSONHandler(io.Discard, nil)))
}

func TestHandle_RelaysPendingAndMarksDelivered(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	client := "acme"
	res, err := st.Write(ctx, store.InboundEvent{
		Source: "manual", ClientID: &client, SlackChannel: "C_ACME", Channel: "web", Text: "hello", Status: store.StatusPending,
	})
	require.NoError(t, err)

	sender := &countingSender{}
	tr := newTrigger(st, sender)

	require.NoError(t, tr.Handle(ctx, res.ID))
	assert.Equal(t, int32(1), sender.calls.Load())
	assert.Contains(t, sender.last.Text, "*clientId:* acme")
	assert.Contains(t, sender.last.Text, "*text:* hello")

	ev, err := st.Get(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusDelivered, ev.Status)

	// Duplicate invocation is a no-op.
	require.NoError(t, tr.Handle(ctx, res.ID))
	assert.Equal(t, int32(1), sender.calls.Load())
}

func TestHandle_FailureRecordedAndReturned(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	res, err := st.Write(ctx, store.InboundEvent{Source: "manual", Status: store.StatusPending})
	require.NoError(t, err)

	sendErr := errors.New("webhook 500")
	tr := newTrigger(st, &countingSender{err: sendErr})

	err = tr.Handle(ctx, res.ID)
	assert.ErrorIs(t, err, sendErr)

	ev, err := st.Get(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, ev.Status)
	require.NotNil(t, ev.DeliveryError)
	assert.Equal(t, "webhook 500", *ev.DeliveryError)
}

func TestHandle_ReceivedWaitsForGateway(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	res, err := st.Write(ctx, store.InboundEvent{Source: "whatsapp", MessageID: "wamid.1"})
	require.NoError(t, err)

	sender := &countingSender{}
	tr := newTrigger(st, sender)

	err = tr.Handle(ctx, res.ID)
	assert.ErrorIs(t, err, ErrNotSettled)
	var notSettled *NotSettledError
	require.ErrorAs(t, err, &notSettled)
	ev, err := st.Get(ctx, res.ID)
	require.NoError(t, err)
	assert.True(t, notSettled.DeferUntil().Equal(ev.CreatedAt.Add(30*time.Second)))
	assert.Zero(t, sender.calls.Load())

	// Once the gateway delivers, the retry skips.
	require.NoError(t, st.RecordDelivery(ctx, res.ID, nil))
	require.NoError(t, tr.Handle(ctx, res.ID))
	assert.Zero(t, sender.calls.Load())
}

func TestHandle_ReceivedNeverSettledIsRelayed(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	res, err := st.Write(ctx, store.InboundEvent{Source: "whatsapp", MessageID: "wamid.2"})
	require.NoError(t, err)

	sender := &countingSender{}
	tr := newTrigger(st, sender)
	tr.now = func() time.Time { return time.Now().Add(time.Hour) }

	require.NoError(t, tr.Handle(ctx, res.ID))
	assert.Equal(t, int32(1), sender.calls.Load())
}

func TestHandle_GatewayFailureFallsBack(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	res, err := st.Write(ctx, store.InboundEvent{Source: "whatsapp", MessageID: "wamid.3"})
	require.NoError(t, err)
	require.NoError(t, st.RecordDelivery(ctx, res.ID, notify.ErrNoChannel))

	sender := &countingSender{}
	require.NoError(t, newTrigger(st, sender).Handle(ctx, res.ID))
	assert.Equal(t, int32(1), sender.calls.Load())
}

func TestHandle_MissingEvent(t *testing.T) {
	sender := &countingSender{}
	require.NoError(t, newTrigger(newTestStore(t), sender).Handle(context.Background(), "missing"))
	assert.Zero(t, sender.calls.Load())
}

func TestHandle_WithWebhookSender(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = io.WriteString(w, "ok")
	}))
	defer srv.Close()

	ctx := context.Background()
	st := newTestStore(t)
	res, err := st.Write(ctx, store.InboundEvent{Source: "manual", Text: "via webhook", Status: store.StatusPending})
	require.NoError(t, err)

	tr := newTrigger(st, notify.NewWebhookSender(srv.URL, time.Second))
	require.NoError(t, tr.Handle(ctx, res.ID))
	assert.Equal(t, int32(1), hits.Load())
}

func TestDecisionString(t *testing.T) {
	assert.Equal(t, "skip", Skip.String())
	assert.Equal(t, "relay", Relay.String())
	assert.Equal(t, "wait", Wait.String())
	assert.Equal(t, "Decision(9)", Decision(9).String())
}
