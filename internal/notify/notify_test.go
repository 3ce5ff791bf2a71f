package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/courier/internal/directory"
	"github.com/mattjoyce/courier/internal/store"
)

func TestFormat_MappedSender(t *testing.T) {
	f := Formatter{FallbackChannel: "C_FALLBACK"}
	entry := &directory.Entry{ClientID: "acme", DisplayName: "Acme Ltd", NotificationChannel: "C_ACME"}

	n := f.Format(store.InboundEvent{Source: "whatsapp", From: "15551234567", Body: "hello there"}, entry)

	assert.Equal(t, "C_ACME", n.Channel)
	assert.False(t, n.Unmapped)
	assert.Equal(t, "📲 WhatsApp message\nFrom: 15551234567\nClient: Acme Ltd\nhello there", n.Text)
	require.Len(t, n.Blocks, 3)
	assert.Equal(t, slack.MBTHeader, n.Blocks[0].BlockType())
}

func TestFormat_UnmappedSenderUsesFallback(t *testing.T) {
	f := Formatter{FallbackChannel: "C_FALLBACK"}

	n := f.Format(store.InboundEvent{Source: "whatsapp", From: "1999", Body: "[image message]"}, nil)

	assert.Equal(t, "C_FALLBACK", n.Channel)
	assert.True(t, n.Unmapped)
	assert.True(t, strings.HasPrefix(n.Text, "⚠️ Unmapped sender\n📲 WhatsApp message"))
	assert.NotContains(t, n.Text, "Client:")
	require.Len(t, n.Blocks, 4)
	assert.Equal(t, slack.MBTSection, n.Blocks[0].BlockType())
}

func TestFormat_ChannelPrecedence(t *testing.T) {
	f := Formatter{FallbackChannel: "C_FALLBACK"}
	entry := &directory.Entry{ClientID: "acme", NotificationChannel: "C_ACME"}

	n := f.Format(store.InboundEvent{Source: "sms", SlackChannel: "C_OVERRIDE", Body: "x"}, entry)
	assert.Equal(t, "C_OVERRIDE", n.Channel)
	assert.True(t, strings.HasPrefix(n.Text, "📩 sms message\n"))
	assert.Contains(t, n.Text, "Client: acme", "display name falls back to client id")

	n = f.Format(store.InboundEvent{Source: "whatsapp", Body: "x"}, &directory.Entry{ClientID: "bare"})
	assert.Equal(t, "C_FALLBACK", n.Channel)

	n = Formatter{}.Format(store.InboundEvent{Source: "whatsapp", Body: "x"}, nil)
	assert.Empty(t, n.Channel)
}

func TestRelayText(t *testing.T) {
	client := "acme"
	got := RelayText(store.InboundEvent{
		ClientID:     &client,
		SlackChannel: "C_ACME",
		Source:       "whatsapp",
		Channel:      "whatsapp",
		Text:         "hi",
	})
	assert.Equal(t, "📩 *New client message*\n*clientId:* acme\n*slackChannel:* C_ACME\n*source:* whatsapp\n*channel:* whatsapp\n*text:* hi", got)

	got = RelayText(store.InboundEvent{})
	assert.Equal(t, "📩 *New client message*\n*clientId:* unknown-client\n*slackChannel:* \n*source:* unknown\n*channel:* unknown\n*text:* ", got)
}

func newSlackAPI(t *testing.T, handler http.HandlerFunc) *SlackSender {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewSlackSender("xoxb-test", SlackOptions{APIURL: srv.URL + "/", Timeout: 2 * time.Second})
}

func TestSlackSender_PostsMessage(t *testing.T) {
	var gotChannel, gotText, gotAuth string
	s := newSlackAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat.postMessage", r.URL.Path)
		assert.NoError(t, r.ParseForm())
		gotChannel = r.FormValue("channel")
		gotText = r.FormValue("text")
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"ok":true,"channel":"C1","ts":"1"}`)
	})

	n := Formatter{}.Format(store.InboundEvent{Source: "whatsapp", From: "1555", Body: "hello"}, &directory.Entry{ClientID: "acme", NotificationChannel: "C1"})
	require.NoError(t, s.Send(context.Background(), n))
	assert.Equal(t, "C1", gotChannel)
	assert.Equal(t, n.Text, gotText)
	assert.Equal(t, "Bearer xoxb-test", gotAuth)
}

func TestSlackSender_LogicalErrorIsPermanent(t *testing.T) {
	s := newSlackAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"ok":false,"error":"channel_not_found"}`)
	})

	err := s.Send(context.Background(), Notification{Channel: "C_GONE", Text: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel_not_found")
	assert.True(t, Permanent(err))
}

func TestSlackSender_NoChannel(t *testing.T) {
	s := NewSlackSender("xoxb-test", SlackOptions{})
	err := s.Send(context.Background(), Notification{Text: "x"})
	assert.ErrorIs(t, err, ErrNoChannel)
	assert.True(t, Permanent(err))
}

func TestWebhookSender_PostsText(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = io.WriteString(w, "ok")
	}))
	defer srv.Close()

	w := NewWebhookSender(srv.URL, time.Second)
	require.NoError(t, w.Send(context.Background(), Notification{Channel: "ignored", Text: "relay me"}))
	assert.Equal(t, "relay me", body["text"])
}

func TestWebhookSender_ClientErrorIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no_service", http.StatusNotFound)
	}))
	defer srv.Close()

	err := NewWebhookSender(srv.URL, time.Second).Send(context.Background(), Notification{Text: "x"})
	require.Error(t, err)
	assert.True(t, Permanent(err))
}

func TestWebhookSender_Unconfigured(t *testing.T) {
	err := NewWebhookSender("", 0).Send(context.Background(), Notification{Text: "x"})
	assert.Error(t, err)
}

type flakySender struct {
	calls atomic.Int32
	errs  []error
}

func (f *flakySender) Send(context.Context, Notification) error {
	i := int(f.calls.Add(1)) - 1
	if i < len(f.errs) {
		return f.errs[i]
	}
	return nil
}

func TestRetrying_RecoversFromTransientErrors(t *testing.T) {
	next := &flakySender{errs: []error{
		slack.StatusCodeError{Code: http.StatusBadGateway, Status: "502 Bad Gateway"},
		&slack.RateLimitedError{RetryAfter: time.Millisecond},
	}}
	r := &Retrying{Next: next, MaxAttempts: 3, BackoffBase: time.Millisecond}

	require.NoError(t, r.Send(context.Background(), Notification{Channel: "C1"}))
	assert.Equal(t, int32(3), next.calls.Load())
}

func TestRetrying_StopsOnPermanentError(t *testing.T) {
	next := &flakySender{errs: []error{slack.SlackErrorResponse{Err: "invalid_auth"}}}
	r := &Retrying{Next: next, MaxAttempts: 5, BackoffBase: time.Millisecond}

	err := r.Send(context.Background(), Notification{Channel: "C1"})
	require.Error(t, err)
	assert.Equal(t, int32(1), next.calls.Load())
}

func TestRetrying_GivesUpAfterMaxAttempts(t *testing.T) {
	boom := errors.New("connection reset")
	next := &flakySender{errs: []error{boom, boom, boom, boom}}
	r := &Retrying{Next: next, MaxAttempts: 3, BackoffBase: time.Millisecond}

	err := r.Send(context.Background(), Notification{Channel: "C1"})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int32(3), next.calls.Load())
}

func TestRetrying_HonoursContext(t *testing.T) {
	boom := errors.New("timeout")
	next := &flakySender{errs: []error{boom, boom}}
	r := &Retrying{Next: next, MaxAttempts: 2, BackoffBase: time.Hour}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := r.Send(ctx, Notification{Channel: "C1"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(1), next.calls.Load())
}

func TestBackoffCapped(t *testing.T) {
	assert.Equal(t, time.Second, backoff(time.Second, 1))
	assert.Equal(t, 4*time.Second, backoff(time.Second, 3))
	assert.Equal(t, maxBackoff, backoff(time.Second, 40))
}
