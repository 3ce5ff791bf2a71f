package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/slack-go/slack"
)

// WebhookSender posts text to a Slack incoming webhook. The channel is fixed
// by the webhook; Notification.Channel and Blocks are ignored.
type WebhookSender struct {
	url    string
	client *http.Client
}

func NewWebhookSender(url string, timeout time.Duration) *WebhookSender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookSender{url: url, client: &http.Client{Timeout: timeout}}
}

func (w *WebhookSender) Send(ctx context.Context, n Notification) error {
	if w.url == "" {
		return errors.New("slack webhook url not configured")
	}
	if err := slack.PostWebhookCustomHTTPContext(ctx, w.url, w.client, &slack.WebhookMessage{Text: n.Text}); err != nil {
		return fmt.Errorf("slack webhook: %w", err)
	}
	return nil
}
