package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/slack-go/slack"
)

// Sender delivers one notification.
type Sender interface {
	Send(ctx context.Context, n Notification) error
}

// ErrNoChannel is returned when a notification has no target channel.
var ErrNoChannel = errors.New("no notification target")

// SlackSender posts through chat.postMessage with a bot token.
type SlackSender struct {
	client *slack.Client
}

// SlackOptions configures NewSlackSender. APIURL overrides the Slack API base
// and must end with a slash.
type SlackOptions struct {
	APIURL  string
	Timeout time.Duration
}

func NewSlackSender(token string, opts SlackOptions) *SlackSender {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	options := []slack.Option{slack.OptionHTTPClient(&http.Client{Timeout: timeout})}
	if opts.APIURL != "" {
		options = append(options, slack.OptionAPIURL(opts.APIURL))
	}
	return &SlackSender{client: slack.New(token, options...)}
}

func (s *SlackSender) Send(ctx context.Context, n Notification) error {
	if n.Channel == "" {
		return ErrNoChannel
	}
	msgOpts := []slack.MsgOption{slack.MsgOptionText(n.Text, false)}
	if len(n.Blocks) > 0 {
		msgOpts = append(msgOpts, slack.MsgOptionBlocks(n.Blocks...))
	}
	if _, _, err := s.client.PostMessageContext(ctx, n.Channel, msgOpts...); err != nil {
		return fmt.Errorf("slack chat.postMessage to %s: %w", n.Channel, err)
	}
	return nil
}
