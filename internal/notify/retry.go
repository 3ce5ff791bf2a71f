package notify

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/slack-go/slack"
)

const maxBackoff = 30 * time.Second

// Retrying retries transient send failures with exponential backoff.
type Retrying struct {
	Next        Sender
	MaxAttempts int
	BackoffBase time.Duration
	Logger      *slog.Logger
}

func (r *Retrying) Send(ctx context.Context, n Notification) error {
	attempts := r.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = r.Next.Send(ctx, n)
		if err == nil {
			return nil
		}
		if Permanent(err) || attempt == attempts {
			return err
		}

		wait := backoff(r.BackoffBase, attempt)
		var rl *slack.RateLimitedError
		if errors.As(err, &rl) && rl.RetryAfter > 0 {
			wait = rl.RetryAfter
		}
		if r.Logger != nil {
			r.Logger.Warn("notification send failed, retrying",
				"attempt", attempt,
				"max_attempts", attempts,
				"retry_in", wait.String(),
				"channel", n.Channel,
				"error", err,
			)
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return errors.Join(err, ctx.Err())
		case <-t.C:
		}
	}
	return err
}

// Permanent reports whether err cannot succeed on retry: Slack API logical
// errors (channel_not_found, invalid_auth, ...) and 4xx webhook responses
// other than 429.
func Permanent(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNoChannel) {
		return true
	}
	var rl *slack.RateLimitedError
	if errors.As(err, &rl) {
		return false
	}
	var se slack.SlackErrorResponse
	if errors.As(err, &se) {
		return true
	}
	var sc slack.StatusCodeError
	if errors.As(err, &sc) {
		return sc.Code >= 400 && sc.Code < 500 && sc.Code != http.StatusTooManyRequests
	}
	return false
}

func backoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	d := base
	for i := 1; i < attempt && d < maxBackoff; i++ {
		d *= 2
	}
	return min(d, maxBackoff)
}
