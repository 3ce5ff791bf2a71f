// Package trigger relays stored events that the gateway did not deliver.
//
// It runs once per created event through the relay job queue and tolerates
// duplicate and late invocation: an event that is already delivered is
// skipped, and a successful relay marks the event delivered.
package trigger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mattjoyce/courier/internal/notify"
	"github.com/mattjoyce/courier/internal/store"
)

// ErrNotSettled is returned while the gateway may still be delivering the
// event directly. The caller retries later.
var ErrNotSettled = errors.New("event delivery not settled")

// NotSettledError wraps ErrNotSettled with the time the event settles.
type NotSettledError struct {
	SettlesAt time.Time
}

func (e *NotSettledError) Error() string         { return ErrNotSettled.Error() }
func (e *NotSettledError) Unwrap() error         { return ErrNotSettled }
func (e *NotSettledError) DeferUntil() time.Time { return e.SettlesAt }

// EventStore is the subset of store.Store the trigger needs.
type EventStore interface {
	Get(ctx context.Context, id string) (*store.InboundEvent, error)
	RecordDelivery(ctx context.Context, id string, deliveryErr error) error
}

// Decision is the outcome of inspecting an event.
type Decision int

const (
	Skip Decision = iota
	Relay
	Wait
)

func (d Decision) String() string {
	switch d {
	case Skip:
		return "skip"
	case Relay:
		return "relay"
	case Wait:
		return "wait"
	}
	return fmt.Sprintf("Decision(%d)", int(d))
}

type Trigger struct {
	store       EventStore
	sender      notify.Sender
	settleAfter time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

func New(st EventStore, sender notify.Sender, settleAfter time.Duration, logger *slog.Logger) *Trigger {
	return &Trigger{
		store:       st,
		sender:      sender,
		settleAfter: settleAfter,
		logger:      logger.With("component", "trigger"),
		now:         time.Now,
	}
}

// Decide classifies ev at time now.
func Decide(ev store.InboundEvent, now time.Time, settleAfter time.Duration) Decision {
	switch ev.Status {
	case store.StatusDelivered:
		return Skip
	case store.StatusPending, "":
		return Relay
	case store.StatusFailed:
		return Relay
	case store.StatusReceived:
		if !ev.DeliveryAttempted && now.Sub(ev.CreatedAt) < settleAfter {
			return Wait
		}
		return Relay
	}
	// Unknown statuses are left alone.
	return Skip
}

// Handle relays the event with eventID when Decide says so.
func (t *Trigger) Handle(ctx context.Context, eventID string) error {
	logger := t.logger.With("event_id", eventID)

	ev, err := t.store.Get(ctx, eventID)
	if errors.Is(err, store.ErrNotFound) {
		logger.Warn("event not found, nothing to relay")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load event %s: %w", eventID, err)
	}

	decision := Decide(*ev, t.now(), t.settleAfter)
	logger = logger.With("status", ev.Status, "decision", decision.String())

	switch decision {
	case Skip:
		logger.Debug("relay skipped")
		return nil
	case Wait:
		settlesAt := ev.CreatedAt.Add(t.settleAfter)
		logger.Debug("gateway delivery still in flight", "settles_at", settlesAt)
		return &NotSettledError{SettlesAt: settlesAt}
	}

	sendErr := t.sender.Send(ctx, notify.Notification{Text: notify.RelayText(*ev)})
	if sendErr != nil {
		if err := t.store.RecordDelivery(ctx, eventID, sendErr); err != nil {
			logger.Warn("failed to record relay failure", "error", err)
		}
		return fmt.Errorf("relay event %s: %w", eventID, sendErr)
	}

	if err := t.store.RecordDelivery(ctx, eventID, nil); err != nil {
		return fmt.Errorf("record relay of %s: %w", eventID, err)
	}
	logger.Info("event relayed")
	return nil
}
