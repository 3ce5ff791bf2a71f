package store

import (
	"encoding/json"
	"errors"
	"time"
)

// Status is the delivery lifecycle of an inbound event.
type Status string

const (
	// StatusReceived is written by the gateway; delivery is in flight.
	StatusReceived Status = "received"
	// StatusPending marks an event awaiting relay by the trigger path.
	StatusPending   Status = "pending"
	StatusDelivered Status = "delivered"
	StatusFailed    Status = "failed"
)

// Valid reports whether s is one of the known lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusReceived, StatusPending, StatusDelivered, StatusFailed:
		return true
	}
	return false
}

// InboundEvent is one stored message from an external source.
type InboundEvent struct {
	ID                string          `json:"id"`
	MessageID         string          `json:"messageId,omitempty"`
	Source            string          `json:"source"`
	From              string          `json:"from"`
	ClientID          *string         `json:"clientId"`
	SlackChannel      string          `json:"slackChannel,omitempty"`
	Text              string          `json:"text"`
	Body              string          `json:"body"`
	Channel           string          `json:"channel"`
	ProviderTimestamp string          `json:"timestamp,omitempty"`
	Raw               json.RawMessage `json:"raw,omitempty"`
	RawDigest         string          `json:"rawDigest,omitempty"`
	Status            Status          `json:"status"`
	DeliveryAttempted bool            `json:"deliveryAttempted"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
	DeliveredAt       *time.Time      `json:"slackPostedAt,omitempty"`
	DeliveryError     *string         `json:"slackError,omitempty"`
}

// WriteResult reports the stored id. Duplicate is set when an event with the
// same (source, messageId) already existed; ID is then the existing id.
type WriteResult struct {
	ID        string
	Duplicate bool
}

var (
	ErrNotFound     = errors.New("event not found")
	ErrInvalidEvent = errors.New("invalid event")
)
