package api

import (
	"encoding/json"

	"github.com/mattjoyce/courier/internal/directory"
)

// SeedClientRequest is the JSON body for POST /api/admin/seed/client.
type SeedClientRequest struct {
	ClientID            string   `json:"clientId"`
	DisplayName         string   `json:"displayName"`
	NotificationChannel string   `json:"notificationChannel"`
	FromIdentifiers     []string `json:"fromIdentifiers"`
}

// SeedClientResponse is returned after a directory upsert.
type SeedClientResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    directory.Entry `json:"data"`
}

// TestMessageRequest is the JSON body for POST /api/admin/test/client-message.
// ClientID is raw so that an absent key can be told apart from null.
type TestMessageRequest struct {
	ClientID     json.RawMessage `json:"clientId"`
	Source       string          `json:"source"`
	Channel      string          `json:"channel"`
	SlackChannel string          `json:"slackChannel"`
	Text         string          `json:"text"`
	From         string          `json:"from"`
	Body         string          `json:"body"`
	Timestamp    string          `json:"timestamp"`
	MessageID    string          `json:"messageId"`
	Raw          json.RawMessage `json:"raw"`
	Status       string          `json:"status"`
}

// TestMessageResponse echoes the request with the stored event id.
type TestMessageResponse struct {
	Success   bool           `json:"success"`
	Message   string         `json:"message"`
	MessageID string         `json:"messageId"`
	Data      map[string]any `json:"data"`
}

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	QueueDepth    int    `json:"queue_depth"`
}
