package webhook

import (
	"context"
	"time"
)

// Processor handles a verified webhook body after the provider has been
// acknowledged. It owns all error reporting; nothing flows back to the caller.
type Processor interface {
	Process(ctx context.Context, body []byte)
}

// Config holds webhook server configuration.
type Config struct {
	Listen string

	// Path is the primary endpoint; LegacyPaths serve the same handlers.
	Path        string
	LegacyPaths []string

	// AppSecret is the Meta app secret used for HMAC verification.
	AppSecret string

	// VerifyToken answers the GET subscription handshake.
	VerifyToken string

	SignatureHeader string
	MaxBodySize     int64

	// RequireSignature rejects POSTs when AppSecret is empty.
	RequireSignature bool

	// ProcessTimeout bounds detached processing of one request.
	ProcessTimeout time.Duration
}

// ErrorResponse is the JSON response for webhook errors.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is returned by /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// Default values
const (
	DefaultPath            = "/webhooks/whatsapp"
	DefaultSignatureHeader = "X-Hub-Signature-256"
	DefaultMaxBodySize     = 1048576 // 1 MB
	DefaultProcessTimeout  = 30 * time.Second
)
