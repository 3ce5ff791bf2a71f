package config

import "time"

// Config represents the complete courier configuration.
type Config struct {
	Service ServiceConfig `yaml:"service"`
	Storage StorageConfig `yaml:"storage"`
	Webhook WebhookConfig `yaml:"webhook"`
	Slack   SlackConfig   `yaml:"slack"`
	Trigger TriggerConfig `yaml:"trigger"`
	API     APIConfig     `yaml:"api,omitempty"`

	// SourcePath is the file the config was loaded from; empty for the built-in default.
	SourcePath string `yaml:"-"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name            string        `yaml:"name"`
	TickInterval    time.Duration `yaml:"tick_interval"`
	LogLevel        string        `yaml:"log_level"`
	LogFormat       string        `yaml:"log_format"`
	DedupeTTL       time.Duration `yaml:"dedupe_ttl"`
	JobLogRetention time.Duration `yaml:"job_log_retention"`
}

// StorageConfig selects the database backend.
type StorageConfig struct {
	Driver string `yaml:"driver"` // sqlite | postgres
	Path   string `yaml:"path"`
	DSN    string `yaml:"dsn,omitempty"`
}

// WebhookConfig defines the public WhatsApp webhook listener.
type WebhookConfig struct {
	Listen          string   `yaml:"listen"`
	Path            string   `yaml:"path"`
	LegacyPaths     []string `yaml:"legacy_paths,omitempty"`
	AppSecret       string   `yaml:"app_secret"`
	VerifyToken     string   `yaml:"verify_token"`
	SignatureHeader string   `yaml:"signature_header"`
	MaxBodySize     string   `yaml:"max_body_size"`

	// RequireSignature rejects every POST when no app secret is configured.
	// Pointer so an explicit false survives defaulting.
	RequireSignature *bool `yaml:"require_signature,omitempty"`

	ProcessTimeout time.Duration `yaml:"process_timeout"`
}

// SignatureRequired reports the effective require_signature value.
func (w WebhookConfig) SignatureRequired() bool {
	return w.RequireSignature == nil || *w.RequireSignature
}

// SlackConfig defines the direct chat.postMessage path.
type SlackConfig struct {
	BotToken        string        `yaml:"bot_token"`
	FallbackChannel string        `yaml:"fallback_channel"`
	APIURL          string        `yaml:"api_url,omitempty"`
	Timeout         time.Duration `yaml:"timeout"`
	Retry           RetryConfig   `yaml:"retry"`
}

// TriggerConfig defines the store-triggered relay path.
type TriggerConfig struct {
	Enabled      bool          `yaml:"enabled"`
	WebhookURL   string        `yaml:"webhook_url"`
	SettleAfter  time.Duration `yaml:"settle_after"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Timeout      time.Duration `yaml:"timeout"`
	Retry        RetryConfig   `yaml:"retry"`
}

// RetryConfig defines retry behavior for failed deliveries.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BackoffBase time.Duration `yaml:"backoff_base"`
}

// APIConfig defines the admin HTTP API settings.
type APIConfig struct {
	Enabled bool          `yaml:"enabled"`
	Listen  string        `yaml:"listen"`
	Auth    APIAuthConfig `yaml:"auth"`
}

// APIAuthConfig defines admin API authentication settings.
type APIAuthConfig struct {
	APIKey string `yaml:"api_key"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:            "courier",
			TickInterval:    60 * time.Second,
			LogLevel:        "info",
			LogFormat:       "json",
			DedupeTTL:       72 * time.Hour,
			JobLogRetention: 30 * 24 * time.Hour,
		},
		Storage: StorageConfig{
			Driver: "sqlite",
			Path:   "./data/courier.db",
		},
		Webhook: WebhookConfig{
			Listen:          "0.0.0.0:8081",
			Path:            "/webhooks/whatsapp",
			LegacyPaths:     []string{"/api/webhooks/whatsapp"},
			SignatureHeader: "X-Hub-Signature-256",
			MaxBodySize:     "1MB",
			ProcessTimeout:  30 * time.Second,
		},
		Slack: SlackConfig{
			Timeout: 10 * time.Second,
			Retry: RetryConfig{
				MaxAttempts: 3,
				BackoffBase: time.Second,
			},
		},
		Trigger: TriggerConfig{
			Enabled:      true,
			SettleAfter:  time.Minute,
			PollInterval: time.Second,
			Timeout:      30 * time.Second,
			Retry: RetryConfig{
				MaxAttempts: 5,
				BackoffBase: 10 * time.Second,
			},
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8080",
		},
	}
}
