package webhook

import (
	"fmt"

	"github.com/mattjoyce/courier/internal/config"
)

// FromGlobalConfig converts config.WebhookConfig to webhook.Config.
func FromGlobalConfig(wc config.WebhookConfig) (Config, error) {
	maxBodySize := int64(DefaultMaxBodySize)
	if wc.MaxBodySize != "" {
		n, err := config.ParseByteSize(wc.MaxBodySize)
		if err != nil {
			return Config{}, fmt.Errorf("webhook: invalid max_body_size %q: %w", wc.MaxBodySize, err)
		}
		maxBodySize = n
	}

	cfg := Config{
		Listen:           wc.Listen,
		Path:             wc.Path,
		LegacyPaths:      append([]string(nil), wc.LegacyPaths...),
		AppSecret:        wc.AppSecret,
		VerifyToken:      wc.VerifyToken,
		SignatureHeader:  wc.SignatureHeader,
		MaxBodySize:      maxBodySize,
		RequireSignature: wc.SignatureRequired(),
		ProcessTimeout:   wc.ProcessTimeout,
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Path == "" {
		c.Path = DefaultPath
	}
	if c.SignatureHeader == "" {
		c.SignatureHeader = DefaultSignatureHeader
	}
	if c.MaxBodySize <= 0 {
		c.MaxBodySize = DefaultMaxBodySize
	}
	if c.ProcessTimeout <= 0 {
		c.ProcessTimeout = DefaultProcessTimeout
	}
}
