// Package doctor reports configurations that load cleanly but will not relay
// messages the way an operator expects.
package doctor

import (
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/mattjoyce/courier/internal/config"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor inspects a loaded configuration.
type Doctor struct {
	cfg *config.Config
}

// New creates a Doctor from a loaded config.
func New(cfg *config.Config) *Doctor {
	return &Doctor{cfg: cfg}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	d.validateDeliveryPaths(r)
	d.validateListeners(r)
	d.warnWebhookSecurity(r)
	d.warnSlackSettings(r)
	d.warnTriggerSettings(r)
	d.warnStorage(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

// validateDeliveryPaths requires at least one way to reach Slack.
func (d *Doctor) validateDeliveryPaths(r *Result) {
	if d.cfg.Slack.BotToken == "" && !d.cfg.Trigger.Enabled {
		d.addError(r, "delivery", "slack.bot_token",
			"no delivery path: slack.bot_token is empty and the relay trigger is disabled")
	}
}

// validateListeners checks the webhook and admin listeners do not collide.
func (d *Doctor) validateListeners(r *Result) {
	if !d.cfg.API.Enabled {
		return
	}
	if d.cfg.API.Listen == d.cfg.Webhook.Listen {
		d.addError(r, "api", "api.listen",
			fmt.Sprintf("admin API and webhook cannot share listener %q", d.cfg.API.Listen))
	}
	if d.cfg.API.Auth.APIKey == "" {
		d.addWarning(r, "api", "api.auth.api_key",
			"admin API enabled without a key; every admin request will be answered with 500")
	}
	if host, _, err := net.SplitHostPort(d.cfg.API.Listen); err == nil && !isLoopback(host) {
		d.addWarning(r, "api", "api.listen",
			fmt.Sprintf("admin API listens on non-loopback address %q", d.cfg.API.Listen))
	}
}

func (d *Doctor) warnWebhookSecurity(r *Result) {
	w := d.cfg.Webhook
	switch {
	case w.AppSecret == "" && w.SignatureRequired():
		d.addWarning(r, "webhook", "webhook.app_secret",
			"app secret not set; every webhook POST will be rejected with 401")
	case w.AppSecret == "":
		d.addWarning(r, "webhook", "webhook.require_signature",
			"signature verification disabled; unsigned payloads will be accepted")
	}
	if w.VerifyToken == "" {
		d.addWarning(r, "webhook", "webhook.verify_token",
			"verify token not set; the subscription handshake will always be refused")
	}
}

func (d *Doctor) warnSlackSettings(r *Result) {
	s := d.cfg.Slack
	if s.BotToken == "" {
		d.addWarning(r, "slack", "slack.bot_token",
			"bot token not set; messages are delivered only through the relay trigger")
		return
	}
	if s.FallbackChannel == "" {
		d.addWarning(r, "slack", "slack.fallback_channel",
			"fallback channel not set; messages from unmapped senders cannot be posted directly")
	}
}

// warnTriggerSettings flags a settle window shorter than a worst-case direct
// delivery, which makes double posts likely.
func (d *Doctor) warnTriggerSettings(r *Result) {
	t := d.cfg.Trigger
	if !t.Enabled {
		if d.cfg.Slack.BotToken != "" {
			d.addWarning(r, "trigger", "trigger.enabled",
				"relay trigger disabled; failed direct deliveries are stored but never retried")
		}
		return
	}

	if u, err := url.Parse(t.WebhookURL); err != nil || u.Host == "" {
		d.addError(r, "trigger", "trigger.webhook_url",
			fmt.Sprintf("trigger.webhook_url %q is not an absolute URL", t.WebhookURL))
	} else if u.Scheme != "https" {
		d.addWarning(r, "trigger", "trigger.webhook_url",
			fmt.Sprintf("trigger.webhook_url uses %q; Slack incoming webhooks require https", u.Scheme))
	}

	if worst := directDeliveryBudget(d.cfg.Slack); t.SettleAfter < worst {
		d.addWarning(r, "trigger", "trigger.settle_after",
			fmt.Sprintf("settle_after %s is shorter than a worst-case direct delivery (%s); the trigger may post duplicates",
				t.SettleAfter, worst))
	}
}

func (d *Doctor) warnStorage(r *Result) {
	if d.cfg.Storage.Driver == "sqlite" && d.cfg.Storage.Path == ":memory:" {
		d.addWarning(r, "storage", "storage.path",
			"in-memory database; events, claims and relay jobs are lost on restart")
	}
}

// directDeliveryBudget estimates the longest a retried chat.postMessage can
// take: every attempt times out and every backoff is taken.
func directDeliveryBudget(s config.SlackConfig) time.Duration {
	attempts := max(s.Retry.MaxAttempts, 1)
	total := time.Duration(attempts) * s.Timeout
	backoff := s.Retry.BackoffBase
	for i := 1; i < attempts; i++ {
		total += backoff
		backoff *= 2
	}
	return total
}

func isLoopback(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString("Configuration valid.\n")
		return b.String()
	}

	if r.Valid && len(r.Warnings) > 0 {
		b.WriteString("Configuration valid")
		fmt.Fprintf(&b, " (%d warning(s))\n", len(r.Warnings))
	}

	if !r.Valid {
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		if e.Field != "" {
			fmt.Fprintf(&b, "  ERROR [%s] %s: %s\n", e.Category, e.Field, e.Message)
		} else {
			fmt.Fprintf(&b, "  ERROR [%s] %s\n", e.Category, e.Message)
		}
	}
	for _, w := range r.Warnings {
		if w.Field != "" {
			fmt.Fprintf(&b, "  WARN  [%s] %s: %s\n", w.Category, w.Field, w.Message)
		} else {
			fmt.Fprintf(&b, "  WARN  [%s] %s\n", w.Category, w.Message)
		}
	}

	return b.String()
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
