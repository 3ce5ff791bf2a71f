package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_MinimalAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
webhook:
  app_secret: s3cret
  verify_token: tok
trigger:
  enabled: false
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "courier", cfg.Service.Name)
	assert.Equal(t, "info", cfg.Service.LogLevel)
	assert.Equal(t, "json", cfg.Service.LogFormat)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, "./data/courier.db", cfg.Storage.Path)
	assert.Equal(t, "/webhooks/whatsapp", cfg.Webhook.Path)
	assert.Equal(t, []string{"/api/webhooks/whatsapp"}, cfg.Webhook.LegacyPaths)
	assert.Equal(t, "X-Hub-Signature-256", cfg.Webhook.SignatureHeader)
	assert.Equal(t, 30*time.Second, cfg.Webhook.ProcessTimeout)
	assert.True(t, cfg.Webhook.SignatureRequired())
	assert.Equal(t, 3, cfg.Slack.Retry.MaxAttempts)
	assert.Equal(t, 5, cfg.Trigger.Retry.MaxAttempts)
	assert.Equal(t, path, cfg.SourcePath)
}

func TestLoad_EnvInterpolation(t *testing.T) {
	t.Setenv("TEST_COURIER_SECRET", "from-env")
	t.Setenv("TEST_COURIER_HOOK", "https://hooks.slack.test/T/B/X")

	path := writeConfig(t, `
webhook:
  app_secret: ${TEST_COURIER_SECRET}
trigger:
  enabled: true
  webhook_url: ${TEST_COURIER_HOOK}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Webhook.AppSecret)
	assert.Equal(t, "https://hooks.slack.test/T/B/X", cfg.Trigger.WebhookURL)
}

func TestLoad_UnresolvedSecretFails(t *testing.T) {
	path := writeConfig(t, `
slack:
  bot_token: ${TEST_COURIER_DEFINITELY_UNSET}
trigger:
  enabled: false
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TEST_COURIER_DEFINITELY_UNSET")
}

func TestLoad_ExplicitRequireSignatureFalse(t *testing.T) {
	path := writeConfig(t, `
webhook:
  require_signature: false
trigger:
  enabled: false
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.False(t, cfg.Webhook.SignatureRequired())
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "bad log level",
			content: "service:\n  log_level: loud\ntrigger:\n  enabled: false\n",
			want:    "service.log_level",
		},
		{
			name:    "bad log format",
			content: "service:\n  log_format: xml\ntrigger:\n  enabled: false\n",
			want:    "service.log_format",
		},
		{
			name:    "postgres without dsn",
			content: "storage:\n  driver: postgres\ntrigger:\n  enabled: false\n",
			want:    "storage.dsn",
		},
		{
			name:    "trigger without url",
			content: "trigger:\n  enabled: true\n",
			want:    "trigger.webhook_url",
		},
		{
			name:    "bad body size",
			content: "webhook:\n  max_body_size: lots\ntrigger:\n  enabled: false\n",
			want:    "webhook.max_body_size",
		},
		{
			name:    "relative path",
			content: "webhook:\n  path: hooks\ntrigger:\n  enabled: false\n",
			want:    "webhook.path",
		},
		{
			name:    "duplicate legacy path",
			content: "webhook:\n  legacy_paths: [/webhooks/whatsapp]\ntrigger:\n  enabled: false\n",
			want:    "webhook.legacy_paths[0]",
		},
		{
			name:    "zero retry attempts",
			content: "slack:\n  retry:\n    max_attempts: -1\ntrigger:\n  enabled: false\n",
			want:    "slack.retry.max_attempts",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file not found")
}

func TestLoadDefault_FromEnvironment(t *testing.T) {
	t.Setenv("META_APP_SECRET", "app-secret")
	t.Setenv("WHATSAPP_VERIFY_TOKEN", "verify")
	t.Setenv("SLACK_BOT_TOKEN", "xoxb-test")
	t.Setenv("SLACK_FALLBACK_CHANNEL_ID", "C0FALLBACK")
	t.Setenv("SLACK_WEBHOOK_URL", "")
	t.Setenv("COURIER_DB_PATH", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("COURIER_LISTEN", "")

	cfg, err := LoadDefault()
	require.NoError(t, err)

	assert.Equal(t, "app-secret", cfg.Webhook.AppSecret)
	assert.Equal(t, "verify", cfg.Webhook.VerifyToken)
	assert.Equal(t, "xoxb-test", cfg.Slack.BotToken)
	assert.Equal(t, "C0FALLBACK", cfg.Slack.FallbackChannel)
	assert.Equal(t, "0.0.0.0:8081", cfg.Webhook.Listen)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, "./data/courier.db", cfg.Storage.Path)
	assert.False(t, cfg.Trigger.Enabled, "trigger needs a webhook url")
	assert.Empty(t, cfg.SourcePath)
}

func TestLoadDefault_PostgresFromDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://courier@localhost/courier")
	t.Setenv("COURIER_DB_PATH", "")
	t.Setenv("SLACK_WEBHOOK_URL", "https://hooks.slack.test/x")

	cfg, err := LoadDefault()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.True(t, cfg.Trigger.Enabled)
}

func TestDiscover(t *testing.T) {
	t.Setenv(EnvConfigPath, "")

	got, err := Discover("/etc/courier/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, "/etc/courier/config.yaml", got)

	t.Setenv(EnvConfigPath, "/from/env.yaml")
	got, err = Discover("")
	require.NoError(t, err)
	assert.Equal(t, "/from/env.yaml", got)
}

func TestInterpolateEnv(t *testing.T) {
	t.Setenv("TEST_COURIER_SET", "value")

	assert.Equal(t, "a value b", interpolateEnv("a ${TEST_COURIER_SET} b", true))
	assert.Equal(t, "${TEST_COURIER_UNSET_X}", interpolateEnv("${TEST_COURIER_UNSET_X}", true))
	assert.Equal(t, "", interpolateEnv("${TEST_COURIER_UNSET_X}", false))
}

func TestParseByteSize(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{in: "1048576", want: 1048576},
		{in: "512KB", want: 512 * 1024},
		{in: "2mb", want: 2 * 1024 * 1024},
		{in: "1GB", want: 1024 * 1024 * 1024},
		{in: "", wantErr: true},
		{in: "0", wantErr: true},
		{in: "-5MB", wantErr: true},
		{in: "tenMB", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseByteSize(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
