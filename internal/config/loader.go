package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

//go:embed default.yaml
var defaultConfigYAML []byte

// EnvConfigPath names the environment variable consulted by Discover.
const EnvConfigPath = "COURIER_CONFIG"

// ErrNoConfigFile is returned by Discover when no config file exists.
var ErrNoConfigFile = errors.New("no config file found")

// Discover returns the config file to load.
// Priority order: explicit flag, $COURIER_CONFIG, ./config.yaml.
func Discover(flagPath string) (string, error) {
	if flagPath != "" {
		return flagPath, nil
	}
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p, nil
	}
	if _, err := os.Stat("config.yaml"); err == nil {
		return "config.yaml", nil
	}
	return "", ErrNoConfigFile
}

// LoadOrDefault loads the discovered config file, falling back to the
// built-in configuration when none exists.
func LoadOrDefault(flagPath string) (*Config, error) {
	path, err := Discover(flagPath)
	if errors.Is(err, ErrNoConfigFile) {
		return LoadDefault()
	}
	if err != nil {
		return nil, err
	}
	return Load(path)
}

// Load reads, verifies and parses configuration from a file.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", absPath, err)
	}

	if err := verifyConfigHash(absPath); err != nil {
		return nil, err
	}

	cfg, err := parse(data, true)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", absPath, err)
	}
	cfg = applyConfigDefaults(cfg)
	cfg.SourcePath = absPath

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadDefault builds configuration from the embedded default file. Unset
// environment variables resolve to empty strings and then to defaults.
func LoadDefault() (*Config, error) {
	cfg, err := parse(defaultConfigYAML, false)
	if err != nil {
		return nil, fmt.Errorf("parse built-in config: %w", err)
	}
	if cfg.Trigger.WebhookURL == "" {
		cfg.Trigger.Enabled = false
	}
	if cfg.Storage.DSN != "" && cfg.Storage.Path == "" {
		cfg.Storage.Driver = "postgres"
	}
	cfg = applyConfigDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func parse(data []byte, keepMissing bool) (*Config, error) {
	expanded := interpolateEnv(string(data), keepMissing)

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyConfigDefaults merges default values into config where not explicitly set.
func applyConfigDefaults(cfg *Config) *Config {
	defaults := Defaults()

	if cfg.Service.Name == "" {
		cfg.Service.Name = defaults.Service.Name
	}
	if cfg.Service.TickInterval == 0 {
		cfg.Service.TickInterval = defaults.Service.TickInterval
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = defaults.Service.LogLevel
	}
	cfg.Service.LogLevel = strings.ToLower(cfg.Service.LogLevel)
	if cfg.Service.LogFormat == "" {
		cfg.Service.LogFormat = defaults.Service.LogFormat
	}
	if cfg.Service.DedupeTTL == 0 {
		cfg.Service.DedupeTTL = defaults.Service.DedupeTTL
	}
	if cfg.Service.JobLogRetention == 0 {
		cfg.Service.JobLogRetention = defaults.Service.JobLogRetention
	}

	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = defaults.Storage.Driver
	}
	if cfg.Storage.Driver == "sqlite" && cfg.Storage.Path == "" {
		cfg.Storage.Path = defaults.Storage.Path
	}

	w := &cfg.Webhook
	if w.Listen == "" {
		w.Listen = defaults.Webhook.Listen
	}
	if w.Path == "" {
		w.Path = defaults.Webhook.Path
	}
	if w.LegacyPaths == nil {
		w.LegacyPaths = defaults.Webhook.LegacyPaths
	}
	if w.SignatureHeader == "" {
		w.SignatureHeader = defaults.Webhook.SignatureHeader
	}
	if w.MaxBodySize == "" {
		w.MaxBodySize = defaults.Webhook.MaxBodySize
	}
	if w.ProcessTimeout == 0 {
		w.ProcessTimeout = defaults.Webhook.ProcessTimeout
	}

	if cfg.Slack.Timeout == 0 {
		cfg.Slack.Timeout = defaults.Slack.Timeout
	}
	cfg.Slack.Retry = mergeRetry(cfg.Slack.Retry, defaults.Slack.Retry)

	if cfg.Trigger.SettleAfter == 0 {
		cfg.Trigger.SettleAfter = defaults.Trigger.SettleAfter
	}
	if cfg.Trigger.PollInterval == 0 {
		cfg.Trigger.PollInterval = defaults.Trigger.PollInterval
	}
	if cfg.Trigger.Timeout == 0 {
		cfg.Trigger.Timeout = defaults.Trigger.Timeout
	}
	cfg.Trigger.Retry = mergeRetry(cfg.Trigger.Retry, defaults.Trigger.Retry)

	if !cfg.API.Enabled && cfg.API.Listen == "" {
		cfg.API.Listen = defaults.API.Listen
	}

	return cfg
}

func mergeRetry(r, d RetryConfig) RetryConfig {
	if r.MaxAttempts == 0 {
		r.MaxAttempts = d.MaxAttempts
	}
	if r.BackoffBase == 0 {
		r.BackoffBase = d.BackoffBase
	}
	return r
}

// interpolateEnv replaces ${VAR} with environment variable values.
// With keepMissing, undefined variables are left as-is (and fail validation
// where a value is required); otherwise they expand to "".
func interpolateEnv(input string, keepMissing bool) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		if keepMissing {
			return match
		}
		return ""
	})
}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	if cfg.Service.TickInterval <= 0 {
		return fmt.Errorf("service.tick_interval must be positive")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Service.LogLevel] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	if cfg.Service.LogFormat != "json" && cfg.Service.LogFormat != "text" {
		return fmt.Errorf("service.log_format must be one of: json, text (got %q)", cfg.Service.LogFormat)
	}

	switch cfg.Storage.Driver {
	case "sqlite":
		if cfg.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the sqlite driver")
		}
	case "postgres":
		if err := requireResolved("storage.dsn", cfg.Storage.DSN); err != nil {
			return err
		}
		if cfg.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("storage.driver must be one of: sqlite, postgres (got %q)", cfg.Storage.Driver)
	}

	if !strings.HasPrefix(cfg.Webhook.Path, "/") {
		return fmt.Errorf("webhook.path must start with '/' (got %q)", cfg.Webhook.Path)
	}
	for i, p := range cfg.Webhook.LegacyPaths {
		if !strings.HasPrefix(p, "/") || p == cfg.Webhook.Path {
			return fmt.Errorf("webhook.legacy_paths[%d] must start with '/' and differ from webhook.path (got %q)", i, p)
		}
	}
	if _, err := ParseByteSize(cfg.Webhook.MaxBodySize); err != nil {
		return fmt.Errorf("webhook.max_body_size: %w", err)
	}
	if cfg.Webhook.ProcessTimeout <= 0 {
		return fmt.Errorf("webhook.process_timeout must be positive")
	}

	secrets := []struct {
		field string
		value string
	}{
		{"webhook.app_secret", cfg.Webhook.AppSecret},
		{"webhook.verify_token", cfg.Webhook.VerifyToken},
		{"slack.bot_token", cfg.Slack.BotToken},
		{"slack.fallback_channel", cfg.Slack.FallbackChannel},
		{"trigger.webhook_url", cfg.Trigger.WebhookURL},
	}
	for _, s := range secrets {
		if err := requireResolved(s.field, s.value); err != nil {
			return err
		}
	}

	for name, r := range map[string]RetryConfig{"slack.retry": cfg.Slack.Retry, "trigger.retry": cfg.Trigger.Retry} {
		if r.MaxAttempts < 1 {
			return fmt.Errorf("%s.max_attempts must be at least 1", name)
		}
		if r.BackoffBase < 0 {
			return fmt.Errorf("%s.backoff_base must not be negative", name)
		}
	}

	if cfg.Trigger.Enabled && cfg.Trigger.WebhookURL == "" {
		return fmt.Errorf("trigger.webhook_url is required when trigger.enabled is true")
	}

	if cfg.API.Enabled {
		if err := requireResolved("api.auth.api_key", cfg.API.Auth.APIKey); err != nil {
			return err
		}
		if cfg.API.Listen == "" {
			return fmt.Errorf("api.listen is required when api.enabled is true")
		}
	}

	return nil
}

// requireResolved rejects values that still hold a ${VAR} placeholder.
func requireResolved(field, value string) error {
	if !envVarPattern.MatchString(value) {
		return nil
	}
	matches := envVarPattern.FindStringSubmatch(value)
	if len(matches) > 1 {
		return fmt.Errorf("%s: environment variable ${%s} is not set", field, matches[1])
	}
	return fmt.Errorf("%s: unresolved environment variable", field)
}

// ParseByteSize parses size strings like "1MB", "512KB", "1048576" to bytes.
func ParseByteSize(size string) (int64, error) {
	upper := strings.ToUpper(strings.TrimSpace(size))
	if upper == "" {
		return 0, fmt.Errorf("size is empty")
	}

	multiplier := int64(1)
	for _, unit := range []struct {
		suffix string
		factor int64
	}{
		{"KB", 1024},
		{"MB", 1024 * 1024},
		{"GB", 1024 * 1024 * 1024},
	} {
		if strings.HasSuffix(upper, unit.suffix) {
			multiplier = unit.factor
			upper = strings.TrimSuffix(upper, unit.suffix)
			break
		}
	}

	value, err := strconv.ParseInt(strings.TrimSpace(upper), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size value %q: %w", size, err)
	}
	if value <= 0 {
		return 0, fmt.Errorf("size must be positive")
	}

	result := value * multiplier
	if result/multiplier != value {
		return 0, fmt.Errorf("size too large")
	}
	return result, nil
}
