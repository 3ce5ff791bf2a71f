package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mattjoyce/courier/internal/config"
	"github.com/mattjoyce/courier/internal/directory"
	"github.com/mattjoyce/courier/internal/lock"
	"github.com/mattjoyce/courier/internal/log"
	"github.com/mattjoyce/courier/internal/queue"
	"github.com/mattjoyce/courier/internal/storage"
	"github.com/mattjoyce/courier/internal/store"
)

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	configYAML := `
service:
  log_level: error
storage:
  driver: sqlite
  path: ` + filepath.Join(dir, "courier.db") + `
webhook:
  listen: 127.0.0.1:0
  app_secret: app-secret
  verify_token: verify-token
slack:
  bot_token: xoxb-test
  fallback_channel: C_FALLBACK
trigger:
  enabled: true
  webhook_url: https://hooks.slack.com/services/T000/B000/XXXX
api:
  enabled: true
  listen: localhost:0
  auth:
    api_key: admin-key
`
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(configYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCmd()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestVersionCommand(t *testing.T) {
	stdout, _, err := runCLI(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if stdout != "courier version "+version+"\n" {
		t.Errorf("unexpected output: %q", stdout)
	}
}

func TestConfigCheck(t *testing.T) {
	path := writeConfig(t, t.TempDir())

	stdout, _, err := runCLI(t, "--config", path, "config", "check")
	if err != nil {
		t.Fatalf("config check: %v", err)
	}
	if !strings.Contains(stdout, "Config: "+path) {
		t.Errorf("stdout missing config source: %s", stdout)
	}
	if !strings.Contains(stdout, "Configuration valid") {
		t.Errorf("stdout missing verdict: %s", stdout)
	}
}

func TestConfigCheckJSONReportsFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
storage:
  path: ` + filepath.Join(dir, "courier.db") + `
trigger:
  enabled: false
`
	if err := os.WriteFile(path, []byte(configYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	stdout, _, err := runCLI(t, "--config", path, "config", "check", "--json")
	if err == nil {
		t.Fatal("expected config check to fail without any delivery path")
	}
	var result struct {
		Valid  bool `json:"valid"`
		Errors []struct {
			Category string `json:"category"`
		} `json:"errors"`
	}
	if err := json.Unmarshal([]byte(stdout), &result); err != nil {
		t.Fatalf("invalid JSON report %q: %v", stdout, err)
	}
	if result.Valid || len(result.Errors) == 0 || result.Errors[0].Category != "delivery" {
		t.Errorf("unexpected report: %+v", result)
	}
}

func TestConfigLockThenTamper(t *testing.T) {
	path := writeConfig(t, t.TempDir())

	stdout, _, err := runCLI(t, "--config", path, "config", "lock")
	if err != nil {
		t.Fatalf("config lock: %v", err)
	}
	if !strings.Contains(stdout, "Locked "+path) {
		t.Errorf("unexpected lock output: %s", stdout)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(path), config.ChecksumFile)); err != nil {
		t.Fatalf("manifest not written: %v", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = f.WriteString("\n# edited after lock\n")
	_ = f.Close()

	if _, _, err := runCLI(t, "--config", path, "config", "check"); err == nil || !strings.Contains(err.Error(), "hash mismatch") {
		t.Fatalf("expected hash mismatch after tampering, got %v", err)
	}
}

func TestConfigLockWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv(config.EnvConfigPath, "")

	if _, _, err := runCLI(t, "config", "lock"); err == nil || !strings.Contains(err.Error(), "no config file") {
		t.Fatalf("expected no config file error, got %v", err)
	}
}

func TestDirectoryUpsertAndShow(t *testing.T) {
	path := writeConfig(t, t.TempDir())

	stdout, _, err := runCLI(t, "--config", path, "directory", "upsert",
		"--client-id", "acme", "--display-name", "Acme", "--channel", "C_ACME",
		"--sender", "+15550100", "--sender", "15550101")
	if err != nil {
		t.Fatalf("directory upsert: %v", err)
	}
	var stored directory.Entry
	if err := json.Unmarshal([]byte(stdout), &stored); err != nil {
		t.Fatalf("invalid JSON %q: %v", stdout, err)
	}
	if stored.ClientID != "acme" || len(stored.FromIdentifiers) != 2 {
		t.Errorf("unexpected entry: %+v", stored)
	}

	stdout, _, err = runCLI(t, "--config", path, "directory", "show", "acme")
	if err != nil {
		t.Fatalf("directory show: %v", err)
	}
	if !strings.Contains(stdout, `"notificationChannel": "C_ACME"`) {
		t.Errorf("unexpected show output: %s", stdout)
	}

	stdout, _, err = runCLI(t, "--config", path, "directory", "list")
	if err != nil {
		t.Fatalf("directory list: %v", err)
	}
	var entries []directory.Entry
	if err := json.Unmarshal([]byte(stdout), &entries); err != nil {
		t.Fatalf("invalid JSON %q: %v", stdout, err)
	}
	if len(entries) != 1 {
		t.Errorf("expected 1 entry, got %d", len(entries))
	}

	if _, _, err := runCLI(t, "--config", path, "directory", "show", "missing"); err == nil {
		t.Error("expected error for unknown client")
	}
}

func TestDirectoryUpsertSenderClaimed(t *testing.T) {
	path := writeConfig(t, t.TempDir())

	if _, _, err := runCLI(t, "--config", path, "directory", "upsert", "--client-id", "acme", "--channel", "C1", "--sender", "15550100"); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	_, _, err := runCLI(t, "--config", path, "directory", "upsert", "--client-id", "globex", "--channel", "C2", "--sender", "15550100")
	if err == nil || !strings.Contains(err.Error(), "already claimed") {
		t.Fatalf("expected sender claimed error, got %v", err)
	}
}

func TestEventInspectAndRecent(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir)

	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, filepath.Join(dir, "courier.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	st := store.New(db, storage.DialectSQLite, queue.New(db, storage.DialectSQLite, 5), nil, log.Get())
	res, err := st.Write(ctx, store.InboundEvent{MessageID: "wamid.cli", Source: "whatsapp", From: "15550100", Text: "hello"})
	_ = db.Close()
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	stdout, _, err := runCLI(t, "--config", path, "event", "inspect", res.ID)
	if err != nil {
		t.Fatalf("event inspect: %v", err)
	}
	if !strings.Contains(stdout, "Event "+res.ID) || !strings.Contains(stdout, "Relays: 1") {
		t.Errorf("unexpected inspect output: %s", stdout)
	}

	stdout, _, err = runCLI(t, "--config", path, "event", "inspect", "--json", res.ID)
	if err != nil {
		t.Fatalf("event inspect --json: %v", err)
	}
	if !strings.Contains(stdout, `"message_id": "wamid.cli"`) {
		t.Errorf("unexpected JSON output: %s", stdout)
	}

	stdout, _, err = runCLI(t, "--config", path, "event", "recent", "--limit", "5")
	if err != nil {
		t.Fatalf("event recent: %v", err)
	}
	var list []store.InboundEvent
	if err := json.Unmarshal([]byte(stdout), &list); err != nil {
		t.Fatalf("invalid JSON %q: %v", stdout, err)
	}
	if len(list) != 1 || list[0].ID != res.ID {
		t.Errorf("unexpected recent list: %+v", list)
	}

	if _, _, err := runCLI(t, "--config", path, "event", "inspect", "missing"); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestRunServeStartsAndStops(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, t.TempDir()))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	if err := runServe(ctx, cfg); err != nil {
		t.Fatalf("runServe: %v", err)
	}
}

func TestRunServeRefusesSecondInstance(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, t.TempDir()))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	held, err := lock.AcquirePIDLock(lock.PathFor(cfg.Storage.Path))
	if err != nil {
		t.Fatalf("AcquirePIDLock: %v", err)
	}
	defer held.Release()

	err = runServe(context.Background(), cfg)
	if err == nil || !strings.Contains(err.Error(), "another instance") {
		t.Fatalf("expected lock error, got %v", err)
	}
}

func TestResolveWatchTarget(t *testing.T) {
	cfg := config.Defaults()
	cfg.API.Listen = "0.0.0.0:9090"
	cfg.API.Auth.APIKey = "from-config"

	url, key := resolveWatchTarget(cfg, "", "")
	if url != "http://localhost:9090" || key != "from-config" {
		t.Errorf("got %q %q", url, key)
	}

	url, key = resolveWatchTarget(cfg, "https://courier.example.test/", "from-flag")
	if url != "https://courier.example.test" || key != "from-flag" {
		t.Errorf("got %q %q", url, key)
	}
}

func TestWatchRequiresAPIKey(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv(config.EnvConfigPath, "")
	t.Setenv(envAPIKey, "")
	t.Setenv("ADMIN_SEED_KEY", "")

	_, _, err := runCLI(t, "watch")
	if err == nil || !strings.Contains(err.Error(), "API key required") {
		t.Fatalf("expected API key error, got %v", err)
	}
}
