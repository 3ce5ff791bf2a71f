package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("Failed to decode JSON: %v (raw %q)", err, buf.String())
	}
	return out
}

func TestSetOutputJSON(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, "DEBUG", "json")

	Debug("debug line", "k", "v")

	out := decodeLine(t, &buf)
	if out["msg"] != "debug line" {
		t.Errorf("Expected msg 'debug line', got %v", out["msg"])
	}
	if out["k"] != "v" {
		t.Errorf("Expected k 'v', got %v", out["k"])
	}
}

func TestSetOutputLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, "warn", "json")

	Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("Expected info to be filtered at warn level, got %q", buf.String())
	}
	Warn("kept")
	if !strings.Contains(buf.String(), "kept") {
		t.Errorf("Expected warn line, got %q", buf.String())
	}
}

func TestSetOutputText(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, "info", "text")

	WithComponent("gateway").Info("text line", "channel", "C1")

	got := buf.String()
	if !strings.Contains(got, "text line") {
		t.Errorf("Expected message in text output, got %q", got)
	}
	if !strings.Contains(got, "gateway") {
		t.Errorf("Expected component in text output, got %q", got)
	}
	if strings.HasPrefix(strings.TrimSpace(got), "{") {
		t.Errorf("Expected non-JSON output for text format, got %q", got)
	}
}

func TestContextHelpers(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, "info", "json")

	WithComponent("test-comp").Info("hello")

	out := decodeLine(t, &buf)
	if out["component"] != "test-comp" {
		t.Errorf("Expected component 'test-comp', got %v", out["component"])
	}
	if out["msg"] != "hello" {
		t.Errorf("Expected msg 'hello', got %v", out["msg"])
	}
}

func TestWithJob(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, "info", "json")

	WithJob("job-123").Info("job msg")

	out := decodeLine(t, &buf)
	if out["job_id"] != "job-123" {
		t.Errorf("Expected job_id 'job-123', got %v", out["job_id"])
	}
}
