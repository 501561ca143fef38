package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewServerLogger_WritesJSONAtConfiguredLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newServerLogger("warn", &buf)

	logger.Info("hidden below warn")
	logger.Warn("queue backlog", "pending", 3)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one log line at warn level, got %q", buf.String())
	}
	var record map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &record); err != nil {
		t.Fatalf("expected JSON log line, got %q: %v", lines[0], err)
	}
	if !strings.Contains(lines[0], "queue backlog") || !strings.Contains(lines[0], "pending") {
		t.Fatalf("expected message and attributes in %q", lines[0])
	}
}
