package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name: "JSON format to stdout",
			config: Config{
				Level:  "info",
				Format: "json",
				Output: "stdout",
			},
			wantErr: false,
		},
		{
			name: "Console format to stderr",
			config: Config{
				Level:  "debug",
				Format: "console",
				Output: "stderr",
			},
			wantErr: false,
		},
		{
			name: "Invalid log level defaults to info",
			config: Config{
				Level:  "invalid",
				Format: "json",
				Output: "stdout",
			},
			wantErr: false,
		},
		{
			name: "Unwritable file path",
			config: Config{
				Level:  "info",
				Format: "json",
				Output: "/nonexistent-dir/fetscr.log",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewLogger() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && logger == nil {
				t.Error("Expected non-nil logger")
			}
		})
	}
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()

	var entries []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("Failed to parse log line %q: %v", line, err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "warn")

	logger.Debug("hidden debug")
	logger.Info("hidden info")
	logger.Warn("visible warn")
	logger.Error("visible error")

	entries := decodeLines(t, &buf)
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if entries[0]["message"] != "visible warn" {
		t.Errorf("Unexpected first message %v", entries[0]["message"])
	}
}

func TestLoggerWithFields(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "info")

	logger.
		WithRequestID("req-123").
		WithAccountID("acct-1").
		WithKeyword("ceo").
		WithFields(map[string]interface{}{"key1": "value1"}).
		Info("with fields")

	entries := decodeLines(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(entries))
	}
	entry := entries[0]
	for key, want := range map[string]string{
		"request_id": "req-123",
		"account_id": "acct-1",
		"keyword":    "ceo",
		"key1":       "value1",
	} {
		if entry[key] != want {
			t.Errorf("Expected %s=%s, got %v", key, want, entry[key])
		}
	}
}

func TestLogAggregation(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "info")

	logger.LogAggregation("acct-1", 2, 8, 1, 150*time.Millisecond, nil)
	logger.LogAggregation("acct-1", 2, 0, 2, time.Millisecond, errors.New("quota"))

	entries := decodeLines(t, &buf)
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if entries[0]["level"] != "info" || entries[0]["results"] != float64(8) {
		t.Errorf("Unexpected success entry %v", entries[0])
	}
	if entries[1]["level"] != "warn" || entries[1]["error"] != "quota" {
		t.Errorf("Unexpected failure entry %v", entries[1])
	}
}

func TestLogUpstreamPageLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "info")

	// debug level success is filtered out at info
	logger.LogUpstreamPage("acme ceo", 1, "success", 10, time.Millisecond, nil)
	logger.LogUpstreamPage("acme ceo", 11, "failed", 0, time.Millisecond, errors.New("status 429"))

	entries := decodeLines(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(entries))
	}
	if entries[0]["status"] != "failed" || entries[0]["start"] != float64(11) {
		t.Errorf("Unexpected entry %v", entries[0])
	}
}

func TestLogHTTPRequest(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "info")

	logger.LogHTTPRequest("POST", "/api/v1/scrape", "127.0.0.1", 500, 10*time.Millisecond)

	entries := decodeLines(t, &buf)
	if len(entries) != 1 || entries[0]["level"] != "error" {
		t.Fatalf("Expected one error entry, got %v", entries)
	}
	if entries[0]["status_code"] != float64(500) {
		t.Errorf("Expected status_code=500, got %v", entries[0]["status_code"])
	}
}

func TestNopLogger(t *testing.T) {
	logger := Nop()
	logger.Info("discarded")
	logger.WithError(errors.New("x")).Error("discarded")
}
