package telemetry

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewLogHandler_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newLogHandler(&buf, "json", "info"))
	logger.Info("secret disclosed", "secret_id", "abc-123", "one_time", true)

	line := strings.TrimSpace(buf.String())
	if line == "" {
		t.Fatal("JSON handler produced no output")
	}

	var record map[string]interface{}
	if err := json.Unmarshal([]byte(line), &record); err != nil {
		t.Fatalf("output is not valid JSON: %v\noutput: %s", err, line)
	}
	if record["msg"] != "secret disclosed" {
		t.Errorf("msg = %v, want secret disclosed", record["msg"])
	}
	if record["secret_id"] != "abc-123" {
		t.Errorf("secret_id = %v, want abc-123", record["secret_id"])
	}
}

func TestNewLogHandler_TextOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newLogHandler(&buf, "text", "info"))
	logger.Info("purge complete", "purged", 3)

	line := buf.String()
	if !strings.Contains(line, "purge complete") {
		t.Errorf("text output missing message: %q", line)
	}
	if !strings.Contains(line, "purged=3") {
		t.Errorf("text output missing purged=3: %q", line)
	}
}

func TestNewLogHandler_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newLogHandler(&buf, "json", "warn"))
	logger.Info("disclosure attempt")
	logger.Warn("invalid password")

	output := buf.String()
	if strings.Contains(output, "disclosure attempt") {
		t.Error("Info record appeared despite warn level")
	}
	if !strings.Contains(output, "invalid password") {
		t.Error("Warn record was suppressed")
	}
}

func TestNewLogHandler_DebugAddsSource(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newLogHandler(&buf, "json", "debug"))
	logger.Debug("checking expiry")

	if !strings.Contains(buf.String(), "source") {
		t.Errorf("debug level should include source location: %q", buf.String())
	}
}

func TestSetupLogger_DoesNotPanic(t *testing.T) {
	formats := []string{"json", "text", "JSON", "", "unknown"}
	levels := []string{"debug", "info", "warn", "error", "", "unknown"}

	for _, format := range formats {
		for _, level := range levels {
			t.Run(format+"/"+level, func(t *testing.T) {
				defer func() {
					if r := recover(); r != nil {
						t.Errorf("SetupLogger(%q, %q) panicked: %v", format, level, r)
					}
				}()
				SetupLogger(format, level)
			})
		}
	}
	// Quiet the default logger again for the rest of the binary
	SetupLogger("text", "error")
}
