package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestLoadConfigFromEnv_Defaults(t *testing.T) {
	t.Setenv(EnvFormat, "")
	t.Setenv(EnvLevel, "")
	t.Setenv(EnvSource, "")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadConfigFromEnv() error = %v", err)
	}
	if cfg.Format != "json" {
		t.Fatalf("Format = %q, want %q", cfg.Format, "json")
	}
	if cfg.Level != slog.LevelInfo {
		t.Fatalf("Level = %v, want %v", cfg.Level, slog.LevelInfo)
	}
	if cfg.AddSource {
		t.Fatal("AddSource = true, want false by default")
	}
}

func TestLoadConfigFromEnv_ValidValues(t *testing.T) {
	t.Setenv(EnvFormat, "text")
	t.Setenv(EnvLevel, "debug")
	t.Setenv(EnvSource, "1")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadConfigFromEnv() error = %v", err)
	}
	if cfg.Format != "text" {
		t.Fatalf("Format = %q, want %q", cfg.Format, "text")
	}
	if cfg.Level != slog.LevelDebug {
		t.Fatalf("Level = %v, want %v", cfg.Level, slog.LevelDebug)
	}
	if !cfg.AddSource {
		t.Fatal("AddSource = false, want true")
	}
}

func TestLoadConfigFromEnv_InvalidFormat(t *testing.T) {
	t.Setenv(EnvFormat, "yaml")
	t.Setenv(EnvLevel, "")

	_, err := LoadConfigFromEnv()
	if err == nil {
		t.Fatal("expected invalid LOG_FORMAT error")
	}
}

func TestLoadConfigFromEnv_InvalidLevel(t *testing.T) {
	t.Setenv(EnvFormat, "")
	t.Setenv(EnvLevel, "trace")

	_, err := LoadConfigFromEnv()
	if err == nil {
		t.Fatal("expected invalid LOG_LEVEL error")
	}
}

func TestLoadConfigFromEnv_InvalidSource(t *testing.T) {
	t.Setenv(EnvFormat, "")
	t.Setenv(EnvLevel, "")
	t.Setenv(EnvSource, "yes please")

	_, err := LoadConfigFromEnv()
	if err == nil {
		t.Fatal("expected invalid LOG_SOURCE error")
	}
}

func TestNewLogger_JSONIncludesStaticAttrs(t *testing.T) {
	var out bytes.Buffer
	logger := NewLogger(DefaultConfig(), &out, "ringgate serve")
	logger.Info("hello", "correlation_id", "corr-1")

	line := strings.TrimSpace(out.String())
	if line == "" {
		t.Fatal("expected JSON log line")
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(line), &payload); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if got := payload["app"]; got != "ringgate" {
		t.Fatalf("app = %v, want %q", got, "ringgate")
	}
	if got := payload["command"]; got != "ringgate serve" {
		t.Fatalf("command = %v, want %q", got, "ringgate serve")
	}
	if got := payload["correlation_id"]; got != "corr-1" {
		t.Fatalf("correlation_id = %v, want %q", got, "corr-1")
	}
}

func TestNewLogger_EmptyCommandFallsBackToApp(t *testing.T) {
	var out bytes.Buffer
	cfg := DefaultConfig()
	cfg.Format = "text"
	cfg.Level = slog.LevelWarn
	logger := NewLogger(cfg, &out, "  ")

	logger.Info("dropped")
	logger.Warn("kept")

	got := out.String()
	if strings.Contains(got, "dropped") {
		t.Fatalf("info record written at warn level: %q", got)
	}
	if !strings.Contains(got, "command=ringgate") || !strings.Contains(got, "msg=kept") {
		t.Fatalf("text record = %q", got)
	}
}
