package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/ringgate/ringgate/internal/risk"
)

func TestEmitCommandError_StructuredForScopedCommands(t *testing.T) {
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("LOG_LEVEL", "info")
	setCommandExecutionContext(commandExecutionContext{
		CommandPath:       "ringgate serve",
		UsesStructuredLog: true,
	})
	t.Cleanup(resetCommandExecutionContext)

	var out bytes.Buffer
	emitCommandError(errors.New("boom"), "command failed", 1, &out)

	line := strings.TrimSpace(out.String())
	if line == "" {
		t.Fatal("expected structured log output")
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
	if got := payload["exit_code"]; got != float64(1) {
		t.Fatalf("exit_code = %v, want %v", got, 1)
	}
	if got := payload["error"]; got != "boom" {
		t.Fatalf("error = %v, want %q", got, "boom")
	}
}

func TestEmitCommandError_FallsBackToJSONWhenLoggingEnvInvalid(t *testing.T) {
	t.Setenv("LOG_FORMAT", "invalid")
	t.Setenv("LOG_LEVEL", "info")
	setCommandExecutionContext(commandExecutionContext{
		CommandPath:       "ringgate migrate",
		UsesStructuredLog: true,
	})
	t.Cleanup(resetCommandExecutionContext)

	var out bytes.Buffer
	emitCommandError(errors.New("boom"), "command failed", 1, &out)

	line := strings.TrimSpace(out.String())
	if line == "" {
		t.Fatal("expected structured log output")
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(line), &payload); err != nil {
		t.Fatalf("expected JSON fallback log, got parse error: %v", err)
	}
}

func TestEmitCommandError_PlainOutputForNonScopedCommands(t *testing.T) {
	setCommandExecutionContext(commandExecutionContext{
		CommandPath:       "ringgate models",
		UsesStructuredLog: false,
	})
	t.Cleanup(resetCommandExecutionContext)

	var out bytes.Buffer
	emitCommandError(errors.New("plain boom"), "command failed", 1, &out)
	if got := out.String(); got != "plain boom\n" {
		t.Fatalf("output = %q, want %q", got, "plain boom\n")
	}
}

func TestEmitCommandError_CanceledOutputForNonScopedCommands(t *testing.T) {
	setCommandExecutionContext(commandExecutionContext{
		CommandPath:       "ringgate models",
		UsesStructuredLog: false,
	})
	t.Cleanup(resetCommandExecutionContext)

	var out bytes.Buffer
	emitCommandError(context.Canceled, "command canceled", 130, &out)
	if got := out.String(); got != "canceled\n" {
		t.Fatalf("output = %q, want %q", got, "canceled\n")
	}
}

func TestExitCodeForError(t *testing.T) {
	resetCommandExecutionContext()
	t.Cleanup(resetCommandExecutionContext)

	tests := []struct {
		name    string
		err     error
		want    int
		wantOut string
		anyOut  bool
	}{
		{name: "plain", err: errors.New("boom"), want: 1, wantOut: "boom\n"},
		{name: "canceled", err: fmt.Errorf("serve: %w", context.Canceled), want: 130, wantOut: "canceled\n"},
		{name: "silent exit error", err: &exitError{code: exitCodeNotPromoted, silent: true}, want: exitCodeNotPromoted},
		{name: "configuration", err: fmt.Errorf("load models: %w", &risk.ConfigError{Err: risk.ErrUnknownModelVersion, Version: "1999.1"}), want: exitCodeConfig, anyOut: true},
		{name: "loud exit error", err: &exitError{code: exitCodeInvalidModels, err: errors.New("bad model")}, want: exitCodeInvalidModels, wantOut: "bad model\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var out bytes.Buffer
			if got := exitCodeForError(tc.err, &out); got != tc.want {
				t.Fatalf("exitCodeForError() = %d, want %d", got, tc.want)
			}
			if !tc.anyOut && out.String() != tc.wantOut {
				t.Fatalf("output = %q, want %q", out.String(), tc.wantOut)
			}
		})
	}
}

func TestRunMain_SuccessIsZero(t *testing.T) {
	if got := runMain(func() error { return nil }, io.Discard); got != 0 {
		t.Fatalf("runMain() = %d, want 0", got)
	}
}

func TestEmitCommandError_StructuredIncludesClass(t *testing.T) {
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("LOG_LEVEL", "info")
	setCommandExecutionContext(commandExecutionContext{
		CommandPath:       "ringgate validate-models",
		UsesStructuredLog: true,
	})
	t.Cleanup(resetCommandExecutionContext)

	var out bytes.Buffer
	err := &risk.ConfigError{Err: risk.ErrUnknownModelVersion, Version: "1999.1"}
	if got := exitCodeForError(err, &out); got != exitCodeConfig {
		t.Fatalf("exitCodeForError() = %d, want %d", got, exitCodeConfig)
	}

	var payload map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(out.Bytes()), &payload); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if got := payload["class"]; got != "configuration" {
		t.Fatalf("class = %v, want %q", got, "configuration")
	}
}
