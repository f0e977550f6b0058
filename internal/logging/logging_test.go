package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestContextWithLogger(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	ctx := ContextWithLogger(context.Background(), logger)

	if got := FromContext(ctx); got != logger {
		t.Error("Expected logger to round-trip through the context")
	}
	if got := FromContext(context.Background()); got != nil {
		t.Error("Expected nil logger for a bare context")
	}
}

func TestComponent_PrefersContextLogger(t *testing.T) {
	var ctxBuf, baseBuf bytes.Buffer
	ctxLogger := slog.New(slog.NewJSONHandler(&ctxBuf, nil))
	baseLogger := slog.New(slog.NewJSONHandler(&baseBuf, nil))

	ctx := ContextWithLogger(context.Background(), ctxLogger)
	Component(ctx, baseLogger, "registry", "table", "notes").Info("hello")

	if baseBuf.Len() != 0 {
		t.Error("Expected base logger to be bypassed")
	}

	var entry map[string]any
	if err := json.Unmarshal(ctxBuf.Bytes(), &entry); err != nil {
		t.Fatalf("Failed to decode log entry: %v", err)
	}
	if entry["component"] != "registry" || entry["table"] != "notes" {
		t.Errorf("Unexpected attributes: %v", entry)
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		format   string
		wantErr  bool
		wantJSON bool
	}{
		{name: "defaults", wantJSON: true},
		{name: "text debug", level: "debug", format: "text"},
		{name: "json warn", level: "WARN", format: "json", wantJSON: true},
		{name: "bad level", level: "loud", wantErr: true},
		{name: "bad format", format: "xml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger, err := New(&buf, tt.level, tt.format)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error but got: %v", err)
			}

			logger.Error("boom")
			isJSON := strings.HasPrefix(buf.String(), "{")
			if isJSON != tt.wantJSON {
				t.Errorf("Expected JSON=%v, got output %q", tt.wantJSON, buf.String())
			}
		})
	}
}
