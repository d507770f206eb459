package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name   string
		level  string
		format string
	}{
		{"debug text", "debug", "text"},
		{"info json", "info", "json"},
		{"warn text", "warn", "text"},
		{"error json", "error", "json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := New(tt.level, tt.format)
			if logger == nil {
				t.Fatal("New() returned nil")
			}
			if logger.Logger == nil {
				t.Fatal("New() returned logger with nil slog.Logger")
			}
		})
	}
}

func TestLogger_WithCheckpoint(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "info", "text")

	logger.WithCheckpoint(1200).Info("evaluating")

	if !strings.Contains(buf.String(), "checkpoint=1200") {
		t.Errorf("output should carry checkpoint attr, got: %s", buf.String())
	}
}

func TestLogger_WithShard(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "info", "json")

	logger.WithShard(7, "part-00007.parquet").Info("downloading")

	out := buf.String()
	if !strings.Contains(out, `"shard":7`) || !strings.Contains(out, `"file":"part-00007.parquet"`) {
		t.Errorf("output should carry shard attrs, got: %s", out)
	}
}

func TestLogger_WithError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "info", "text")

	logger.WithError(context.DeadlineExceeded).Warn("failed")

	if !strings.Contains(buf.String(), "context deadline exceeded") {
		t.Errorf("output should carry error text, got: %s", buf.String())
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "warn", "text")

	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info should be filtered at warn level, got: %s", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("warn should be logged, got: %s", out)
	}
}

func TestDiscard(t *testing.T) {
	log := Discard().WithCheckpoint(1).WithShard(0, "part-0.parquet")
	log.Error("dropped")
	if log.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("discard logger should stay at info")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo}, // default
		{"", slog.LevelInfo},        // default
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLevel(tt.input); got != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
