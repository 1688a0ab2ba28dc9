package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type buffer struct{ bytes.Buffer }

func (b *buffer) Sync() error { return nil }

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name   string
		format string
		level  string
	}{
		{"JSON Info", "json", "info"},
		{"JSON Debug", "json", "debug"},
		{"Text Warn", "text", "warn"},
		{"Empty level", "console", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(Config{Format: tt.format, Level: tt.level, Output: &buffer{}})
			if err != nil {
				t.Fatalf("NewLogger() error = %v", err)
			}
			logger.Info("heartbeat")
		})
	}
}

func TestNewLogger_InvalidLevel(t *testing.T) {
	if _, err := NewLogger(Config{Format: "json", Level: "loud"}); err == nil {
		t.Error("expected error for invalid log level")
	}
}

func TestStructuredLogging(t *testing.T) {
	var buf buffer
	logger, _ := NewLogger(Config{Format: "json", Level: "info", Output: &buf})

	logger.Info("socket opened", zap.String("interface", "eth0"), zap.Int("index", 2))

	out := buf.String()
	for _, want := range []string{"socket opened", `"interface":"eth0"`, `"index":2`, "timestamp"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %s: %s", want, out)
		}
	}
}

func TestLogLevelFiltering(t *testing.T) {
	var buf buffer
	logger, _ := NewLogger(Config{Format: "json", Level: "warn", Output: &buf})

	logger.Info("dropped")
	logger.Warn("kept")

	if strings.Contains(buf.String(), "dropped") {
		t.Error("info entry written at warn level")
	}
	if !strings.Contains(buf.String(), "kept") {
		t.Error("warn entry missing")
	}
}

func TestLogEntriesCounted(t *testing.T) {
	logger, _ := NewLogger(Config{Format: "json", Level: "debug", Output: &buffer{}})
	before := testutil.ToFloat64(LogEntriesTotal.WithLabelValues(zapcore.ErrorLevel.String()))

	logger.Error("boom")

	after := testutil.ToFloat64(LogEntriesTotal.WithLabelValues(zapcore.ErrorLevel.String()))
	if after != before+1 {
		t.Errorf("error entries = %v, want %v", after, before+1)
	}
}
