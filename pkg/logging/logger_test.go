package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != LevelInfo {
		t.Errorf("Expected default level to be Info, got %s", cfg.Level)
	}
	if cfg.Pretty {
		t.Error("Expected default pretty to be false")
	}
	if cfg.Output != os.Stderr {
		t.Error("Expected default output to be stderr")
	}
}

func TestSetup(t *testing.T) {
	tests := []struct {
		name   string
		level  LogLevel
		pretty bool
		write  func(zerolog.Logger)
	}{
		{name: "debug_level", level: LevelDebug, write: func(l zerolog.Logger) { l.Debug().Msg("hello") }},
		{name: "info_level", level: LevelInfo, write: func(l zerolog.Logger) { l.Info().Msg("hello") }},
		{name: "warn_level", level: LevelWarn, write: func(l zerolog.Logger) { l.Warn().Msg("hello") }},
		{name: "error_level", level: LevelError, write: func(l zerolog.Logger) { l.Error().Msg("hello") }},
		{name: "pretty", level: LevelInfo, pretty: true, write: func(l zerolog.Logger) { l.Info().Msg("hello") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			logger := Setup(Config{Level: tt.level, Pretty: tt.pretty, Output: buf})

			tt.write(logger)

			if !strings.Contains(buf.String(), "hello") {
				t.Errorf("Expected output to contain %q, got %q", "hello", buf.String())
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"debug", zerolog.DebugLevel},
		{"INFO", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"off", zerolog.Disabled},
		{"invalid", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.expected {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	buf := &bytes.Buffer{}
	Setup(Config{Level: LevelInfo, Output: buf})

	logger := NewLogger("pager")
	logger.Info().Msg("page loaded")

	output := buf.String()
	if !strings.Contains(output, `"component":"pager"`) {
		t.Errorf("Expected component field, got %q", output)
	}
	if !strings.Contains(output, "page loaded") {
		t.Errorf("Expected message, got %q", output)
	}
}

func TestLogLevelFiltering(t *testing.T) {
	buf := &bytes.Buffer{}
	Setup(Config{Level: LevelWarn, Output: buf})

	logger := NewLogger("test")
	logger.Debug().Msg("debug message")
	logger.Info().Msg("info message")
	logger.Warn().Msg("warn message")

	output := buf.String()
	if strings.Contains(output, "debug message") || strings.Contains(output, "info message") {
		t.Errorf("messages below warn should be filtered: %q", output)
	}
	if !strings.Contains(output, "warn message") {
		t.Error("Warn message should be included at Warn level")
	}
}

func TestOpen_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "pairs.log")

	logger, closeFn, err := Open(Config{Level: LevelInfo, File: path})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	logger.Info().Msg("to file")
	if err := closeFn(); err != nil {
		t.Fatalf("close error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "to file") {
		t.Errorf("log file content = %q", data)
	}
}

func TestOpen_NoFile(t *testing.T) {
	buf := &bytes.Buffer{}
	logger, closeFn, err := Open(Config{Level: LevelInfo, Output: buf})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	logger.Info().Msg("to buffer")
	if err := closeFn(); err != nil {
		t.Errorf("close error = %v", err)
	}
	if !strings.Contains(buf.String(), "to buffer") {
		t.Errorf("output = %q", buf.String())
	}
}
