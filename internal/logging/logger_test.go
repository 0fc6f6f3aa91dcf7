package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"sitesync/internal/config"
)

func TestNewLoggerDefaults(t *testing.T) {
	logger, closer, err := New(config.LoggingConfig{}, config.AppConfig{Name: "sitesync", Context: "foreground"})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if closer != nil {
		t.Errorf("expected no closer for stdout output")
	}
	if logger.GetLevel().String() != "info" {
		t.Errorf("expected default info level, got %s", logger.GetLevel())
	}
}

func TestNewLoggerFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.log")

	logger, closer, err := New(config.LoggingConfig{
		Level:    "debug",
		Output:   "file",
		FilePath: path,
	}, config.AppConfig{Name: "sitesync", Context: "background"})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if closer == nil {
		t.Fatalf("expected a closer for file output")
	}

	logger.Info().Msg("hello from the daemon")
	if err := closer.Close(); err != nil {
		t.Fatalf("close log file: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(data)
	if !strings.Contains(line, `"context":"background"`) {
		t.Errorf("expected context field in log line, got %s", line)
	}
	if !strings.Contains(line, "hello from the daemon") {
		t.Errorf("expected message in log line, got %s", line)
	}
}

func TestNewLoggerFileRequiresPath(t *testing.T) {
	_, _, err := New(config.LoggingConfig{Output: "file"}, config.AppConfig{})
	if err == nil {
		t.Fatalf("expected an error for file output without a path")
	}
}
