package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLogLevel_String(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected string
	}{
		{DEBUG, "DEBUG"},
		{INFO, "INFO"},
		{WARN, "WARN"},
		{ERROR, "ERROR"},
		{LogLevel(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.level.String(); got != tt.expected {
				t.Errorf("LogLevel.String() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name     string
		expected LogLevel
	}{
		{"debug", DEBUG},
		{"INFO", INFO},
		{"warn", WARN},
		{"error", ERROR},
		{"", INFO},
		{"bogus", INFO},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.name); got != tt.expected {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.name, got, tt.expected)
		}
	}
}

func TestNewLogger(t *testing.T) {
	tmpDir := t.TempDir()

	cfg := Config{
		LogDir:     tmpDir,
		Level:      INFO,
		MaxDays:    7,
		ConsoleOut: false,
	}

	logger, err := NewLogger(cfg)
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Close()

	if logger.level != INFO {
		t.Errorf("Expected level INFO, got %v", logger.level)
	}
	if logger.maxDays != 7 {
		t.Errorf("Expected maxDays 7, got %d", logger.maxDays)
	}
	if logger.logDir != tmpDir {
		t.Errorf("Expected logDir %s, got %s", tmpDir, logger.logDir)
	}
}

func TestNewLogger_DefaultMaxDays(t *testing.T) {
	logger, err := NewLogger(Config{
		LogDir:  t.TempDir(),
		Level:   INFO,
		MaxDays: 0, // Should default to 7
	})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Close()

	if logger.maxDays != 7 {
		t.Errorf("Expected default maxDays 7, got %d", logger.maxDays)
	}
}

func TestNewLogger_CreateLogDir(t *testing.T) {
	logDir := filepath.Join(t.TempDir(), "logs", "subdir")

	logger, err := NewLogger(Config{
		LogDir:  logDir,
		Level:   INFO,
		MaxDays: 7,
	})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Close()

	if _, err := os.Stat(logDir); err != nil {
		t.Errorf("Expected log directory created: %v", err)
	}
}

func TestLogger_WritesDailyFile(t *testing.T) {
	tmpDir := t.TempDir()

	logger, err := NewLogger(Config{LogDir: tmpDir, Level: DEBUG, MaxDays: 7})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	logger.Info("server started on %s", "0.0.0.0:8000")
	logger.Close()

	filename := filepath.Join(tmpDir, "legalai-"+time.Now().Format("2006-01-02")+".log")
	data, err := os.ReadFile(filename)
	if err != nil {
		t.Fatalf("Expected daily log file: %v", err)
	}

	content := string(data)
	if !strings.Contains(content, "[INFO]") {
		t.Errorf("Expected level tag in log line, got: %s", content)
	}
	if !strings.Contains(content, "server started on 0.0.0.0:8000") {
		t.Errorf("Expected formatted message, got: %s", content)
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	tmpDir := t.TempDir()

	logger, err := NewLogger(Config{LogDir: tmpDir, Level: WARN, MaxDays: 7})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")
	logger.Close()

	filename := filepath.Join(tmpDir, "legalai-"+time.Now().Format("2006-01-02")+".log")
	data, err := os.ReadFile(filename)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}

	content := string(data)
	if strings.Contains(content, "debug message") || strings.Contains(content, "info message") {
		t.Errorf("Expected messages below WARN filtered, got: %s", content)
	}
	if !strings.Contains(content, "warn message") || !strings.Contains(content, "error message") {
		t.Errorf("Expected WARN and ERROR messages, got: %s", content)
	}
}

func TestLogger_GetWriter(t *testing.T) {
	tmpDir := t.TempDir()

	logger, err := NewLogger(Config{LogDir: tmpDir, Level: DEBUG, MaxDays: 7})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	writer := logger.GetWriter(INFO)
	if _, err := writer.Write([]byte("via writer\n")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	logger.Close()

	filename := filepath.Join(tmpDir, "legalai-"+time.Now().Format("2006-01-02")+".log")
	data, err := os.ReadFile(filename)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), "via writer") {
		t.Errorf("Expected writer output in log, got: %s", string(data))
	}
}

func TestPackageLevelFunctions_NoInit(t *testing.T) {
	// Uninitialized default logger must be a no-op, not a panic
	Debug("debug")
	Info("info")
	Warn("warn")
	Error("error")
	if err := Close(); err != nil {
		t.Errorf("Close on uninitialized logger failed: %v", err)
	}
}
