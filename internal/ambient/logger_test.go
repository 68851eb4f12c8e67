package ambient

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoggerWritesOnlyAtOrAboveMinLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.txt")
	logger, err := NewLogger(logWarning, path)
	if err != nil {
		t.Fatal(err)
	}
	logger.Log(logDebug, "debug message")
	logger.Log(logInfo, "info message")
	logger.Log(logWarning, "warning message")
	logger.Log(logError, "error message")
	if err := logger.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	if strings.Contains(out, "debug message") || strings.Contains(out, "info message") {
		t.Errorf("expected debug/info to be suppressed at warning level, got: %s", out)
	}
	if !strings.Contains(out, "warning message") || !strings.Contains(out, "error message") {
		t.Errorf("expected warning/error to be logged, got: %s", out)
	}
}

func TestLoggerShouldLogRespectsNone(t *testing.T) {
	logger, err := NewLogger(logNone, "")
	if err != nil {
		t.Fatal(err)
	}
	defer logger.Close()
	if logger.ShouldLog(logError) {
		t.Error("ShouldLog(Error) must be false when min level is None")
	}
}

func TestNopLoggerDiscardsEverything(t *testing.T) {
	var l ILogger = NopLogger{}
	l.Log(logError, "should not panic")
	if l.ShouldLog(logDebug) {
		t.Error("NopLogger should never say it should log")
	}
	if err := l.Close(); err != nil {
		t.Errorf("NopLogger.Close() should never error, got %v", err)
	}
}
