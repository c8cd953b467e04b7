package main

import (
	"os"
	"testing"
)

// TestLogger wraps AppLogger so test diagnostics go through testing.T.
type TestLogger struct {
	*AppLogger
	t *testing.T
}

// NewTestLogger creates a test logger from environment variables.
func NewTestLogger(t *testing.T) *TestLogger {
	al := &AppLogger{
		outputDir: os.Getenv("TEST_OUTPUT_DIR"),
		debug:     os.Getenv("TEST_DEBUG") == "1",
	}
	return &TestLogger{AppLogger: al, t: t}
}

// Debug logs a debug message using testing.T.Logf
func (tl *TestLogger) Debug(format string, args ...any) {
	if !tl.debug {
		return
	}
	tl.t.Logf("[DEBUG] "+format, args...)
}
