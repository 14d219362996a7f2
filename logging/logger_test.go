package logging

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const testFalKey = "0f3c9a2e-1b4d-4e6f-8a7b-9c0d1e2f3a4b:0123456789abcdef0123456789abcdef"

func newTestLogger(t *testing.T, opts Options) (*Logger, *bytes.Buffer, string) {
	t.Helper()
	var console bytes.Buffer
	opts.Console = &console
	if opts.FilePath == "" {
		opts.FilePath = filepath.Join(t.TempDir(), "logs", "test.log")
	}
	logger, err := NewLogger(opts)
	if err != nil {
		t.Fatalf("NewLogger() returned error: %v", err)
	}
	return logger, &console, opts.FilePath
}

func readLogFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	return string(data)
}

func TestNewLogger_WritesConsoleAndFile(t *testing.T) {
	logger, console, path := newTestLogger(t, Options{})

	logger.Info("view saved", zap.Int("angle", 45))
	_ = logger.Sync()

	if !strings.Contains(console.String(), "view saved") {
		t.Errorf("console output missing message: %q", console.String())
	}
	content := readLogFile(t, path)
	if !strings.Contains(content, `"message":"view saved"`) || !strings.Contains(content, `"angle":45`) {
		t.Errorf("log file missing JSON entry: %q", content)
	}
	if logger.LogFilePath() != path {
		t.Errorf("LogFilePath() = %q, want %q", logger.LogFilePath(), path)
	}
}

func TestNewLogger_QuietConsoleKeepsFileInfo(t *testing.T) {
	logger, console, path := newTestLogger(t, Options{
		Level:        zapcore.InfoLevel,
		ConsoleLevel: ConsoleLevel(zapcore.InfoLevel, true),
	})

	logger.Info("progress")
	logger.Warn("retrying")
	_ = logger.Sync()

	out := console.String()
	if strings.Contains(out, "progress") {
		t.Errorf("quiet console should drop info entries: %q", out)
	}
	if !strings.Contains(out, "retrying") {
		t.Errorf("quiet console should keep warn entries: %q", out)
	}
	if content := readLogFile(t, path); !strings.Contains(content, "progress") {
		t.Errorf("log file should keep info entries: %q", content)
	}
}

func TestNewLogger_NoFile(t *testing.T) {
	var console bytes.Buffer
	logger, err := NewLogger(Options{Console: &console})
	if err != nil {
		t.Fatalf("NewLogger() returned error: %v", err)
	}

	logger.Info("console only")
	if logger.LogFilePath() != "" {
		t.Errorf("LogFilePath() = %q, want empty", logger.LogFilePath())
	}
	if !strings.Contains(console.String(), "console only") {
		t.Errorf("console output missing message: %q", console.String())
	}
}

func TestLogger_RedactsFalKey(t *testing.T) {
	logger, console, path := newTestLogger(t, Options{})

	logger.Info("submitting", zap.String("header", "Authorization: Key "+testFalKey))
	logger.Info("config", zap.String("fal_key", "anything"))
	logger.Error("request failed", zap.Error(errors.New("401 for key "+testFalKey)))
	logger.With(zap.String("auth", testFalKey)).Warn("child")
	_ = logger.Sync()

	for name, out := range map[string]string{"console": console.String(), "file": readLogFile(t, path)} {
		if strings.Contains(out, testFalKey) {
			t.Errorf("%s output leaked FAL key: %q", name, out)
		}
		if strings.Contains(out, "anything") {
			t.Errorf("%s output leaked sensitive field value: %q", name, out)
		}
		if !strings.Contains(out, RedactedPlaceholder) {
			t.Errorf("%s output missing redaction placeholder: %q", name, out)
		}
	}
}

func TestLogger_Named(t *testing.T) {
	logger, _, path := newTestLogger(t, Options{})

	logger.Named("api").Info("submitted")
	_ = logger.Sync()

	if content := readLogFile(t, path); !strings.Contains(content, `"source":"api"`) {
		t.Errorf("expected logger name in output: %q", content)
	}
}

func TestLogger_NilSafeSync(t *testing.T) {
	var l *Logger
	if err := l.Sync(); err != nil {
		t.Errorf("Sync() on nil logger = %v, want nil", err)
	}
	NewNop().Info("discarded")
}
