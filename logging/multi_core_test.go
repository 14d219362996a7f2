package logging

import (
	"bytes"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewMultiCore_LevelsAreIndependent(t *testing.T) {
	var console, file bytes.Buffer
	core := NewMultiCore(zapcore.ErrorLevel, zapcore.DebugLevel,
		zapcore.AddSync(&console), zapcore.AddSync(&file), false)
	logger := zap.New(core)

	logger.Debug("debug entry")
	logger.Error("error entry")

	if strings.Contains(console.String(), "debug entry") {
		t.Error("console should filter debug entries")
	}
	if !strings.Contains(console.String(), "error entry") {
		t.Error("console should contain error entries")
	}
	if !strings.Contains(file.String(), "debug entry") {
		t.Error("file should contain debug entries")
	}
}

func TestNewMultiCore_FileIsJSON(t *testing.T) {
	var console, file bytes.Buffer
	logger := zap.New(NewMultiCore(zapcore.InfoLevel, zapcore.InfoLevel,
		zapcore.AddSync(&console), zapcore.AddSync(&file), true))

	logger.Info("hello", zap.String("k", "v"))

	if !strings.HasPrefix(strings.TrimSpace(file.String()), "{") {
		t.Errorf("file output is not JSON: %q", file.String())
	}
	if strings.HasPrefix(strings.TrimSpace(console.String()), "{") {
		t.Errorf("console output should be human readable: %q", console.String())
	}
}

func TestNewMultiCore_NilFileWriter(t *testing.T) {
	var console bytes.Buffer
	logger := zap.New(NewMultiCore(zapcore.InfoLevel, zapcore.InfoLevel,
		zapcore.AddSync(&console), nil, false))

	logger.Info("only console")
	if !strings.Contains(console.String(), "only console") {
		t.Errorf("console output missing entry: %q", console.String())
	}
}
