package logging

import (
	"strings"

	"go.uber.org/zap/zapcore"
)

// ParseLogLevelString parses a level name case-insensitively
// (debug, info, warn/warning, error). Unknown values return defaultLevel.
func ParseLogLevelString(levelStr string, defaultLevel zapcore.Level) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return defaultLevel
	}
}

// ConsoleLevel picks the console level: quiet mode raises it to at least warn.
func ConsoleLevel(base zapcore.Level, quiet bool) zapcore.Level {
	if quiet && base < zapcore.WarnLevel {
		return zapcore.WarnLevel
	}
	return base
}
