package logging

import (
	"go.uber.org/zap/zapcore"
)

// NewMultiCore creates a zapcore.Core that tees output to the console and a file,
// each with its own minimum level.
//
// The file output always uses JSON encoding. The console uses the colored
// encoder in development mode and a plain human-readable encoder otherwise.
// A nil fileWriter yields a console-only core.
//
// Example:
//
//	var buf bytes.Buffer
//	core := NewMultiCore(zapcore.WarnLevel, zapcore.InfoLevel, os.Stderr, zapcore.AddSync(&buf), false)
//	logger := zap.New(core)
func NewMultiCore(consoleLevel, fileLevel zapcore.Level, consoleWriter, fileWriter zapcore.WriteSyncer, isDev bool) zapcore.Core {
	var consoleEncoder zapcore.Encoder
	if isDev {
		consoleEncoder = zapcore.NewConsoleEncoder(NewConsoleEncoderConfig())
	} else {
		consoleEncoder = zapcore.NewConsoleEncoder(NewPlainConsoleEncoderConfig())
	}
	consoleCore := zapcore.NewCore(consoleEncoder, consoleWriter, consoleLevel)

	if fileWriter == nil {
		return consoleCore
	}

	fileCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(NewEncoderConfig()),
		fileWriter,
		fileLevel,
	)

	return zapcore.NewTee(consoleCore, fileCore)
}
