package logging

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.Logger with automatic redaction of FAL credentials.
//
// Console output goes to stderr so that the banner and run summary on stdout
// stay readable; the log file always receives JSON lines.
//
// Example:
//
//	logger, err := NewLogger(Options{FilePath: "multiangle.log"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	logger.Named("api").Info("request submitted", zap.Int("angle", 45))
type Logger struct {
	zap           *zap.Logger
	isDevelopment bool
	logFilePath   string
}

// Options configures NewLogger. Zero values select sensible defaults.
type Options struct {
	// Development switches the console to colored output with caller info.
	Development bool

	// Level is the minimum level written to the log file.
	Level zapcore.Level

	// ConsoleLevel is the minimum level written to the console.
	// --quiet raises this to warn while the file keeps Level.
	ConsoleLevel zapcore.Level

	// FilePath is the rotated log file. Empty disables file output.
	FilePath string

	// FileConfig tunes lumberjack rotation for FilePath.
	FileConfig FileWriterConfig

	// Console overrides the console destination (defaults to os.Stderr).
	Console io.Writer
}

// NewLogger creates a Logger that tees to the console and, when configured,
// a rotated log file.
func NewLogger(opts Options) (*Logger, error) {
	var console zapcore.WriteSyncer
	if opts.Console != nil {
		console = zapcore.AddSync(opts.Console)
	} else {
		console = zapcore.Lock(os.Stderr)
	}

	var file zapcore.WriteSyncer
	if opts.FilePath != "" {
		if err := ensureLogDir(opts.FilePath); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		file = NewFileWriterWithConfig(opts.FilePath, opts.FileConfig)
	}

	core := NewMultiCore(opts.ConsoleLevel, opts.Level, console, file, opts.Development)

	zapOpts := []zap.Option{zap.AddCallerSkip(1)}
	if opts.Development {
		zapOpts = append(zapOpts, zap.AddCaller())
	}

	return &Logger{
		zap:           zap.New(core, zapOpts...),
		isDevelopment: opts.Development,
		logFilePath:   opts.FilePath,
	}, nil
}

// NewNop returns a Logger that discards everything. Useful in tests and as a
// fallback for optional logger parameters.
func NewNop() *Logger {
	return &Logger{zap: zap.NewNop()}
}

// NewFromZap wraps an existing zap.Logger, e.g. one built on zaptest/observer.
func NewFromZap(z *zap.Logger) *Logger {
	return &Logger{zap: z}
}

// Sync flushes any buffered log entries.
func (l *Logger) Sync() error {
	if l == nil || l.zap == nil {
		return nil
	}
	return l.zap.Sync()
}

// Debug logs a message at DebugLevel with optional structured fields.
func (l *Logger) Debug(msg string, fields ...zap.Field) {
	l.zap.Debug(RedactSensitiveData(msg), redactFields(fields)...)
}

// Info logs a message at InfoLevel with optional structured fields.
func (l *Logger) Info(msg string, fields ...zap.Field) {
	l.zap.Info(RedactSensitiveData(msg), redactFields(fields)...)
}

// Warn logs a message at WarnLevel with optional structured fields.
func (l *Logger) Warn(msg string, fields ...zap.Field) {
	l.zap.Warn(RedactSensitiveData(msg), redactFields(fields)...)
}

// Error logs a message at ErrorLevel with optional structured fields.
func (l *Logger) Error(msg string, fields ...zap.Field) {
	l.zap.Error(RedactSensitiveData(msg), redactFields(fields)...)
}

// Infof logs a formatted message at InfoLevel.
func (l *Logger) Infof(template string, args ...interface{}) {
	l.zap.Info(RedactSensitiveData(fmt.Sprintf(template, args...)))
}

// With creates a child logger with additional fields on every entry.
//
// Example:
//
//	angleLogger := logger.With(zap.Int("angle", 90))
//	angleLogger.Info("view saved")
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{
		zap:           l.zap.With(redactFields(fields)...),
		isDevelopment: l.isDevelopment,
		logFilePath:   l.logFilePath,
	}
}

// Named adds a sub-logger name such as "api", "image" or "runner".
func (l *Logger) Named(name string) *Logger {
	return &Logger{
		zap:           l.zap.Named(name),
		isDevelopment: l.isDevelopment,
		logFilePath:   l.logFilePath,
	}
}

// Zap returns the underlying zap.Logger.
func (l *Logger) Zap() *zap.Logger {
	return l.zap
}

// IsDevelopment returns true if the logger is configured for development mode.
func (l *Logger) IsDevelopment() bool {
	return l.isDevelopment
}

// LogFilePath returns the path to the log file, or "" when file output is off.
func (l *Logger) LogFilePath() string {
	return l.logFilePath
}

func redactFields(fields []zap.Field) []zap.Field {
	if len(fields) == 0 {
		return fields
	}

	result := make([]zap.Field, len(fields))
	for i, field := range fields {
		result[i] = redactField(field)
	}
	return result
}

func redactField(field zap.Field) zap.Field {
	if IsSensitiveField(field.Key) {
		return zap.String(field.Key, RedactedPlaceholder)
	}

	switch field.Type {
	case zapcore.StringType:
		if redacted := RedactSensitiveData(field.String); redacted != field.String {
			return zap.String(field.Key, redacted)
		}
	case zapcore.ErrorType:
		// Error strings can carry request URLs and headers.
		if err, ok := field.Interface.(error); ok && err != nil {
			msg := err.Error()
			if redacted := RedactSensitiveData(msg); redacted != msg {
				return zap.String(field.Key, redacted)
			}
		}
	}

	return field
}
