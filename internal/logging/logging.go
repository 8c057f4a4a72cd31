// Package logging provides structured logging for the pipeline on top of
// log/slog.
package logging

import (
	"log/slog"
	"os"
)

// Common field names for consistent logging across stages.
const (
	FieldStage      = "stage"
	FieldWorker     = "worker"
	FieldQueue      = "queue"
	FieldReason     = "reason"
	FieldRetryCount = "retry_count"
	FieldBatchSize  = "batch_size"
	FieldSucceeded  = "succeeded"
	FieldRecordID   = "record_id"
	FieldEventID    = "event_id"
	FieldLeadID     = "lead_id"
	FieldCity       = "city"
	FieldError      = "error"
)

// Logger wraps slog.Logger so stages share one construction path.
type Logger struct {
	*slog.Logger
}

// New creates a Logger with the given level and format. format can be
// "json" or "text" (default is json).
func New(level slog.Level, format string) *Logger {
	opts := &slog.HandlerOptions{
		Level: level,
		// Add source location for errors and above
		AddSource: level <= slog.LevelError,
	}

	var handler slog.Handler
	switch format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return &Logger{Logger: slog.New(handler)}
}

// Default returns a logger backed by slog.Default.
func Default() *Logger {
	return &Logger{Logger: slog.Default()}
}

// With returns a new logger with the given attributes added.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Stage returns a slog attribute for the stage name.
func Stage(name string) slog.Attr {
	return slog.String(FieldStage, name)
}

// Worker returns a slog attribute for the per-process worker id.
func Worker(id string) slog.Attr {
	return slog.String(FieldWorker, id)
}

// Queue returns a slog attribute for a queue key.
func Queue(key string) slog.Attr {
	return slog.String(FieldQueue, key)
}

// Reason returns a slog attribute for a dead-letter reason.
func Reason(reason string) slog.Attr {
	return slog.String(FieldReason, reason)
}

// RetryCount returns a slog attribute for an envelope's retry count.
func RetryCount(n int) slog.Attr {
	return slog.Int(FieldRetryCount, n)
}

// Error returns a slog attribute for an error.
func Error(err error) slog.Attr {
	return slog.String(FieldError, err.Error())
}

// ParseLevel converts a string log level to slog.Level.
// Valid values: "debug", "info", "warn", "error".
// Returns slog.LevelInfo for invalid values.
func ParseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetDefault sets the default logger for the application.
// This affects both slog.Default() and log package functions.
func SetDefault(l *Logger) {
	slog.SetDefault(l.Logger)
}
