package rangecache

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with rangecache-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// LogOpen logs the resolution of a backend handle.
func (l *Logger) LogOpen(ctx context.Context, path string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "open failed",
			"path", path,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "open completed",
			"path", path,
		)
	}
}

// LogRead logs a read of the byte range [start, end).
func (l *Logger) LogRead(ctx context.Context, path string, start, end int64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "read failed",
			"path", path,
			"start", start,
			"end", end,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "read completed",
			"path", path,
			"start", start,
			"end", end,
		)
	}
}

// LogClose logs the disposal of a file's backend handle.
func (l *Logger) LogClose(ctx context.Context, path string, opened bool, err error) {
	if err != nil {
		l.ErrorContext(ctx, "close failed",
			"path", path,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "close completed",
			"path", path,
			"opened", opened,
		)
	}
}

// LogDisconnect logs the outcome of a disconnect sweep.
func (l *Logger) LogDisconnect(ctx context.Context, files, failed int) {
	if failed > 0 {
		l.WarnContext(ctx, "disconnect completed with failures",
			"files", files,
			"failed", failed,
			"success", files-failed,
		)
	} else {
		l.InfoContext(ctx, "disconnect completed",
			"files", files,
		)
	}
}
