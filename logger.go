package mediacache

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with mediacache-specific context.
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
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithURL adds a url field to the logger.
func (l *Logger) WithURL(url string) *Logger {
	return &Logger{
		Logger: l.Logger.With("url", url),
	}
}

// WithPriority adds a priority field to the logger.
func (l *Logger) WithPriority(priority int) *Logger {
	return &Logger{
		Logger: l.Logger.With("priority", priority),
	}
}

// WithCount adds a count field to the logger.
func (l *Logger) WithCount(count int) *Logger {
	return &Logger{
		Logger: l.Logger.With("count", count),
	}
}

// LogPreload logs a settled preload batch.
func (l *Logger) LogPreload(ctx context.Context, count, failed int, duration time.Duration) {
	if failed > 0 {
		l.WarnContext(ctx, "preload completed with failures",
			"total", count,
			"failed", failed,
			"success", count-failed,
			"duration", duration,
		)
	} else {
		l.DebugContext(ctx, "preload completed",
			"count", count,
			"duration", duration,
		)
	}
}

// LogEvict logs an eviction request.
func (l *Logger) LogEvict(ctx context.Context, count int) {
	l.DebugContext(ctx, "evicted entries",
		"count", count,
	)
}

// LogClear logs a full cache and queue reset.
func (l *Logger) LogClear(ctx context.Context) {
	l.InfoContext(ctx, "cache and preload queue cleared")
}

// LogSpeedChange logs an adaptation to a new connection speed.
func (l *Logger) LogSpeedChange(ctx context.Context, speed string) {
	l.InfoContext(ctx, "connection speed changed",
		"speed", speed,
	)
}

// LogSweep logs a persistent-tier cleanup sweep.
func (l *Logger) LogSweep(ctx context.Context, err error) {
	if err != nil {
		l.ErrorContext(ctx, "cleanup sweep failed",
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "cleanup sweep completed")
	}
}
