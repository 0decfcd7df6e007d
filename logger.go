package vectable

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with vectable-specific context.
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
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// ParseLevel maps "debug", "info", "warn" and "error" to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	err := level.UnmarshalText([]byte(s))
	return level, err
}

// WithTable adds a table field to the logger.
func (l *Logger) WithTable(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("table", name),
	}
}

// WithVersion adds a version field to the logger.
func (l *Logger) WithVersion(version uint64) *Logger {
	return &Logger{
		Logger: l.Logger.With("version", version),
	}
}

// LogCreateTable logs a table creation.
func (l *Logger) LogCreateTable(ctx context.Context, table string, rows, dim int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "create table failed",
			"table", table,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "table created",
			"table", table,
			"rows", rows,
			"dimension", dim,
		)
	}
}

// LogAdd logs an append to a table.
func (l *Logger) LogAdd(ctx context.Context, table string, rows int, version uint64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "add failed",
			"table", table,
			"rows", rows,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "add completed",
			"table", table,
			"rows", rows,
			"version", version,
		)
	}
}

// LogQuery logs a query execution.
func (l *Logger) LogQuery(ctx context.Context, table, kind string, limit, results int, elapsed time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "query failed",
			"table", table,
			"kind", kind,
			"limit", limit,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "query completed",
			"table", table,
			"kind", kind,
			"limit", limit,
			"results", results,
			"elapsed", elapsed,
		)
	}
}

// LogCheckout logs a checkout of a table version.
func (l *Logger) LogCheckout(ctx context.Context, table string, version uint64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "checkout failed",
			"table", table,
			"version", version,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "checked out version",
			"table", table,
			"version", version,
		)
	}
}

// LogIndexBuild logs the outcome of a background index build.
func (l *Logger) LogIndexBuild(ctx context.Context, table, name string, rows int, elapsed time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "index build failed",
			"table", table,
			"index", name,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "index build completed",
			"table", table,
			"index", name,
			"rows", rows,
			"elapsed", elapsed,
		)
	}
}
