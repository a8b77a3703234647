package aggcache

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with cache-specific context.
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

// WithStar adds the star (schema and fact table) to the logger.
func (l *Logger) WithStar(schema, fact string) *Logger {
	return &Logger{
		Logger: l.Logger.With("schema", schema, "fact", fact),
	}
}

// WithBatch adds a load batch id to the logger.
func (l *Logger) WithBatch(id string) *Logger {
	return &Logger{
		Logger: l.Logger.With("batch", id),
	}
}

// LogLoad logs a finished segment load.
func (l *Logger) LogLoad(ctx context.Context, batch string, segments, rows int, d time.Duration, err error) {
	if err != nil {
		l.WarnContext(ctx, "segment load failed",
			"batch", batch,
			"segments", segments,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "segment load completed",
			"batch", batch,
			"segments", segments,
			"rows", rows,
			"duration", d,
		)
	}
}

// LogFlush logs a cache flush.
func (l *Logger) LogFlush(ctx context.Context, region string, removed, constrained int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "flush failed",
			"region", region,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "flush completed",
			"region", region,
			"removed", removed,
			"constrained", constrained,
		)
	}
}

// LogLookup logs a cell lookup.
func (l *Logger) LogLookup(ctx context.Context, measure string, hit bool, err error) {
	if err != nil && !IsControl(err) {
		l.ErrorContext(ctx, "cell lookup failed",
			"measure", measure,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "cell lookup",
			"measure", measure,
			"hit", hit,
		)
	}
}

// LogTierError logs a cache tier failure. Tier failures never fail the
// operation that caused them.
func (l *Logger) LogTierError(ctx context.Context, op, tier string, err error) {
	l.WarnContext(ctx, "cache tier failed",
		"op", op,
		"tier", tier,
		"error", err,
	)
}
