package pipeline

import (
	"context"
	"log/slog"
	"slices"

	"github.com/ThreeDotsLabs/watermill"
)

// levelTrace sits below debug; watermill logs every message at this level.
const levelTrace = slog.LevelDebug - 4

// slogAdapter routes watermill logs to slog.
type slogAdapter struct {
	logger *slog.Logger
}

// NewLoggerAdapter wraps logger for the router and pub/sub.
func NewLoggerAdapter(logger *slog.Logger) watermill.LoggerAdapter {
	return &slogAdapter{logger: logger}
}

func (a *slogAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.log(slog.LevelError, msg, fields.Add(watermill.LogFields{"error": err}))
}

func (a *slogAdapter) Info(msg string, fields watermill.LogFields) {
	a.log(slog.LevelInfo, msg, fields)
}

func (a *slogAdapter) Debug(msg string, fields watermill.LogFields) {
	a.log(slog.LevelDebug, msg, fields)
}

func (a *slogAdapter) Trace(msg string, fields watermill.LogFields) {
	a.log(levelTrace, msg, fields)
}

func (a *slogAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &slogAdapter{logger: a.logger.With(attrs(fields)...)}
}

func (a *slogAdapter) log(level slog.Level, msg string, fields watermill.LogFields) {
	a.logger.Log(context.Background(), level, msg, attrs(fields)...)
}

func attrs(fields watermill.LogFields) []any {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	out := make([]any, 0, len(keys))
	for _, k := range keys {
		out = append(out, slog.Any(k, fields[k]))
	}
	return out
}
