package observability

import (
	"context"
	"log/slog"
	"time"
)

// OpLogger emits one structured log entry per completed operation, with the
// level escalating by duration: fast operations log at Debug, operations
// past the slow threshold at Warn, and past the important threshold at
// Error. Thresholds come from explicit configuration, never globals.
//
// A nil OpLogger is valid and records nothing.
type OpLogger struct {
	logger    *slog.Logger
	slow      time.Duration
	important time.Duration
}

// NewOpLogger creates an operation logger with the given duration tiers.
// important should be larger than slow.
func NewOpLogger(logger *slog.Logger, slow, important time.Duration) *OpLogger {
	return &OpLogger{logger: logger, slow: slow, important: important}
}

// Done records a finished operation that began at start. Extra attributes
// are appended after the operation name and duration.
func (l *OpLogger) Done(ctx context.Context, op string, start time.Time, attrs ...any) {
	if l == nil || l.logger == nil {
		return
	}

	elapsed := time.Since(start)
	args := make([]any, 0, len(attrs)+2)
	args = append(args, slog.String("operation", op), slog.Duration("duration", elapsed))
	args = append(args, attrs...)

	switch {
	case l.important > 0 && elapsed >= l.important:
		l.logger.ErrorContext(ctx, "operation critically slow", args...)
	case l.slow > 0 && elapsed >= l.slow:
		l.logger.WarnContext(ctx, "operation slow", args...)
	default:
		l.logger.DebugContext(ctx, "operation completed", args...)
	}
}
