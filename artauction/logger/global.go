package logger

import (
	"log/slog"
	"time"
)

// LogEvent logs a processed chain event.
func LogEvent(kind string, auctionID int64, duration time.Duration, err error) {
	attrs := []any{
		slog.String("type", "chain"),
		slog.String("event", kind),
		slog.Int64("auction_id", auctionID),
		slog.Duration("took", duration),
	}

	if err != nil {
		slog.Error("Event apply failed", append(attrs, slog.Any("error", err))...)
	} else {
		slog.Debug("Event applied", attrs...)
	}
}

// LogQuery logs read model store operations.
func LogQuery(op string, duration time.Duration, err error) {
	attrs := []any{
		slog.String("type", "db"),
		slog.Duration("took", duration),
	}

	if err != nil {
		slog.Error("Store operation failed", append(attrs,
			slog.String("op", op),
			slog.Any("error", err),
		)...)
	} else {
		slog.Debug("Store operation executed", append(attrs,
			slog.String("op", op),
		)...)
	}
}

// LogAnomaly records a projector transition that was a no-op against
// expectation. Anomalies are observability only and never raised as errors.
func LogAnomaly(msg string, attrs ...any) {
	baseAttrs := []any{slog.String("type", "chain"), slog.String("anomaly", "true")}
	slog.Warn(msg, append(baseAttrs, attrs...)...)
}

// LogSystem logs system events.
func LogSystem(msg string, attrs ...any) {
	baseAttrs := []any{slog.String("type", "sys")}
	slog.Info(msg, append(baseAttrs, attrs...)...)
}

// LogError logs error events.
func LogError(msg string, err error, attrs ...any) {
	baseAttrs := []any{
		slog.String("type", "error"),
		slog.Any("error", err),
	}
	slog.Error(msg, append(baseAttrs, attrs...)...)
}
