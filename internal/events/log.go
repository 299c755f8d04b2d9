package events

import (
	"log/slog"
	"time"
)

// LogListener writes every event to a structured logger.
type LogListener struct {
	logger *slog.Logger
}

// NewLogListener creates a LogListener.
func NewLogListener(logger *slog.Logger) *LogListener {
	return &LogListener{logger: logger.With(slog.String("component", "events"))}
}

func (l *LogListener) ConnectionStateChanged(s State) {
	l.logger.Info("connection state changed", slog.String("state", s.String()))
}

func (l *LogListener) FatalError(msg string) {
	l.logger.Error("fatal broker error", slog.String("error", msg))
}

func (l *LogListener) TemporaryError(msg string) {
	l.logger.Warn("temporary broker error", slog.String("error", msg))
}

func (l *LogListener) TaskStarted() {
	l.logger.Debug("task started")
}

func (l *LogListener) TaskCompleted() {
	l.logger.Debug("task completed")
}

func (l *LogListener) TaskError(msg string) {
	l.logger.Warn("task error", slog.String("error", msg))
}

func (l *LogListener) PollScheduled(next time.Time) {
	l.logger.Debug("next poll scheduled",
		slog.Time("at", next),
		slog.Int64("epoch_ms", next.UnixMilli()),
	)
}
