package agent

import (
	"log/slog"
	"time"
)

const (
	FailureExtraction  = "extraction_failure"
	FailureGeneration  = "generation_failure"
	FailureIntent      = "intent_failure"
	FailurePersistence = "persistence_failure"
	FailureInternal    = "internal_error"
	FailureTimeout     = "turn_timeout"
)

// EventLogger reports latency and failure events. It is purely observational;
// the toggles never change how a turn is processed. A nil *EventLogger is silent.
type EventLogger struct {
	logger      *slog.Logger
	LogLatency  bool
	LogFailures bool
}

func NewEventLogger(logger *slog.Logger, logLatency, logFailures bool) *EventLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventLogger{logger: logger, LogLatency: logLatency, LogFailures: logFailures}
}

func (e *EventLogger) Latency(op string, d time.Duration, attrs ...any) {
	if e == nil || !e.LogLatency {
		return
	}
	e.logger.Info("latency", append([]any{"op", op, "duration_ms", d.Milliseconds()}, attrs...)...)
}

func (e *EventLogger) Failure(kind string, err error, attrs ...any) {
	if e == nil || !e.LogFailures {
		return
	}
	args := []any{"kind", kind}
	if err != nil {
		args = append(args, "error", err.Error())
	}
	e.logger.Warn("failure", append(args, attrs...)...)
}
