package statemachine

import (
	"context"
	"log/slog"
	"time"

	"github.com/amp-labs/amp-fsm/logger"
)

// Logger provides logging hooks for machine execution. Each machine gets its
// own Logger (see WithLogger); nothing in this package logs globally.
type Logger interface {
	TransitionExecuted(ctx context.Context, machine, trigger, from, to string)
	TriggerSkipped(ctx context.Context, machine, trigger, state string)
	UnknownTrigger(ctx context.Context, machine, trigger string)
	TimeoutArmed(ctx context.Context, machine, state string, after time.Duration)
	StaleTimeout(ctx context.Context, machine, trigger string, armed, current uint64)
	NotifierPanicked(ctx context.Context, machine string, recovered any, stack []byte)
	StepPanicked(ctx context.Context, machine, trigger, state string, recovered any, stack []byte)
}

// DefaultLogger implements Logger using slog.
type DefaultLogger struct {
	logger *slog.Logger
}

// NewDefaultLogger creates a logger that writes to log. A nil log defers to
// logger.Get, which picks up values attached to the context.
func NewDefaultLogger(log *slog.Logger) *DefaultLogger {
	return &DefaultLogger{
		logger: log,
	}
}

func (l *DefaultLogger) get(ctx context.Context) *slog.Logger {
	if l.logger != nil {
		return l.logger
	}

	return logger.Get(ctx)
}

func (l *DefaultLogger) TransitionExecuted(ctx context.Context, machine, trigger, from, to string) {
	traceID, spanID := extractTraceContext(ctx)

	fields := []any{
		"machine", machine,
		"trigger", trigger,
		"from", from,
		"to", to,
	}

	if traceID != "" {
		fields = append(fields, "trace_id", traceID, "span_id", spanID)
	}

	l.get(ctx).InfoContext(ctx, "Trigger '"+trigger+"' on '"+machine+"' ["+from+" -> "+to+"]", fields...)
}

func (l *DefaultLogger) TriggerSkipped(ctx context.Context, machine, trigger, state string) {
	l.get(ctx).InfoContext(ctx, "Trigger not valid from current state, skipped",
		"machine", machine,
		"trigger", trigger,
		"state", state,
	)
}

func (l *DefaultLogger) UnknownTrigger(ctx context.Context, machine, trigger string) {
	l.get(ctx).WarnContext(ctx, "Unknown trigger",
		"machine", machine,
		"trigger", trigger,
	)
}

func (l *DefaultLogger) TimeoutArmed(ctx context.Context, machine, state string, after time.Duration) {
	l.get(ctx).DebugContext(ctx, "Timeout armed",
		"machine", machine,
		"state", state,
		"after", after,
	)
}

func (l *DefaultLogger) StaleTimeout(ctx context.Context, machine, trigger string, armed, current uint64) {
	l.get(ctx).DebugContext(ctx, "Stale timeout discarded",
		"machine", machine,
		"trigger", trigger,
		"armed_generation", armed,
		"current_generation", current,
	)
}

func (l *DefaultLogger) NotifierPanicked(ctx context.Context, machine string, recovered any, stack []byte) {
	l.get(ctx).ErrorContext(ctx, "Notifier recovered from panic",
		"machine", machine,
		"error", recovered,
		"stack", string(stack),
	)
}

func (l *DefaultLogger) StepPanicked(
	ctx context.Context, machine, trigger, state string, recovered any, stack []byte,
) {
	l.get(ctx).ErrorContext(ctx, "Machine recovered from panic",
		"machine", machine,
		"trigger", trigger,
		"state", state,
		"error", recovered,
		"stack", string(stack),
	)
}

// nopLogger discards everything.
type nopLogger struct{}

func (nopLogger) TransitionExecuted(context.Context, string, string, string, string) {}
func (nopLogger) TriggerSkipped(context.Context, string, string, string)             {}
func (nopLogger) UnknownTrigger(context.Context, string, string)                     {}
func (nopLogger) TimeoutArmed(context.Context, string, string, time.Duration)        {}
func (nopLogger) StaleTimeout(context.Context, string, string, uint64, uint64)       {}
func (nopLogger) NotifierPanicked(context.Context, string, any, []byte)              {}
func (nopLogger) StepPanicked(context.Context, string, string, string, any, []byte)  {}

// NopLogger returns a Logger that discards everything.
func NopLogger() Logger { //nolint:ireturn
	return nopLogger{}
}
