package logging

import (
	"context"
	"log/slog"

	"kiln/internal/services"
)

// Canonical attribute keys. Every package logs these under the same names so
// a single grep or log query follows a run across components.
const (
	// FieldComponent names the subsystem that produced a record. The
	// console format folds it into the line prefix.
	FieldComponent = "component"
	// FieldRunID carries the ledger identifier of the run being processed.
	FieldRunID = "run_id"
	// FieldPromptID carries the engine-assigned prompt identifier.
	FieldPromptID = "prompt_id"
	// FieldCorrelationID ties log lines back to the API request that
	// triggered them.
	FieldCorrelationID = "correlation_id"
	// FieldEventType is a machine-readable event name for alert routing.
	FieldEventType = "event_type"
	// FieldErrorHint tells the operator what to check or do next.
	FieldErrorHint = "error_hint"
	// FieldImpact states the user-facing consequence of a warning.
	FieldImpact = "impact"
)

// ContextFields extracts the log attributes carried by ctx.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	var fields []slog.Attr
	if id, ok := services.RunIDFromContext(ctx); ok {
		fields = append(fields, String(FieldRunID, id))
	}
	if name, ok := services.ComponentFromContext(ctx); ok {
		fields = append(fields, String(FieldComponent, name))
	}
	if id, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, String(FieldCorrelationID, id))
	}
	return fields
}

// WithContext returns logger augmented with the fields carried by ctx.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(attrsToArgs(fields)...)
}
