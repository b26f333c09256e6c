package logging

import (
	"context"
	"log/slog"

	"github.com/nunotfc/amelie/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldTransactionID is the standardized structured logging key for ledger transaction identifiers.
	FieldTransactionID = "transaction_id"
	// FieldSubmissionID is the standardized structured logging key for inbound submission identifiers.
	FieldSubmissionID = "submission_id"
	// FieldConversationID is the standardized structured logging key for destination conversations.
	FieldConversationID = "conversation_id"
	// FieldStage is the standardized structured logging key for pipeline stage names.
	FieldStage = "stage"
	// FieldEventType is the standardized structured logging key for machine-readable event names.
	FieldEventType = "event_type"
	// FieldErrorKind is the standardized structured logging key for classified error kinds.
	FieldErrorKind = "error_kind"
	// FieldErrorHint is the standardized structured logging key for operator remediation hints.
	FieldErrorHint = "error_hint"
	// FieldCorrelationID is the standardized structured logging key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldAttempt is the standardized structured logging key for stage attempt counters.
	FieldAttempt = "attempt"
)

// NoopHandler discards all log output.
type NoopHandler struct{}

func (NoopHandler) Enabled(context.Context, slog.Level) bool   { return false }
func (NoopHandler) Handle(context.Context, slog.Record) error  { return nil }
func (NoopHandler) WithAttrs([]slog.Attr) slog.Handler         { return NoopHandler{} }
func (NoopHandler) WithGroup(string) slog.Handler              { return NoopHandler{} }

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if id, ok := services.TransactionIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldTransactionID, id))
	}
	if stage, ok := services.StageFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldStage, stage))
	}
	if conv, ok := services.ConversationIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldConversationID, conv))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
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
