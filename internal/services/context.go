package services

import "context"

type contextKey string

const (
	transactionIDKey  contextKey = "transaction_id"
	stageKey          contextKey = "stage"
	conversationIDKey contextKey = "conversation_id"
	requestIDKey      contextKey = "request_id"
)

// WithTransactionID annotates context with the ledger transaction identifier.
func WithTransactionID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, transactionIDKey, id)
}

// TransactionIDFromContext extracts the transaction identifier if present.
func TransactionIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(transactionIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithStage annotates context with the pipeline stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return context.WithValue(ctx, stageKey, stage)
}

// StageFromContext returns the stage name if present.
func StageFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(stageKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithConversationID annotates context with the destination conversation.
func WithConversationID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, conversationIDKey, id)
}

// ConversationIDFromContext returns the conversation identifier if present.
func ConversationIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(conversationIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
