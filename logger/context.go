package logger

import (
	"context"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey string

// Context keys for common logging fields.
// These keys are used to store values in context.Context that will be
// automatically extracted and added to log entries.
const (
	// ContextKeySessionID identifies the workflow session.
	ContextKeySessionID contextKey = "session_id"

	// ContextKeyClientID identifies the client the session belongs to.
	ContextKeyClientID contextKey = "client_id"

	// ContextKeyWorkflow identifies the workflow definition in use.
	ContextKeyWorkflow contextKey = "workflow"

	// ContextKeyRequestID identifies the individual request.
	ContextKeyRequestID contextKey = "request_id"
)

// allContextKeys lists all context keys that should be extracted for logging.
// This is used by the handler to iterate over all possible context values.
var allContextKeys = []contextKey{
	ContextKeySessionID,
	ContextKeyClientID,
	ContextKeyWorkflow,
	ContextKeyRequestID,
}

// WithSessionID returns a new context with the session ID set.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, ContextKeySessionID, sessionID)
}

// WithClientID returns a new context with the client ID set.
func WithClientID(ctx context.Context, clientID string) context.Context {
	return context.WithValue(ctx, ContextKeyClientID, clientID)
}

// WithWorkflow returns a new context with the workflow name set.
func WithWorkflow(ctx context.Context, workflowName string) context.Context {
	return context.WithValue(ctx, ContextKeyWorkflow, workflowName)
}

// WithRequestID returns a new context with the request ID set.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}
