package tracing

import (
	"context"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// ContextKey is the type for context keys
type ContextKey string

const (
	// TraceIDKey is the context key for trace ID
	TraceIDKey ContextKey = "trace_id"
	// TurnIDKey is the context key for the conversational turn ID
	TurnIDKey ContextKey = "turn_id"
	// UserIDKey is the context key for the user the turn belongs to
	UserIDKey ContextKey = "user_id"
	// PathKey is the context key for the execution path (primary, fallback)
	PathKey ContextKey = "path"
)

const turnIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// TraceContext holds tracing information
type TraceContext struct {
	TraceID string
	TurnID  string
	UserID  string
	Path    string
}

// NewTraceID generates a new trace ID
func NewTraceID() string {
	return uuid.New().String()
}

// NewTurnID generates a short turn ID suitable for log correlation.
func NewTurnID() string {
	id, err := gonanoid.Generate(turnIDAlphabet, 12)
	if err != nil {
		return uuid.New().String()
	}
	return "turn_" + id
}

// WithTraceID adds a trace ID to the context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithTurnID adds a turn ID to the context
func WithTurnID(ctx context.Context, turnID string) context.Context {
	return context.WithValue(ctx, TurnIDKey, turnID)
}

// WithUserID adds a user ID to the context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// WithPath adds the execution path to the context
func WithPath(ctx context.Context, path string) context.Context {
	return context.WithValue(ctx, PathKey, path)
}

func getString(ctx context.Context, key ContextKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// GetTraceID retrieves the trace ID from the context
func GetTraceID(ctx context.Context) string { return getString(ctx, TraceIDKey) }

// GetTurnID retrieves the turn ID from the context
func GetTurnID(ctx context.Context) string { return getString(ctx, TurnIDKey) }

// GetUserID retrieves the user ID from the context
func GetUserID(ctx context.Context) string { return getString(ctx, UserIDKey) }

// GetPath retrieves the execution path from the context
func GetPath(ctx context.Context) string { return getString(ctx, PathKey) }

// FromContext extracts all tracing information from the context
func FromContext(ctx context.Context) *TraceContext {
	return &TraceContext{
		TraceID: GetTraceID(ctx),
		TurnID:  GetTurnID(ctx),
		UserID:  GetUserID(ctx),
		Path:    GetPath(ctx),
	}
}

// NewTurnContext starts a turn: it assigns a trace ID when missing, a fresh
// turn ID, and the user ID.
func NewTurnContext(ctx context.Context, userID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if GetTraceID(ctx) == "" {
		ctx = WithTraceID(ctx, NewTraceID())
	}
	ctx = WithTurnID(ctx, NewTurnID())
	if userID != "" {
		ctx = WithUserID(ctx, userID)
	}
	return ctx
}
