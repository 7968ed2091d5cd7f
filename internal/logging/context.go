package logging

import (
	"context"

	"github.com/rs/zerolog"
)

type contextKey string

const threadIDKey contextKey = "thread_id"

// WithThreadID adds a thread ID to the context.
func WithThreadID(ctx context.Context, threadID string) context.Context {
	return context.WithValue(ctx, threadIDKey, threadID)
}

// ThreadID retrieves the thread ID from the context.
// Returns empty string if not present.
func ThreadID(ctx context.Context) string {
	if id, ok := ctx.Value(threadIDKey).(string); ok {
		return id
	}
	return ""
}

// Ctx returns l with the thread ID from ctx attached, if any.
func Ctx(ctx context.Context, l *zerolog.Logger) *zerolog.Logger {
	if id := ThreadID(ctx); id != "" {
		sub := l.With().Str("thread_id", id).Logger()
		return &sub
	}
	return l
}
