package logger

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
)

type ctxKey string

const traceIDKey ctxKey = "trace_id"

// NewTraceID returns an ID unique enough to correlate the log lines of
// one unit of work within a process.
func NewTraceID() string {
	return fmt.Sprintf("%d-%d", time.Now().UnixNano(), os.Getpid())
}

// WithTraceID returns a context carrying the given trace ID.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// GetTraceID returns the context's trace ID, or "" when none was set.
func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(traceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// WithContext returns the process logger tagged with the context's
// trace ID when one is present.
func WithContext(ctx context.Context) *zap.Logger {
	if traceID := GetTraceID(ctx); traceID != "" {
		return global.With(zap.String("trace_id", traceID))
	}
	return global
}
