// Package tracing carries a per-request trace id through context so the
// logging layer can correlate a stream end-to-end without
// threading an explicit parameter through every call.
package tracing

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// GenerateTraceID mints a fresh trace id for a request that arrived
// without an upstream one.
func GenerateTraceID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

type traceIDKey struct{}

// WithTraceID attaches a trace id to ctx, replacing any existing one.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceIDKey{}, id)
}

// TraceID returns the trace id carried by ctx, if any.
func TraceID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(traceIDKey{}).(string)
	return id, ok && id != ""
}

type operationNameKey struct{}

// WithOperationName records the logical operation (route, job name, ...)
// that produced ctx, for structured logging.
func WithOperationName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, operationNameKey{}, name)
}

// OperationName returns the operation name carried by ctx, if any.
func OperationName(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(operationNameKey{}).(string)
	return name, ok && name != ""
}
