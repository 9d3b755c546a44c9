// Package trace provides trace ID generation and context propagation so that
// every log line emitted while answering one chat message can be correlated.
package trace

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// Header is the HTTP header carrying the trace ID in both directions.
const Header = "X-Trace-ID"

// traceKey is the unexported context key used to store the trace ID.
type traceKey struct{}

// GenerateID generates a unique trace ID
func GenerateID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("trace_%d", time.Now().UnixNano())
	}
	return "t_" + hex.EncodeToString(bytes)
}

// WithTraceID returns a child context carrying the given trace ID.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceKey{}, id)
}

// FromContext extracts the trace ID from ctx, returning "" if absent.
func FromContext(ctx context.Context) string {
	if v, ok := ctx.Value(traceKey{}).(string); ok {
		return v
	}
	return ""
}

// Ensure returns ctx unchanged when it already carries a trace ID, otherwise
// a child context with the given id (or a freshly generated one when id is
// empty). The effective ID is returned alongside.
func Ensure(ctx context.Context, id string) (context.Context, string) {
	if existing := FromContext(ctx); existing != "" {
		return ctx, existing
	}
	if id == "" {
		id = GenerateID()
	}
	return WithTraceID(ctx, id), id
}
