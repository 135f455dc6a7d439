package commands

import "context"

type ctxKey int

const runIDKey ctxKey = iota

// WithRunID returns a context carrying the ID of the run being executed.
// The registry sets it before invoking a handler so that nested invocations
// can record their parent.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// RunIDFromContext returns the run ID carried by the context, if any.
func RunIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(runIDKey).(string); ok {
		return id
	}

	return ""
}
