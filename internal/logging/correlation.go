package logging

import "context"

type correlationKeyType struct{}

var correlationKey correlationKeyType

// WithCorrelationID returns a context carrying the correlation id assigned
// to an operator request
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey, id)
}

// CorrelationID returns the correlation id from the context, or ""
func CorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationKey).(string); ok {
		return id
	}
	return ""
}

// WithContext derives a logger whose entries carry the context's correlation
// id, so a failover attempt's log lines can be tied back to the trigger
// request that started it
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if id := CorrelationID(ctx); id != "" {
		return l.withBase(Fields{"correlation_id": id})
	}
	return l
}
