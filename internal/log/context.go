package log

import "context"

type ctxKey struct{}

// WithContext returns a copy of ctx carrying l.
func WithContext(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the Logger stored in ctx, or Nop.
func FromContext(ctx context.Context) Logger {
	return FromContextOr(ctx, nil)
}

// FromContextOr returns the Logger stored in ctx, else fallback, else Nop.
// Components with their own configured logger use it so a bare context
// does not silence them.
func FromContextOr(ctx context.Context, fallback Logger) Logger {
	if l, ok := ctx.Value(ctxKey{}).(Logger); ok && l != nil {
		return l
	}
	if fallback == nil {
		return Nop()
	}
	return fallback
}
