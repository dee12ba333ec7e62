package logger

import (
	"context"
	"log/slog"
	"sync"
)

type scopeKey struct{}

type fieldsKey struct{}

// scope collects fields for one request. Contexts derived from it share it, so
// a field added by an inner handler shows up in the outer request log line.
type scope struct {
	mu     sync.Mutex
	fields []any
}

// WithScope starts a field scope on ctx, seeded with the fields ctx already has.
func WithScope(ctx context.Context) context.Context {
	return context.WithValue(ctx, scopeKey{}, &scope{fields: Fields(ctx)})
}

// With returns a context whose loggers carry fields. Inside a scope the fields
// are added to the scope itself.
func With(ctx context.Context, fields ...any) context.Context {
	if s, ok := ctx.Value(scopeKey{}).(*scope); ok {
		s.mu.Lock()
		s.fields = append(s.fields, fields...)
		s.mu.Unlock()
		return ctx
	}
	merged := append(Fields(ctx), fields...)
	return context.WithValue(ctx, fieldsKey{}, merged)
}

// Fields returns a copy of the fields carried by ctx.
func Fields(ctx context.Context) []any {
	if s, ok := ctx.Value(scopeKey{}).(*scope); ok {
		s.mu.Lock()
		defer s.mu.Unlock()
		return append([]any(nil), s.fields...)
	}
	fields, _ := ctx.Value(fieldsKey{}).([]any)
	return append([]any(nil), fields...)
}

// From returns the process logger with the fields of ctx.
func From(ctx context.Context) *slog.Logger {
	return Attach(ctx, LoggerWrapper())
}

// Attach returns base with the fields of ctx.
func Attach(ctx context.Context, base *slog.Logger) *slog.Logger {
	fields := Fields(ctx)
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}
