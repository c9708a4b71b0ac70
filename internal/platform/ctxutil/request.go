// Package ctxutil carries per-request values (the caller and correlation ids) on a context.
package ctxutil

import "context"

// RequestData is the authenticated caller attached by the auth middleware.
type RequestData struct {
	UserID string
	Name   string
	Admin  bool
}

// TraceData correlates a request across logs, traces and SSE events.
type TraceData struct {
	TraceID   string
	RequestID string
}

type ctxKey[T any] struct{}

func attach[T any](ctx context.Context, v *T) context.Context {
	return context.WithValue(Default(ctx), ctxKey[T]{}, v)
}

func lookup[T any](ctx context.Context) *T {
	if ctx == nil {
		return nil
	}
	v, _ := ctx.Value(ctxKey[T]{}).(*T)
	return v
}

func WithRequestData(ctx context.Context, rd *RequestData) context.Context { return attach(ctx, rd) }

func GetRequestData(ctx context.Context) *RequestData { return lookup[RequestData](ctx) }

func WithTraceData(ctx context.Context, td *TraceData) context.Context { return attach(ctx, td) }

func GetTraceData(ctx context.Context) *TraceData { return lookup[TraceData](ctx) }

// UserID returns the authenticated user's id, or "" for anonymous requests.
func UserID(ctx context.Context) string {
	if rd := GetRequestData(ctx); rd != nil {
		return rd.UserID
	}
	return ""
}

// Default returns context.Background() when ctx is nil.
func Default(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
