package auth

import (
	"context"
	"errors"
)

type contextKey string

const callerKey contextKey = "caller"

// Caller is the authenticated identity attached to a request context.
type Caller struct {
	SS58 string
	Role string
}

// WithCaller attaches the authenticated caller to the context.
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey, c)
}

// CallerFrom retrieves the authenticated caller from the context.
func CallerFrom(ctx context.Context) (Caller, error) {
	c, ok := ctx.Value(callerKey).(Caller)
	if !ok {
		return Caller{}, errors.New("no authenticated caller in context")
	}
	return c, nil
}
