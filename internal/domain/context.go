package domain

import "context"

type callContextKey struct{}

// CallContext carries the routing overrides and correlation id of a single call.
type CallContext struct {
	RequestID string
	Database  string
	Schema    string
}

// Overrides returns the database and schema overrides as ConnectionDefaults.
func (c CallContext) Overrides() ConnectionDefaults {
	return ConnectionDefaults{Database: c.Database, Schema: c.Schema}
}

// WithCallContext stores a CallContext in the context.
func WithCallContext(ctx context.Context, c CallContext) context.Context {
	return context.WithValue(ctx, callContextKey{}, c)
}

// CallContextFrom extracts the CallContext from the context.
func CallContextFrom(ctx context.Context) (CallContext, bool) {
	c, ok := ctx.Value(callContextKey{}).(CallContext)
	return c, ok
}
