// Package ctxkey defines well-known context keys shared between the HTTP
// middleware and logger layers.
package ctxkey

import "context"

type key struct{ name string }

var (
	kRequestID key = key{"request_id"}
	kTx        key = key{"tx"}
)

// GetRequestID returns the correlation id attached to ctx, or "" if none.
func GetRequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(kRequestID).(string); ok {
		return id
	}
	return ""
}

// SetRequestID returns a copy of ctx carrying the given request id.
func SetRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, kRequestID, id)
}

// GetTransaction returns the transaction handle attached to ctx, if any.
func GetTransaction(ctx context.Context) any {
	if ctx == nil {
		return nil
	}
	return ctx.Value(kTx)
}

// SetTransaction returns a copy of ctx carrying the given transaction
// handle. The store package does not read this key; its writes run
// independently of any handle attached here.
func SetTransaction(ctx context.Context, tx any) context.Context {
	return context.WithValue(ctx, kTx, tx)
}
