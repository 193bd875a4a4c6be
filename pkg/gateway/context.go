package gateway

import "context"

type contextKey string

const clientIDKey contextKey = "client_id"

// withClientID attaches the originating client's ID to the context so
// handlers can attribute actions to a connection.
func withClientID(ctx context.Context, clientID string) context.Context {
	return context.WithValue(ctx, clientIDKey, clientID)
}

// clientIDFromContext returns the originating client's ID, or empty if
// the request did not arrive over a client connection.
func clientIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(clientIDKey).(string); ok {
		return id
	}
	return ""
}
