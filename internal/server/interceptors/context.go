package interceptors

import "context"

type contextKey struct{ name string }

var (
	identityIDKey = contextKey{"identity_id"}
	clientKey     = contextKey{"client"}
	requestIDKey  = contextKey{"request_id"}
)

// ClientInfo describes the caller of a request as seen by the server.
type ClientInfo struct {
	IP         string
	DeviceInfo string
}

// WithIdentity returns a context carrying the authenticated identity id.
func WithIdentity(ctx context.Context, identityID string) context.Context {
	return context.WithValue(ctx, identityIDKey, identityID)
}

// GetIdentityID returns the identity id from context and true if set; otherwise "", false.
func GetIdentityID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(identityIDKey).(string)
	return v, ok && v != ""
}

// WithClient returns a context carrying the client's IP and device description.
func WithClient(ctx context.Context, c ClientInfo) context.Context {
	return context.WithValue(ctx, clientKey, c)
}

// GetClient returns the client info from context, or the zero value.
func GetClient(ctx context.Context) ClientInfo {
	c, _ := ctx.Value(clientKey).(ClientInfo)
	return c
}

// WithRequestID returns a context carrying the request id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID returns the request id from context, or "".
func GetRequestID(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}
