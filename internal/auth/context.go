// ABOUTME: Request context helpers carrying the authenticated widget session
// ABOUTME: Provides WithSessionID/SessionIDFromContext for handlers

package auth

import "context"

// sessionContextKey is the key type for the session ID in context.Context.
type sessionContextKey struct{}

// WithSessionID returns a new context carrying sessionID.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sessionID)
}

// SessionIDFromContext returns the session ID, or "" if none is present.
func SessionIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(sessionContextKey{}).(string)
	return id
}
