package session

import "context"

type contextKey struct{}

// NewContext returns a copy of ctx that carries the validated session.
func NewContext(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext returns the session stored by NewContext.
func FromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(contextKey{}).(Session)
	return s, ok
}

// AccessTokenFromContext returns the access token of the session in ctx, or an
// empty string for anonymous requests.
func AccessTokenFromContext(ctx context.Context) string {
	s, _ := FromContext(ctx)
	return s.Secure.AccessToken
}
