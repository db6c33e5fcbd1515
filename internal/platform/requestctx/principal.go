package requestctx

import "context"

// principalIDContextKey is the context key for the authenticated principal.
type principalIDContextKey struct{}

// WithPrincipalID stores an authenticated principal identifier in context.
func WithPrincipalID(ctx context.Context, principalID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, principalIDContextKey{}, principalID)
}

// PrincipalIDFromContext returns the authenticated principal stored in
// context, or an empty string for anonymous requests.
func PrincipalIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(principalIDContextKey{}).(string)
	return value
}

// ResolvePrincipalID picks the principal a request acts for. An
// authenticated principal always wins over the one named in the payload.
func ResolvePrincipalID(ctx context.Context, requested string) string {
	if authenticated := PrincipalIDFromContext(ctx); authenticated != "" {
		return authenticated
	}
	return requested
}
