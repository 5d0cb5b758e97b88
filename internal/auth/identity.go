package auth

import "context"

// Identity is the authenticated caller attached to a request.
type Identity struct {
	UserID   uint
	Username string
	Email    string
	Role     Role
}

type identityContextKey struct{}

// WithIdentity returns a context carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFrom extracts the identity attached by the authenticator.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	id, ok := ctx.Value(identityContextKey{}).(Identity)
	return id, ok
}
