package authctx

import "context"

// Identity is the authenticated caller decoded from a bearer token.
type Identity struct {
	UserID int64  `json:"userId"`
	Email  string `json:"email"`
}

type ctxKeyIdentity struct{}

var identityKey = ctxKeyIdentity{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}
