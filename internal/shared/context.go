package shared

import "context"

// Identity carries the authenticated tenant and actor for a request.
// Authentication itself happens upstream; the ledger trusts these values
// but still re-validates tenant ownership of every foreign key.
type Identity struct {
	TenantID int64
	ActorID  int64
}

type identityContextKey struct{}

// ContextWithIdentity stores the identity in context.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext extracts the identity from context.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(Identity)
	return id, ok
}
