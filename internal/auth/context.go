package auth

import (
	"context"
)

type contextKey string

const principalKey contextKey = "principal"

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID int64
	Role   string
}

// ContextWithPrincipal returns a new context that carries the authenticated caller.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext retrieves the authenticated caller from the context, if any.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	value := ctx.Value(principalKey)
	if value == nil {
		return Principal{}, false
	}
	p, ok := value.(Principal)
	if !ok {
		return Principal{}, false
	}
	if p.UserID == 0 {
		return Principal{}, false
	}
	return p, true
}
