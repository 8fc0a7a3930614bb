package authn

import "context"

type contextKey string

const principalKey contextKey = "principal"

// Principal is the identity attached to one in-flight request.
type Principal struct {
	Subject string
	Role    string
	// Forwarded is set when the identity came from the X-User-Id header of a
	// trusted edge rather than from a verified token. Such principals carry no role.
	Forwarded bool
}

// HasRole reports whether the principal holds role exactly.
func (p *Principal) HasRole(role string) bool {
	return p != nil && p.Role != "" && p.Role == role
}

// WithPrincipal stores p in ctx. A nil p marks the request anonymous and
// hides any principal set further up the chain.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the request principal, or false when anonymous.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey).(*Principal)
	if !ok || p == nil {
		return nil, false
	}
	return p, true
}
