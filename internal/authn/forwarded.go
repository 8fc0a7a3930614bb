package authn

import (
	"net/http"
	"strings"
)

// HeaderUserID carries the resolved subject from the edge to internal services.
// Internal services that accept it trust their upstream completely and do not
// re-verify the token.
const HeaderUserID = "X-User-Id"

// ForwardIdentity rewrites an outbound request so the only X-User-Id it
// carries is the subject of p. Client-supplied values are always dropped.
func ForwardIdentity(out *http.Request, p *Principal) {
	out.Header.Del(HeaderUserID)
	if p != nil && p.Subject != "" {
		out.Header.Set(HeaderUserID, p.Subject)
	}
}

// TrustForwarded adopts X-User-Id as the principal when no token principal
// was established. Install it after the gate, and only on services that sit
// behind the edge.
func TrustForwarded(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := PrincipalFromContext(r.Context()); !ok {
			if subject := strings.TrimSpace(r.Header.Get(HeaderUserID)); subject != "" {
				r = r.WithContext(WithPrincipal(r.Context(), &Principal{Subject: subject, Forwarded: true}))
			}
		}
		next.ServeHTTP(w, r)
	})
}
