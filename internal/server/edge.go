package server

import (
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/hongminglow/medicart-identity/internal/authn"
	"github.com/hongminglow/medicart-identity/internal/config"
	"github.com/hongminglow/medicart-identity/internal/http/handlers"
	"github.com/hongminglow/medicart-identity/internal/http/respond"
)

// NewEdge builds the authenticated edge. Requests the policy allows are
// proxied to upstream with the caller's subject in X-User-Id; any
// client-supplied X-User-Id is dropped first.
func NewEdge(cfg config.Config, upstream *url.URL, sec Security, logger *zap.Logger) *Server {
	// The edge is where identity is established, never where it is trusted.
	sec.TrustForwarded = false

	r := newRouter(cfg, sec, logger)
	handlers.NewHealthHandler(cfg.ServiceNameOr("edge-service"), time.Now()).Register(r)
	r.Handle("/*", newProxy(upstream, logger))
	return newServer(cfg.HTTPAddress(), r)
}

func newProxy(upstream *url.URL, logger *zap.Logger) *httputil.ReverseProxy {
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(upstream)
			pr.SetXForwarded()
			principal, _ := authn.PrincipalFromContext(pr.In.Context())
			authn.ForwardIdentity(pr.Out, principal)
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Warn("upstream request failed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Error(err))
			respond.Error(w, http.StatusBadGateway, "upstream unavailable")
		},
	}
}
