package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hongminglow/medicart-identity/internal/authn"
	"github.com/hongminglow/medicart-identity/internal/config"
	"github.com/hongminglow/medicart-identity/internal/http/handlers"
	"github.com/hongminglow/medicart-identity/internal/middleware"
	"github.com/hongminglow/medicart-identity/internal/policy"
)

// Server wraps an http.Server with configured routes.
type Server struct {
	inner *http.Server
}

// Security is the authentication and authorization pair every service runs.
type Security struct {
	Gate   *authn.Gate
	Policy *policy.Policy
	// TrustForwarded adopts X-User-Id from the edge when no token is presented.
	TrustForwarded bool
}

// NewAuthService wires up middleware and the identity routes.
func NewAuthService(cfg config.Config, svc handlers.IdentityService, sec Security, logger *zap.Logger) *Server {
	r := newRouter(cfg, sec, logger)
	handlers.NewHealthHandler(cfg.ServiceNameOr("auth-service"), time.Now()).Register(r)
	handlers.NewAuthHandler(svc, logger).Register(r)
	handlers.NewOtpHandler(svc, cfg.OTPDemoMode, logger).Register(r)
	return newServer(cfg.HTTPAddress(), r)
}

// newRouter builds the middleware chain shared by every service: request
// ids, panic recovery, CORS, the authentication gate, access logging and
// finally the route policy.
func newRouter(cfg config.Config, sec Security, logger *zap.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(sec.Gate.Middleware)
	if sec.TrustForwarded {
		r.Use(authn.TrustForwarded)
	}
	r.Use(middleware.Logging(logger))
	r.Use(sec.Policy.Middleware(logger))
	return r
}

func newServer(addr string, handler http.Handler) *Server {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return &Server{inner: httpServer}
}

// Handler exposes the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.inner.Handler
}

// Addr is the configured listen address.
func (s *Server) Addr() string {
	return s.inner.Addr
}

// Start begins serving HTTP traffic.
func (s *Server) Start() error {
	return s.inner.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.inner.Shutdown(ctx)
}
