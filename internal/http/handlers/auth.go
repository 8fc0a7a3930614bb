package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hongminglow/medicart-identity/internal/authn"
	"github.com/hongminglow/medicart-identity/internal/http/respond"
	"github.com/hongminglow/medicart-identity/internal/identity"
	"github.com/hongminglow/medicart-identity/internal/models"
	"github.com/hongminglow/medicart-identity/internal/models/dto"
)

// IdentityService is what the auth and OTP endpoints need from the identity layer.
type IdentityService interface {
	Register(ctx context.Context, email, password string, profile identity.Profile) (identity.Session, error)
	Login(ctx context.Context, email, password string) (identity.Session, error)
	SendOtp(ctx context.Context, email string) (string, error)
	OtpTTL() time.Duration
	VerifyOtp(ctx context.Context, email, code string) error
	RegisterViaOtp(ctx context.Context, email, code, password string, profile identity.Profile) (identity.Session, error)
	Profile(ctx context.Context, id string) (models.User, error)
	ProfileByEmail(ctx context.Context, email string) (models.User, error)
	UpdateProfile(ctx context.Context, subject, id string, profile identity.Profile) (models.User, error)
}

// AuthHandler owns the register, login, token and profile endpoints.
type AuthHandler struct {
	svc    IdentityService
	logger *zap.Logger
}

// NewAuthHandler constructs the handler.
func NewAuthHandler(svc IdentityService, logger *zap.Logger) *AuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{svc: svc, logger: logger}
}

// Register attaches auth routes to the router. Access control is left to
// the route policy in front of the router.
func (h *AuthHandler) Register(r chi.Router) {
	r.Post("/auth/register", h.handleRegister)
	r.Post("/auth/login", h.handleLogin)
	r.Get("/auth/validate", h.handleValidate)
	r.Get("/auth/me", h.handleMe)
	r.Get("/auth/users/{id}", h.handleGetUser)
	r.Put("/auth/users/{id}", h.handleUpdateUser)
}

func (h *AuthHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req dto.RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sess, err := h.svc.Register(r.Context(), req.Email, req.Password, identity.Profile{FullName: req.FullName, Phone: req.Phone})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respond.JSON(w, http.StatusCreated, "user registered", loginResponse(sess))
}

func (h *AuthHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sess, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, "login successful", loginResponse(sess))
}

func (h *AuthHandler) handleValidate(w http.ResponseWriter, r *http.Request) {
	if _, ok := authn.PrincipalFromContext(r.Context()); !ok {
		respond.Unauthorized(w, "unauthorized")
		return
	}
	respond.JSON(w, http.StatusOK, "token is valid", nil)
}

func (h *AuthHandler) handleMe(w http.ResponseWriter, r *http.Request) {
	p, ok := authn.PrincipalFromContext(r.Context())
	if !ok {
		respond.Unauthorized(w, "unauthorized")
		return
	}
	user, err := h.svc.ProfileByEmail(r.Context(), p.Subject)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, "ok", user)
}

func (h *AuthHandler) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.svc.Profile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, "ok", user)
}

func (h *AuthHandler) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	p, ok := authn.PrincipalFromContext(r.Context())
	if !ok {
		respond.Unauthorized(w, "unauthorized")
		return
	}
	var req dto.UpdateProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := h.svc.UpdateProfile(r.Context(), p.Subject, chi.URLParam(r, "id"), identity.Profile{FullName: req.FullName, Phone: req.Phone})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, "profile updated", user)
}

// writeError maps identity errors onto the response envelope. Login causes
// are logged by the service and never reach the body.
func (h *AuthHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	writeIdentityError(w, r, h.logger, err)
}

func writeIdentityError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	switch {
	case errors.Is(err, identity.ErrAuthenticationFailed):
		respond.Unauthorized(w, "invalid credentials")
	case errors.Is(err, identity.ErrAlreadyExists):
		respond.Error(w, http.StatusConflict, "user already exists")
	case errors.Is(err, identity.ErrInvalidInput):
		respond.Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, identity.ErrOtpExpired):
		respond.Error(w, http.StatusBadRequest, "otp expired")
	case errors.Is(err, identity.ErrOtpInvalid):
		respond.Error(w, http.StatusBadRequest, "invalid otp")
	case errors.Is(err, identity.ErrNotFound):
		respond.Error(w, http.StatusNotFound, "user not found")
	case errors.Is(err, identity.ErrForbidden):
		respond.Error(w, http.StatusForbidden, "forbidden")
	default:
		logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		respond.Error(w, http.StatusInternalServerError, "internal server error")
	}
}

func loginResponse(sess identity.Session) dto.LoginResponse {
	return dto.LoginResponse{
		Token:     sess.Token,
		TokenType: identity.TokenType,
		ExpiresIn: sess.ExpiresIn(),
		UserID:    sess.User.ID,
		Email:     sess.User.Email,
		FullName:  sess.User.FullName,
		Phone:     sess.User.Phone,
		Roles:     sess.Roles(),
	}
}
