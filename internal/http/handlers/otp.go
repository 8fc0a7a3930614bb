package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hongminglow/medicart-identity/internal/http/respond"
	"github.com/hongminglow/medicart-identity/internal/identity"
	"github.com/hongminglow/medicart-identity/internal/models/dto"
)

// OtpHandler serves OTP send and verify. In demo mode the send response
// echoes the code, since there is no real delivery channel.
type OtpHandler struct {
	svc      IdentityService
	demoMode bool
	logger   *zap.Logger
}

// NewOtpHandler constructs the handler.
func NewOtpHandler(svc IdentityService, demoMode bool, logger *zap.Logger) *OtpHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OtpHandler{svc: svc, demoMode: demoMode, logger: logger}
}

// Register attaches OTP routes to the router.
func (h *OtpHandler) Register(r chi.Router) {
	r.Post("/auth/otp/send", h.handleSend)
	r.Post("/auth/otp/verify", h.handleVerify)
}

func (h *OtpHandler) handleSend(w http.ResponseWriter, r *http.Request) {
	var req dto.OtpSendRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	code, err := h.svc.SendOtp(r.Context(), req.Email)
	if err != nil {
		writeIdentityError(w, r, h.logger, err)
		return
	}
	resp := dto.OtpSendResponse{
		Email:         identity.NormalizeEmail(req.Email),
		ExpiryMinutes: int(h.svc.OtpTTL().Minutes()),
	}
	if h.demoMode {
		resp.DemoCode = code
	}
	respond.JSON(w, http.StatusOK, "otp sent", resp)
}

func (h *OtpHandler) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req dto.OtpVerifyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !req.HasProfile() {
		if err := h.svc.VerifyOtp(r.Context(), req.Email, req.Code); err != nil {
			writeIdentityError(w, r, h.logger, err)
			return
		}
		respond.JSON(w, http.StatusOK, "otp verified", dto.OtpVerifiedResponse{
			Email:  identity.NormalizeEmail(req.Email),
			Status: "verified",
		})
		return
	}
	sess, err := h.svc.RegisterViaOtp(r.Context(), req.Email, req.Code, req.Password, identity.Profile{FullName: req.FullName, Phone: req.Phone})
	if err != nil {
		writeIdentityError(w, r, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusCreated, "user registered", loginResponse(sess))
}
