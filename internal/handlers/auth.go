package handlers

import (
	"net/http"
	"strings"

	"github.com/youngacademy/platform/internal/logging"
	"github.com/youngacademy/platform/internal/models"
	"github.com/youngacademy/platform/internal/portal"
	"github.com/youngacademy/platform/internal/records"
)

// Messages for registration form errors caught before the provider is called.
const (
	msgPasswordMismatch = "Die Passwörter stimmen nicht überein."
	msgTermsRequired    = "Bitte akzeptiere die Nutzungsbedingungen."
)

// AuthHandler implements the session endpoints of an application instance.
type AuthHandler struct {
	Instances Instances
	Limiter   RateLimiter
}

type signUpRequest struct {
	Name            string `json:"name" validate:"max=100"`
	Email           string `json:"email" validate:"required"`
	Password        string `json:"password" validate:"required"`
	ConfirmPassword string `json:"confirmPassword"`
	AgreeToTerms    bool   `json:"agreeToTerms"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type sessionResponse struct {
	ClientID string                `json:"clientId,omitempty"`
	User     *models.User          `json:"user"`
	IsAdmin  bool                  `json:"isAdmin"`
	Tokens   *models.SessionTokens `json:"tokens,omitempty"`
}

// SignUp handles POST /api/v1/auth/signup.
func (h AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if !allowRequest(h.Limiter, r, "signup") {
		respondMessage(ctx, w, http.StatusTooManyRequests, "too many requests")
		return
	}

	var req signUpRequest
	if err := decodeJSON(r, &req); err != nil {
		logger.Warn("invalid signup payload", "error", err)
		respondMessage(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := records.Validate(req); err != nil {
		respondError(ctx, w, err)
		return
	}
	if req.Password != req.ConfirmPassword {
		respondMessage(ctx, w, http.StatusBadRequest, msgPasswordMismatch)
		return
	}
	if !req.AgreeToTerms {
		respondMessage(ctx, w, http.StatusBadRequest, msgTermsRequired)
		return
	}

	inst, created, err := h.Instances.Resolve(w, r)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	if err := inst.Session.SignUp(ctx, req.Email, req.Password, strings.TrimSpace(req.Name)); err != nil {
		logger.Warn("signup failed", "email", req.Email, "error", err)
		if created {
			h.Instances.discard(w, inst)
		}
		respondError(ctx, w, err)
		return
	}

	h.Instances.setRefreshCookie(w, inst)
	respondJSON(ctx, w, http.StatusCreated, newSessionResponse(inst, true))
}

// Login handles POST /api/v1/auth/login.
func (h AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if !allowRequest(h.Limiter, r, "login") {
		respondMessage(ctx, w, http.StatusTooManyRequests, "too many requests")
		return
	}

	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		logger.Warn("invalid login payload", "error", err)
		respondMessage(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := records.Validate(req); err != nil {
		respondError(ctx, w, err)
		return
	}

	inst, created, err := h.Instances.Resolve(w, r)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	if err := inst.Session.SignIn(ctx, req.Email, req.Password); err != nil {
		logger.Warn("login failed", "email", req.Email, "error", err)
		if created {
			h.Instances.discard(w, inst)
		}
		respondError(ctx, w, err)
		return
	}

	h.Instances.setRefreshCookie(w, inst)
	respondJSON(ctx, w, http.StatusOK, newSessionResponse(inst, true))
}

// Logout handles POST /api/v1/auth/logout. Anonymous callers only get their
// refresh cookie cleared.
func (h AuthHandler) Logout(w http.ResponseWriter, r *http.Request, inst *portal.Instance) {
	ctx := r.Context()
	if inst == nil {
		h.Instances.clearRefreshCookie(w)
		respondJSON(ctx, w, http.StatusOK, newSessionResponse(nil, false))
		return
	}
	if err := inst.Session.Logout(ctx); err != nil {
		respondError(ctx, w, err)
		return
	}
	h.Instances.clearRefreshCookie(w)
	respondJSON(ctx, w, http.StatusOK, newSessionResponse(inst, false))
}

// Session handles GET /api/v1/auth/session.
func (h AuthHandler) Session(w http.ResponseWriter, r *http.Request, inst *portal.Instance) {
	respondJSON(r.Context(), w, http.StatusOK, newSessionResponse(inst, false))
}

func newSessionResponse(inst *portal.Instance, withTokens bool) sessionResponse {
	if inst == nil {
		return sessionResponse{}
	}
	resp := sessionResponse{
		ClientID: inst.ID,
		User:     inst.Session.User(),
		IsAdmin:  inst.Session.IsAdmin(),
	}
	if withTokens && resp.User != nil {
		tokens := inst.Auth.Tokens()
		resp.Tokens = &tokens
	}
	return resp
}
