package handler

import (
	"errors"
	"net/http"

	"github.com/tradegate/tradegate/internal/middleware"
	"github.com/tradegate/tradegate/internal/service"
)

type twoFactorRequest struct {
	Code string `json:"code"`
}

// Setup2FA handles POST /api/v1/account/2fa/setup
func (h *Handler) Setup2FA(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	setup, err := h.authSvc.Setup2FA(r.Context(), identity.AccountID)
	if err != nil {
		h.log.Error().Err(err).Str("account_id", identity.AccountID).Msg("2fa setup failed")
		writeError(w, http.StatusInternalServerError, "Failed to set up two-factor authentication")
		return
	}

	writeSuccess(w, http.StatusOK, setup)
}

// Enable2FA handles POST /api/v1/account/2fa/enable. The backup codes in
// the response are shown exactly once.
func (h *Handler) Enable2FA(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req twoFactorRequest
	if err := readJSON(r, &req); err != nil || req.Code == "" {
		writeError(w, http.StatusBadRequest, "Verification code is required")
		return
	}

	codes, err := h.authSvc.Enable2FA(r.Context(), identity.AccountID, req.Code, getClientIP(r), r.UserAgent())
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidTwoFactor):
			writeError(w, http.StatusUnauthorized, "Invalid verification code")
		case errors.Is(err, service.ErrTwoFactorNotSetUp):
			writeError(w, http.StatusBadRequest, "Two-factor authentication has not been set up")
		default:
			writeError(w, http.StatusInternalServerError, "Failed to enable two-factor authentication")
		}
		return
	}

	writeSuccess(w, http.StatusOK, map[string]interface{}{
		"backupCodes": codes,
	})
}

// Disable2FA handles POST /api/v1/account/2fa/disable
func (h *Handler) Disable2FA(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req twoFactorRequest
	if err := readJSON(r, &req); err != nil || req.Code == "" {
		writeError(w, http.StatusBadRequest, "Verification code is required")
		return
	}

	if err := h.authSvc.Disable2FA(r.Context(), identity.AccountID, req.Code, getClientIP(r), r.UserAgent()); err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidTwoFactor):
			writeError(w, http.StatusUnauthorized, "Invalid verification code")
		case errors.Is(err, service.ErrTwoFactorNotSetUp):
			writeError(w, http.StatusBadRequest, "Two-factor authentication is not enabled")
		default:
			writeError(w, http.StatusInternalServerError, "Failed to disable two-factor authentication")
		}
		return
	}

	writeSuccess(w, http.StatusOK, map[string]interface{}{
		"message": "Two-factor authentication disabled",
	})
}
