package handler

import (
	"errors"
	"net/http"

	"github.com/tradegate/tradegate/internal/middleware"
	"github.com/tradegate/tradegate/internal/model"
	"github.com/tradegate/tradegate/internal/rbac"
	"github.com/tradegate/tradegate/internal/service"
)

// LoginRequest is the login request body
type LoginRequest struct {
	Email         string `json:"email"`
	Password      string `json:"password"`
	TwoFactorCode string `json:"twoFactorCode,omitempty"`
}

// Login handles POST /api/v1/auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	h.completeLogin(w, r, req)
}

// Verify2FA handles POST /api/v1/auth/2fa/verify. It runs the same state
// machine as login; the route exists so clients can re-submit credentials
// with a code after a requires2FA response.
func (h *Handler) Verify2FA(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.TwoFactorCode == "" {
		writeError(w, http.StatusBadRequest, "Two-factor code is required")
		return
	}

	h.completeLogin(w, r, req)
}

// AdminLogin handles POST /api/v1/auth/admin/login. It runs the same gate
// sequence as Login behind a stricter rate limit; an account outside the
// admin bucket is rejected and any session issued on the way is revoked.
func (h *Handler) AdminLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	result, ok := h.runLogin(w, r, req)
	if !ok {
		return
	}
	if result.Requires2FA {
		writeSuccess(w, http.StatusOK, result)
		return
	}
	if result.Account == nil || !model.IsAdminRole(result.Account.Role) {
		if result.SessionID != "" {
			if err := h.authSvc.Logout(r.Context(), result.SessionID); err != nil {
				h.log.Error().Err(err).Str("session_id", result.SessionID).Msg("failed to revoke non-admin session")
			}
		}
		writeError(w, http.StatusForbidden, "Administrative account required")
		return
	}

	writeSuccess(w, http.StatusOK, result)
}

func (h *Handler) completeLogin(w http.ResponseWriter, r *http.Request, req LoginRequest) {
	result, ok := h.runLogin(w, r, req)
	if !ok {
		return
	}
	writeSuccess(w, http.StatusOK, result)
}

func (h *Handler) runLogin(w http.ResponseWriter, r *http.Request, req LoginRequest) (*service.LoginResult, bool) {
	result, err := h.authSvc.Login(r.Context(), service.LoginRequest{
		Email:         req.Email,
		Password:      req.Password,
		TwoFactorCode: req.TwoFactorCode,
		IP:            getClientIP(r),
		UserAgent:     r.UserAgent(),
	})
	if err != nil {
		status, message := loginStatus(err)
		writeError(w, status, message)
		return nil, false
	}
	return result, true
}

// Logout handles POST /api/v1/auth/logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	if err := h.authSvc.Logout(r.Context(), identity.SessionID); err != nil {
		h.log.Error().Err(err).Str("session_id", identity.SessionID).Msg("logout failed")
		writeError(w, http.StatusInternalServerError, "Failed to log out")
		return
	}

	writeSuccess(w, http.StatusOK, map[string]interface{}{
		"message": "Logged out",
	})
}

// Me handles GET /api/v1/account/me
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	account, err := h.accounts.GetByID(r.Context(), identity.AccountID)
	if err != nil {
		writeError(w, http.StatusNotFound, "Account not found")
		return
	}

	writeSuccess(w, http.StatusOK, map[string]interface{}{
		"account":  account.Sanitize(),
		"sessions": h.sessions.SessionsForAccount(identity.AccountID),
	})
}

// Permissions handles GET /api/v1/account/permissions. The snapshot is
// computed from the static tables, not stored.
func (h *Handler) Permissions(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	writeSuccess(w, http.StatusOK, rbac.Snapshot(identity.Role))
}

// loginStatus maps an authentication rejection to its status code. Every
// rejection of the gate sequence is 401: forbidden is reserved for
// authenticated callers lacking a role or permission.
func loginStatus(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrBlockedIP):
		return http.StatusUnauthorized, "Requests from this address are blocked"
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Invalid email or password"
	case errors.Is(err, service.ErrAccountLocked):
		return http.StatusUnauthorized, "Account is temporarily locked"
	case errors.Is(err, service.ErrAccountInactive):
		return http.StatusUnauthorized, "Account is not active"
	case errors.Is(err, service.ErrInvalidTwoFactor):
		return http.StatusUnauthorized, "Invalid two-factor code"
	default:
		return http.StatusInternalServerError, "Login failed"
	}
}
