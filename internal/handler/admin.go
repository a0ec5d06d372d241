package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/tradegate/tradegate/internal/middleware"
	"github.com/tradegate/tradegate/internal/model"
	"github.com/tradegate/tradegate/internal/rbac"
	"github.com/tradegate/tradegate/internal/repository"
	"github.com/tradegate/tradegate/internal/session"
)

// ListSuspiciousIPs handles GET /api/v1/admin/security/suspicious-ips
func (h *Handler) ListSuspiciousIPs(w http.ResponseWriter, r *http.Request) {
	records := h.sessions.SuspiciousIPs()
	writeSuccess(w, http.StatusOK, map[string]interface{}{
		"records": records,
		"count":   len(records),
	})
}

type unblockIPRequest struct {
	IP string `json:"ip"`
}

// UnblockIP handles POST /api/v1/admin/security/unblock-ip. The override
// is explicit: blocks never expire on their own.
func (h *Handler) UnblockIP(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req unblockIPRequest
	if err := readJSON(r, &req); err != nil || req.IP == "" {
		writeError(w, http.StatusBadRequest, "IP address is required")
		return
	}

	if err := h.sessions.UnblockIP(r.Context(), req.IP, identity.AccountID); err != nil {
		if errors.Is(err, session.ErrIPNotBlocked) {
			writeError(w, http.StatusNotFound, "IP is not blocked")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to unblock IP")
		return
	}

	writeSuccess(w, http.StatusOK, map[string]interface{}{
		"message": "IP unblocked",
		"ip":      req.IP,
	})
}

// AccountSessions handles GET /api/v1/admin/accounts/sessions?accountId=...
func (h *Handler) AccountSessions(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	accountID := r.URL.Query().Get("accountId")
	if accountID == "" {
		writeError(w, http.StatusBadRequest, "accountId is required")
		return
	}
	if !rbac.CanAccessOwnedData(identity.AccountID, identity.Role, accountID, "sessions") {
		writeError(w, http.StatusForbidden, "Access denied")
		return
	}

	writeSuccess(w, http.StatusOK, map[string]interface{}{
		"accountId": accountID,
		"sessions":  h.sessions.SessionsForAccount(accountID),
	})
}

type revokeSessionRequest struct {
	SessionID string `json:"sessionId"`
}

// RevokeSession handles POST /api/v1/admin/accounts/revoke-session
func (h *Handler) RevokeSession(w http.ResponseWriter, r *http.Request) {
	var req revokeSessionRequest
	if err := readJSON(r, &req); err != nil || req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "sessionId is required")
		return
	}

	if err := h.sessions.InvalidateSession(r.Context(), req.SessionID, model.InvalidateReasonRevoked); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to revoke session")
		return
	}

	writeSuccess(w, http.StatusOK, map[string]interface{}{
		"message": "Session revoked",
	})
}

// AuditLogs handles GET /api/v1/admin/audit
func (h *Handler) AuditLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.AuditFilter{
		AccountID: q.Get("accountId"),
		EventType: q.Get("eventType"),
		Severity:  q.Get("severity"),
	}
	if since := q.Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC 3339")
			return
		}
		filter.Since = t
	}
	if limit := q.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		filter.Limit = n
	}

	entries, err := h.auditLog.List(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("audit log query failed")
		writeError(w, http.StatusInternalServerError, "Failed to query audit logs")
		return
	}

	writeSuccess(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}

// RealtimeStats handles GET /api/v1/admin/realtime/stats
func (h *Handler) RealtimeStats(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, map[string]interface{}{
		"connections": h.gateway.ConnectionCount(),
	})
}
