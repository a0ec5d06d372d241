package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/tradegate/tradegate/internal/model"
	"github.com/tradegate/tradegate/internal/rbac"
	"github.com/tradegate/tradegate/internal/service"
	"github.com/tradegate/tradegate/internal/session"
)

const adminRoutePrefix = "/api/v1/admin"

// TokenValidator resolves a bearer token and session id to an identity.
// Implemented by the auth service.
type TokenValidator interface {
	ValidateToken(ctx context.Context, tokenString, sessionID, ip, userAgent string) (*model.Identity, error)
}

// RequestGate validates the bearer token and its bound session on every
// request and attaches the resolved identity to the context. Admin routes
// additionally require the X-Session-ID header so the session binding is
// asserted explicitly, not just carried inside the token.
func (m *Middleware) RequestGate(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIP(r)

			var tokenString string
			authHeader := r.Header.Get("Authorization")
			if authHeader != "" {
				parts := strings.SplitN(authHeader, " ", 2)
				if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
					tokenString = parts[1]
				}
			}
			if tokenString == "" {
				m.reject(w, http.StatusUnauthorized, "Authentication required")
				return
			}

			sessionID := r.Header.Get("X-Session-ID")
			if sessionID == "" && strings.HasPrefix(r.URL.Path, adminRoutePrefix) {
				m.reject(w, http.StatusUnauthorized, "Session ID required for administrative access")
				return
			}

			identity, err := validator.ValidateToken(r.Context(), tokenString, sessionID, ip, r.UserAgent())
			if err != nil {
				m.log.Debug().Err(err).Str("path", r.URL.Path).Msg("request gate rejected token")
				m.reject(w, http.StatusUnauthorized, gateMessage(err))
				return
			}

			if !rbac.HasRouteAccess(identity.Role, r.URL.Path) {
				m.sink.Record(r.Context(), model.AuditAccessDenied, identity.AccountID, ip, r.UserAgent(), map[string]interface{}{
					"path":   r.URL.Path,
					"method": r.Method,
					"role":   string(identity.Role),
				})
				m.reject(w, http.StatusForbidden, "Access denied")
				return
			}

			if strings.HasPrefix(r.URL.Path, adminRoutePrefix) {
				m.sink.Record(r.Context(), model.AuditAdminRouteAccess, identity.AccountID, ip, r.UserAgent(), map[string]interface{}{
					"path":   r.URL.Path,
					"method": r.Method,
					"role":   string(identity.Role),
				})
			}

			ctx := context.WithValue(r.Context(), IdentityKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RouteGuard requires the caller to hold one of the listed roles OR one of
// the listed permission strings. The two grants are alternatives: a role
// outside the list still passes when the account carries a matching
// explicit permission.
func (m *Middleware) RouteGuard(roles []model.Role, permissions ...string) func(http.Handler) http.Handler {
	roleSet := make(map[model.Role]bool, len(roles))
	for _, role := range roles {
		roleSet[role] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := IdentityFrom(r.Context())
			if !ok {
				m.reject(w, http.StatusUnauthorized, "Authentication required")
				return
			}

			if !guardAllows(identity, roleSet, permissions) {
				m.sink.Record(r.Context(), model.AuditAccessDenied, identity.AccountID, ClientIP(r), r.UserAgent(), map[string]interface{}{
					"path":           r.URL.Path,
					"method":         r.Method,
					"role":           string(identity.Role),
					"required_roles": roles,
					"required_perms": permissions,
				})
				m.reject(w, http.StatusForbidden, "Access denied")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func guardAllows(identity *model.Identity, roleSet map[model.Role]bool, permissions []string) bool {
	if roleSet[identity.Role] {
		return true
	}
	for _, perm := range permissions {
		if identity.HasPermission(perm) || rbac.HasActionPermission(identity.Role, perm) {
			return true
		}
	}
	return false
}

func gateMessage(err error) string {
	switch {
	case errors.Is(err, session.ErrSessionExpired):
		return "Session has expired"
	case errors.Is(err, session.ErrSessionIPMismatch):
		return "Session invalidated"
	case errors.Is(err, service.ErrPasswordChanged):
		return "Password changed, please log in again"
	case errors.Is(err, service.ErrAccountInactive):
		return "Account is not active"
	default:
		return "Invalid or expired token"
	}
}
