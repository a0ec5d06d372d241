package router

import (
	"net/http"

	"github.com/tradegate/tradegate/internal/config"
	"github.com/tradegate/tradegate/internal/handler"
	"github.com/tradegate/tradegate/internal/middleware"
	"github.com/tradegate/tradegate/internal/model"
	"github.com/tradegate/tradegate/internal/rbac"
	"github.com/tradegate/tradegate/internal/realtime"
	"github.com/tradegate/tradegate/internal/service"
)

var adminRoles = []model.Role{
	model.RoleSecurityAdmin,
	model.RoleOperationsAdmin,
	model.RoleFinanceAdmin,
	model.RoleSuperAdmin,
}

var securityRoles = []model.Role{
	model.RoleSecurityAdmin,
	model.RoleSuperAdmin,
}

// New creates and configures the HTTP router
func New(h *handler.Handler, mw *middleware.Middleware, gw *realtime.Gateway, authSvc *service.AuthService, cfg *config.Config) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoints (no auth required)
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ready", h.Ready)

	mux.HandleFunc("GET /api/v1/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"message":"TradeGate API v1","version":"0.1.0"}`))
	})

	// Public authentication routes. Successful logins refund their own
	// rate limit increment, so only failures count toward the window.
	loginRateLimit := mw.RateLimit(middleware.RateLimitConfig{
		Name:            "login",
		Limit:           cfg.Security.RateLimiting.LoginLimit,
		Window:          cfg.Security.RateLimiting.LoginWindow,
		KeyFn:           middleware.IPKey,
		RefundOnSuccess: true,
	})
	mux.Handle("POST /api/v1/auth/login", loginRateLimit(http.HandlerFunc(h.Login)))
	mux.Handle("POST /api/v1/auth/2fa/verify", loginRateLimit(http.HandlerFunc(h.Verify2FA)))

	// Admin operators sign in through a dedicated route with a tighter
	// window.
	adminLoginRateLimit := mw.RateLimit(middleware.RateLimitConfig{
		Name:            "admin_login",
		Limit:           cfg.Security.RateLimiting.AdminLoginLimit,
		Window:          cfg.Security.RateLimiting.LoginWindow,
		KeyFn:           middleware.IPKey,
		RefundOnSuccess: true,
	})
	mux.Handle("POST /api/v1/auth/admin/login", adminLoginRateLimit(http.HandlerFunc(h.AdminLogin)))

	// Realtime gateway; connections authenticate in-band after upgrade.
	mux.HandleFunc("GET /ws", gw.HandleWS)

	// Protected routes
	gate := mw.RequestGate(authSvc)

	mux.Handle("POST /api/v1/auth/logout", gate(http.HandlerFunc(h.Logout)))
	mux.Handle("GET /api/v1/account/me", gate(http.HandlerFunc(h.Me)))
	mux.Handle("GET /api/v1/account/permissions", gate(http.HandlerFunc(h.Permissions)))
	mux.Handle("POST /api/v1/account/2fa/setup", gate(http.HandlerFunc(h.Setup2FA)))
	mux.Handle("POST /api/v1/account/2fa/enable", gate(http.HandlerFunc(h.Enable2FA)))
	mux.Handle("POST /api/v1/account/2fa/disable", gate(http.HandlerFunc(h.Disable2FA)))

	// Admin routes. Guards OR the role list with an explicit permission:
	// an account outside the listed roles still passes when it carries the
	// named permission string.
	adminRateLimit := mw.RateLimit(middleware.RateLimitConfig{
		Name:   "admin",
		Limit:  cfg.Security.RateLimiting.AdminLoginLimit,
		Window: cfg.Security.RateLimiting.LoginWindow,
		KeyFn:  middleware.IPKey,
	})

	securityGuard := mw.RouteGuard(securityRoles, rbac.PermManageSecurity)
	adminGuard := mw.RouteGuard(adminRoles, rbac.PermManagePlatform)

	mux.Handle("GET /api/v1/admin/security/suspicious-ips",
		gate(securityGuard(http.HandlerFunc(h.ListSuspiciousIPs))))
	mux.Handle("POST /api/v1/admin/security/unblock-ip",
		gate(securityGuard(adminRateLimit(http.HandlerFunc(h.UnblockIP)))))
	mux.Handle("GET /api/v1/admin/accounts/sessions",
		gate(securityGuard(http.HandlerFunc(h.AccountSessions))))
	mux.Handle("POST /api/v1/admin/accounts/revoke-session",
		gate(securityGuard(adminRateLimit(http.HandlerFunc(h.RevokeSession)))))
	mux.Handle("GET /api/v1/admin/audit",
		gate(securityGuard(http.HandlerFunc(h.AuditLogs))))
	mux.Handle("GET /api/v1/admin/realtime/stats",
		gate(adminGuard(http.HandlerFunc(h.RealtimeStats))))

	// Apply middleware stack
	var root http.Handler = mux
	root = mw.CORS(root)
	root = mw.SecurityHeaders(root)
	root = mw.Logger(root)
	root = mw.RequestID(root)
	root = mw.Recover(root)

	return root
}
