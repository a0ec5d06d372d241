package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/tradegate/tradegate/internal/config"
	"github.com/tradegate/tradegate/internal/database"
	"github.com/tradegate/tradegate/internal/logger"
	"github.com/tradegate/tradegate/internal/realtime"
	"github.com/tradegate/tradegate/internal/repository"
	"github.com/tradegate/tradegate/internal/service"
	"github.com/tradegate/tradegate/internal/session"
)

// Handler holds all HTTP handlers
type Handler struct {
	db       *database.Postgres
	rdb      *database.Redis
	log      *logger.Logger
	cfg      *config.Config
	authSvc  *service.AuthService
	accounts service.AccountStore
	sessions *session.Manager
	auditLog *repository.AuditRepository
	gateway  *realtime.Gateway
}

// New creates a new Handler instance
func New(db *database.Postgres, rdb *database.Redis, log *logger.Logger, cfg *config.Config, authSvc *service.AuthService, accounts service.AccountStore, sessions *session.Manager, auditLog *repository.AuditRepository, gateway *realtime.Gateway) *Handler {
	return &Handler{
		db:       db,
		rdb:      rdb,
		log:      log,
		cfg:      cfg,
		authSvc:  authSvc,
		accounts: accounts,
		sessions: sessions,
		auditLog: auditLog,
		gateway:  gateway,
	}
}

// JSON helper functions

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeSuccess wraps the payload in the uniform success envelope.
func writeSuccess(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, map[string]interface{}{
		"success": true,
		"data":    data,
	})
}

// writeError writes the uniform failure envelope used by every rejection.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{
		"success": false,
		"message": message,
	})
}

func readJSON(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return errors.New("request body is empty")
	}
	defer r.Body.Close()

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

// getClientIP extracts the client IP address from the request
func getClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx >= 0 {
		host = host[:idx]
	}
	return host
}
