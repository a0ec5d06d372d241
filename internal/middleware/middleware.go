package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"github.com/tradegate/tradegate/internal/audit"
	"github.com/tradegate/tradegate/internal/config"
	"github.com/tradegate/tradegate/internal/database"
	"github.com/tradegate/tradegate/internal/logger"
)

// Middleware holds all HTTP middleware
type Middleware struct {
	rdb  *database.Redis
	log  *logger.Logger
	cfg  *config.Config
	sink audit.Recorder
}

// New creates a new Middleware instance
func New(rdb *database.Redis, log *logger.Logger, cfg *config.Config, sink audit.Recorder) *Middleware {
	return &Middleware{
		rdb:  rdb,
		log:  log,
		cfg:  cfg,
		sink: sink,
	}
}

// reject writes the uniform rejection body used by every gate decision.
func (m *Middleware) reject(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"message": message,
	})
}

// ClientIP extracts the client address, preferring the first entry of
// X-Forwarded-For when present.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
