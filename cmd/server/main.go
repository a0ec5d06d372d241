package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tradegate/tradegate/internal/audit"
	"github.com/tradegate/tradegate/internal/auth"
	"github.com/tradegate/tradegate/internal/config"
	"github.com/tradegate/tradegate/internal/database"
	"github.com/tradegate/tradegate/internal/handler"
	"github.com/tradegate/tradegate/internal/logger"
	"github.com/tradegate/tradegate/internal/middleware"
	"github.com/tradegate/tradegate/internal/realtime"
	"github.com/tradegate/tradegate/internal/repository"
	"github.com/tradegate/tradegate/internal/router"
	"github.com/tradegate/tradegate/internal/service"
	"github.com/tradegate/tradegate/internal/session"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	log.Info().Str("version", "0.1.0").Msg("starting TradeGate server")

	// Connect to PostgreSQL
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("connected to PostgreSQL")

	// Connect to Redis
	rdb, err := database.NewRedis(cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	defer rdb.Close()
	log.Info().Msg("connected to Redis")

	// Initialize repositories
	accountRepo := repository.NewAccountRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	// Audit sink: every security event flows through here
	sink := audit.NewSink(auditRepo, log)

	// Session manager owns the in-memory session table and the
	// suspicious-IP blocklist
	sessions := session.NewManager(cfg.Security.Sessions, cfg.Security.Abuse, accountRepo, sink, log)

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	sessions.StartSweeper(sweepCtx)
	defer sessions.Stop()

	// Initialize token service
	tokenSvc, err := auth.NewTokenService(cfg.Security.Tokens)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize token service")
	}
	if cfg.Security.Tokens.SigningKeySeed == "" {
		log.Warn().Msg("no signing key seed configured, tokens will not survive restarts")
	}

	// Initialize services
	authSvc := service.NewAuthService(accountRepo, sessions, tokenSvc, sink, cfg, log)

	// Realtime gateway; the session manager pushes security alerts to it
	gateway := realtime.NewGateway(cfg.Realtime, authSvc, sink, log)
	sessions.SetNotifier(gateway)
	defer gateway.Close()

	// Initialize handlers and middleware
	h := handler.New(db, rdb, log, cfg, authSvc, accountRepo, sessions, auditRepo, gateway)
	mw := middleware.New(rdb, log, cfg, sink)

	// Set up router
	r := router.New(h, mw, gateway, authSvc, cfg)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		var serveErr error
		if cfg.Server.TLS.Enabled {
			serveErr = srv.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
		} else {
			serveErr = srv.ListenAndServe()
		}
		if serveErr != nil && serveErr != http.ErrServerClosed {
			log.Fatal().Err(serveErr).Msg("HTTP server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
