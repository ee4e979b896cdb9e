// Command rfbgatewayd runs the RFB gateway: an HTTP/WebSocket service that
// dials remote VNC servers on behalf of authenticated operators and fans out
// the framebuffer to any number of browser viewers per session.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rjsadow/rfbgo/internal/auth"
	"github.com/rjsadow/rfbgo/internal/config"
	"github.com/rjsadow/rfbgo/internal/db"
	"github.com/rjsadow/rfbgo/internal/middleware"
	"github.com/rjsadow/rfbgo/internal/secrets"
	"github.com/rjsadow/rfbgo/internal/sessionstore"
	"github.com/rjsadow/rfbgo/internal/wsgateway"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg := config.MustLoad()

	database, err := db.Open(cfg.DB)
	if err != nil {
		slog.Error("failed to open database", "error", err, "path", cfg.DB)
		os.Exit(1)
	}
	defer database.Close()

	jwtSecret, err := resolveJWTSecret(cfg)
	if err != nil {
		slog.Error("failed to resolve JWT secret", "error", err)
		os.Exit(1)
	}

	authProvider, err := auth.NewProvider(database, auth.Config{
		Secret:        jwtSecret,
		AccessExpiry:  cfg.JWTAccessExpiry,
		RefreshExpiry: cfg.JWTRefreshExpiry,
	})
	if err != nil {
		slog.Error("failed to build auth provider", "error", err)
		os.Exit(1)
	}

	if err := bootstrapAdmin(database, cfg); err != nil {
		slog.Error("failed to bootstrap admin account", "error", err)
		os.Exit(1)
	}

	registry := sessionstore.NewRegistry(database)
	wsHandler := wsgateway.NewHandler(registry, wsgateway.Config{
		ConnectTimeout:    cfg.ConnectTimeout,
		DisconnectTimeout: cfg.DisconnectTimeout,
		CompressionLevel:  cfg.CompressionLevel,
		QualityLevel:      cfg.QualityLevel,
	})
	authHandlers := &authHandlers{provider: authProvider, allowRegistration: cfg.AllowRegistration, database: database}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", healthHandler(database))
	mux.HandleFunc("/api/auth/login", authHandlers.login)
	mux.HandleFunc("/api/auth/refresh", authHandlers.refresh)
	mux.HandleFunc("/api/auth/register", authHandlers.register)
	mux.Handle("/api/sessions", middleware.AuthMiddleware(authProvider)(http.HandlerFunc(wsHandler.CreateSession)))
	mux.Handle("/ws/rfb/", middleware.AuthMiddleware(authProvider)(http.HandlerFunc(wsHandler.ViewSession)))

	handler := middleware.RequestID(middleware.SecurityHeaders(mux))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go runIdleSessionReaper(registry, cfg.SessionIdleTimeout, cfg.SessionCleanupInterval)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("gateway listening", "port", cfg.Port, "tls", cfg.TLSCertFile != "")
		var err error
		if cfg.TLSCertFile != "" {
			err = srv.ListenAndServeTLS(cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server exited", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	registry.CloseAll()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", "error", err)
	}
}

// resolveJWTSecret prefers a configured secrets.Provider (Vault) over the
// value baked into config, so the signing key never has to live in the
// environment the gateway process itself reads config from.
func resolveJWTSecret(cfg *config.Config) (string, error) {
	secretsCfg := secrets.LoadConfig()
	mgr, err := secrets.NewManager(secretsCfg)
	if err != nil {
		return "", fmt.Errorf("secrets manager: %w", err)
	}
	defer mgr.Close()

	if v := mgr.GetOrDefault(context.Background(), "jwt_secret", ""); v != "" {
		return v, nil
	}
	if cfg.JWTSecret == "" {
		return "", errors.New("no JWT secret configured (set RFBGO_JWT_SECRET or RFBGO_SECRET_JWT_SECRET)")
	}
	return cfg.JWTSecret, nil
}

// bootstrapAdmin creates the configured admin account if it doesn't exist
// yet and an admin password was supplied.
func bootstrapAdmin(database *db.DB, cfg *config.Config) error {
	if cfg.AdminPassword == "" {
		return nil
	}
	existing, err := database.GetUserByUsername(cfg.AdminUsername)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	hash, err := auth.HashPassword(cfg.AdminPassword)
	if err != nil {
		return err
	}
	return database.CreateUser(&db.User{
		ID:           cfg.AdminUsername,
		Username:     cfg.AdminUsername,
		PasswordHash: hash,
		Roles:        db.StringSlice{"admin"},
	})
}

func healthHandler(database *db.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := database.Ping(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, "database unreachable: %v", err)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	}
}

// runIdleSessionReaper periodically closes sessions that have had no viewer
// activity, mirroring the teacher's cleanup-interval config knob (originally
// for pod garbage collection; here it just bounds how long an abandoned RFB
// connection stays open).
func runIdleSessionReaper(registry *sessionstore.Registry, idleTimeout, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		registry.CloseIdle(idleTimeout)
	}
}
