package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/focusguard/backend/internal/config"
	"github.com/focusguard/backend/internal/handlers"
	appMiddleware "github.com/focusguard/backend/internal/middleware"
	"github.com/focusguard/backend/internal/realtime"
	"github.com/focusguard/backend/internal/services"
	"github.com/focusguard/backend/internal/storage"
)

func main() {
	configFile := flag.String("config", os.Getenv("FOCUSGUARD_CONFIG"), "optional config file (yaml, json or toml)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	setupLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, err := openRepository(ctx, cfg.Storage)
	if err != nil {
		slog.Error("Failed to open storage", "driver", cfg.Storage.Driver, "error", err)
		os.Exit(1)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := repo.Close(closeCtx); err != nil {
			slog.Error("Failed to close storage", "error", err)
		}
	}()

	auth, err := authMiddleware(ctx, cfg.Auth)
	if err != nil {
		slog.Error("Failed to initialize authentication", "provider", cfg.Auth.Provider, "error", err)
		os.Exit(1)
	}

	// The hub needs the state service to build snapshots and the state
	// service's siblings need the hub to publish.
	var hub *realtime.Hub
	notifier := notifierFunc(func(userID string) { hub.Publish(userID) })

	rules := services.NewRuleService(repo, notifier)
	state := services.NewBlockStateService(repo, rules, cfg.App.Timezone)
	sessions := services.NewSessionService(repo, notifier)
	usage := services.NewUsageService(repo, state, notifier, cfg.App.MaxReportSeconds)
	hub = realtime.NewHub(state, cfg.WebSocket.AllowedOrigins)

	limiter := appMiddleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)

	go hub.Run(ctx)
	go services.NewExpiryWorker(sessions, cfg.App.ExpiryInterval).Run(ctx)
	go limiter.Cleanup(ctx, time.Minute)

	router := handlers.NewRouter(handlers.RouterConfig{
		Auth:           auth,
		RateLimiter:    limiter,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Rules:          rules,
		Sessions:       sessions,
		Usage:          usage,
		State:          state,
		Hub:            hub,
		Store:          repo,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("FocusGuard API server starting",
			"address", cfg.Server.Address,
			"storage", cfg.Storage.Driver,
			"auth", cfg.Auth.Provider,
			"timezone", cfg.App.Timezone.String())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Graceful shutdown failed", "error", err)
	}

	select {
	case <-hub.Done():
	case <-shutdownCtx.Done():
		slog.Warn("Realtime hub did not stop in time")
	}
}

type notifierFunc func(userID string)

func (f notifierFunc) Publish(userID string) { f(userID) }

func setupLogger(cfg config.LogConfig) {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	var h slog.Handler
	if cfg.Format == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(h))
}

func openRepository(ctx context.Context, cfg config.StorageConfig) (storage.Repository, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	switch cfg.Driver {
	case "file":
		return storage.NewFileRepository(cfg.DataDir)
	case "mongo":
		return storage.NewMongoRepository(connectCtx, cfg.MongoURI, cfg.MongoDatabase)
	case "postgres":
		return storage.NewPostgresRepository(connectCtx, cfg.DatabaseURL)
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
}

func authMiddleware(ctx context.Context, cfg config.AuthConfig) (func(http.Handler) http.Handler, error) {
	switch cfg.Provider {
	case "jwt":
		return appMiddleware.JWTAuth(cfg.JWTSecret), nil
	case "firebase":
		client, err := appMiddleware.NewFirebaseAuthClient(ctx, appMiddleware.FirebaseAuthConfig{
			ProjectID:       cfg.FirebaseProjectID,
			CredentialsJSON: cfg.FirebaseCredentialsJSON,
		})
		if err != nil {
			return nil, err
		}
		return appMiddleware.FirebaseAuth(client), nil
	}
	return nil, fmt.Errorf("unknown auth provider %q", cfg.Provider)
}
