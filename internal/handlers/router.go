package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/focusguard/backend/internal/middleware"
	"github.com/focusguard/backend/internal/realtime"
	"github.com/focusguard/backend/internal/services"
)

// Pinger is checked by /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

type RouterConfig struct {
	Auth           func(http.Handler) http.Handler
	RateLimiter    *middleware.RateLimiter
	AllowedOrigins []string
	// AccessLog receives one line per request. Defaults to stdout.
	AccessLog io.Writer

	Rules    *services.RuleService
	Sessions *services.SessionService
	Usage    *services.UsageService
	State    *services.BlockStateService
	Hub      *realtime.Hub
	Store    Pinger
}

func NewRouter(cfg RouterConfig) http.Handler {
	rules := NewRuleHandler(cfg.Rules)
	sessions := NewSessionHandler(cfg.Sessions)
	usage := NewUsageHandler(cfg.Usage)
	state := NewStateHandler(cfg.State, cfg.Hub)

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	accessLog := cfg.AccessLog
	if accessLog == nil {
		accessLog = os.Stdout
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(newAccessLogger(accessLog))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "If-None-Match"},
		ExposedHeaders:   []string{"ETag", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", healthHandler(cfg.Store))

	r.Route("/api", func(r chi.Router) {
		r.Use(cfg.Auth)
		if cfg.RateLimiter != nil {
			r.Use(middleware.RateLimit(cfg.RateLimiter))
		}

		r.Route("/sites", func(r chi.Router) {
			r.Get("/", rules.ListSites)
			r.Post("/", rules.AddSite)
			r.Delete("/{siteId}", rules.DeleteSite)
		})

		r.Route("/limits", func(r chi.Router) {
			r.Get("/", rules.ListLimits)
			r.Put("/", rules.UpsertLimit)
			r.Delete("/{limitId}", rules.DeleteLimit)
		})

		r.Route("/schedules", func(r chi.Router) {
			r.Get("/", rules.ListSchedules)
			r.Post("/", rules.CreateSchedule)
			r.Put("/{scheduleId}", rules.UpdateSchedule)
			r.Delete("/{scheduleId}", rules.DeleteSchedule)
		})

		r.Get("/block-page", rules.GetBlockPage)
		r.Put("/block-page", rules.PutBlockPage)

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", sessions.List)
			r.Post("/", sessions.Start)
			r.Get("/active", sessions.Active)
			r.Post("/{sessionId}/end", sessions.End)
		})

		r.Post("/usage", usage.Report)
		r.Get("/usage", usage.Summary)

		r.Get("/check", state.Check)
		r.Get("/state", state.State)
		r.Get("/ws", state.WebSocket)
	})

	return r
}

func healthHandler(store Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "ok"
		dbStatus := "not configured"

		if store != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := store.Ping(ctx); err != nil {
				slog.Warn("Health check: storage unreachable", "error", err)
				dbStatus = "down"
				status = "degraded"
			} else {
				dbStatus = "up"
			}
		}

		code := http.StatusOK
		if status != "ok" {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, map[string]string{"status": status, "database": dbStatus})
	}
}
