package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/parleyai/parley-platform/internal/http/handlers"
	httpmiddleware "github.com/parleyai/parley-platform/internal/http/middleware"
	"github.com/parleyai/parley-platform/internal/webchat"
	"github.com/parleyai/parley-platform/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger       *logging.Logger
	ChatHandler  *handlers.ChatHandler
	AdminHandler *handlers.AdminHandler
	WebChat      *webchat.Handler

	// OrgResolver authenticates tenant API keys. Required for /api routes.
	OrgResolver httpmiddleware.OrgResolver

	// AdminAuthSecret enables the HMAC-JWT protected /admin routes.
	AdminAuthSecret string

	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// RateLimitPerSecond > 0 enables per-IP rate limiting on tenant routes.
	RateLimitPerSecond float64
	RateLimitBurst     int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints (health, metrics, chat widget)
	r.Group(func(public chi.Router) {
		public.Get("/health", healthCheck)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.WebChat != nil {
			public.Get("/widget.js", cfg.WebChat.HandleWidgetJS)
			public.Route("/webchat", func(r chi.Router) {
				r.Get("/ws", cfg.WebChat.HandleWebSocket)
				r.Post("/message", cfg.WebChat.HandleMessage)
				r.Get("/history", cfg.WebChat.HandleHistory)
			})
		}
	})

	// Tenant-scoped API routes (API key auth)
	if cfg.ChatHandler != nil {
		r.Route("/api", func(tenant chi.Router) {
			tenant.Use(httpmiddleware.APIKey(cfg.OrgResolver))
			if cfg.RateLimitPerSecond > 0 {
				tenant.Use(httpmiddleware.RateLimit(cfg.RateLimitPerSecond, cfg.RateLimitBurst))
			}

			tenant.Route("/bots/{botID}", func(r chi.Router) {
				r.Post("/chat", cfg.ChatHandler.ProcessMessage)
				r.Route("/sessions/{sessionID}", func(r chi.Router) {
					r.Get("/history", cfg.ChatHandler.GetHistory)
					r.Post("/end", cfg.ChatHandler.EndConversation)
					r.Post("/escalate", cfg.ChatHandler.EscalateConversation)
				})
				r.Post("/messages/{messageID}/rating", cfg.ChatHandler.RateMessage)
			})
		})
	}

	// Admin routes (protected by HMAC JWT)
	if cfg.AdminHandler != nil && cfg.AdminAuthSecret != "" {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			admin.Get("/bots/{botID}", cfg.AdminHandler.GetBot)
			admin.Post("/bots/{botID}/train", cfg.AdminHandler.TrainBot)
			admin.Get("/training/jobs/{jobID}", cfg.AdminHandler.GetTrainingJob)
			admin.Get("/stats", cfg.AdminHandler.GetStats)
		})
	}

	return r
}

func healthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
