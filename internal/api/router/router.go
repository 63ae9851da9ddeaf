package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/klinikos/clinic-ai-platform/internal/channels/whatsapp"
	httpmiddleware "github.com/klinikos/clinic-ai-platform/internal/http/middleware"
	"github.com/klinikos/clinic-ai-platform/internal/simulator"
	"github.com/klinikos/clinic-ai-platform/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger             *logging.Logger
	WebhookHandler     *whatsapp.WebhookHandler
	SimulatorHandler   *simulator.Handler
	MetricsHandler     http.Handler
	TenantJWTSecret    string
	CORSAllowedOrigins []string
}

// New creates a Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

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

	// Public endpoints: gateway webhook, health, metrics. The gateway
	// authenticates out of band; webhook deliveries carry no tenant JWT.
	r.Group(func(public chi.Router) {
		public.Get("/health", handleHealth)
		if cfg.WebhookHandler != nil {
			public.Post("/webhooks/whatsapp", cfg.WebhookHandler.HandleWebhook)
		}
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	// Dashboard endpoints run behind tenant auth.
	if cfg.SimulatorHandler != nil {
		r.Group(func(protected chi.Router) {
			protected.Use(httpmiddleware.TenantJWT(cfg.TenantJWTSecret))
			protected.Route("/simulator", func(r chi.Router) {
				r.Post("/message", cfg.SimulatorHandler.HandleMessage)
				r.Delete("/session", cfg.SimulatorHandler.HandleClear)
			})
		})
	}

	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
