package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"secure.link/config"
	"secure.link/internal/metrics"
	"secure.link/internal/secrets"
	"secure.link/web"
)

// SetupRouter wires the HTTP surface. m may be nil when metrics are disabled.
func SetupRouter(svc *secrets.Service, cfg *config.Config, log *zap.Logger, m *metrics.Metrics) *chi.Mux {
	if log == nil {
		log = zap.NewNop()
	}
	h := NewHandler(svc, cfg, log)

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RealIP)
	r.Use(RequestID)
	r.Use(Logger(log))
	r.Use(Recoverer(log))
	r.Use(middleware.Timeout(30 * time.Second))
	if m != nil {
		r.Use(Metrics(m))
	}

	// CORS
	r.Use(CORS(CORSConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
		MaxAge:         86400,
	}))

	// Health
	r.Get("/health", h.Health)
	if m != nil && cfg.Metrics.Enabled {
		r.Method(http.MethodGet, cfg.Metrics.Path, m.Handler())
	}

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(JSONOnly)

		r.Post("/create", h.CreateSecret)
		r.Get("/status/{id}", h.GetStatus)
		r.Get("/check/{id}", h.CheckSecret)
		r.Post("/view/{id}", h.ViewSecret)
		r.Post("/burn/{id}", h.BurnSecret)
	})

	// Frontend
	r.Get("/", h.Index)
	r.Get("/s/{id}", h.Index)
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(web.StaticFS())))

	return r
}
