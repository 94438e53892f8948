package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	mw "github.com/visionfy/visionfy/internal/middleware"
)

// HandlerSet holds handler functions injected from main.go to avoid import cycles.
type HandlerSet struct {
	Register http.HandlerFunc
	Login    http.HandlerFunc
	Refresh  http.HandlerFunc
	Logout   http.HandlerFunc

	GenerateImages  http.HandlerFunc
	EditImage       http.HandlerFunc
	ImageVariations http.HandlerFunc
	GetUsage        http.HandlerFunc

	AuthMiddleware func(http.Handler) http.Handler
}

// Probe reports whether one dependency is reachable. A nil Check means the
// dependency is not configured.
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

type RouterConfig struct {
	CORSAllowedOrigins []string
	AuthRateLimiter    func(http.Handler) http.Handler
	Probes             []Probe
}

func NewRouter(cfg RouterConfig, h HandlerSet) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.RequestID)
	r.Use(mw.SecurityHeaders)
	r.Use(mw.Logging)
	r.Use(mw.Recovery)
	r.Use(mw.Metrics)
	r.Use(cors.Handler(mw.CORS(cfg.CORSAllowedOrigins)))

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		JSON(w, http.StatusOK, map[string]string{"status": "alive"})
	})
	ready := readinessHandler(cfg.Probes)
	r.Get("/health/ready", ready)
	r.Get("/health", ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			if cfg.AuthRateLimiter != nil {
				r.Use(cfg.AuthRateLimiter)
			}
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)
			r.Post("/refresh", h.Refresh)

			r.Group(func(r chi.Router) {
				r.Use(h.AuthMiddleware)
				r.Post("/logout", h.Logout)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(h.AuthMiddleware)

			r.Route("/images", func(r chi.Router) {
				r.Post("/generate", h.GenerateImages)
				r.Post("/edit", h.EditImage)
				r.Post("/variations", h.ImageVariations)
			})
			r.Get("/usage", h.GetUsage)
		})
	})

	return r
}

func readinessHandler(probes []Probe) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := map[string]string{"status": "healthy"}
		status := http.StatusOK

		for _, p := range probes {
			switch {
			case p.Check == nil:
				health[p.Name] = "not configured"
			case p.Check(r.Context()) != nil:
				health[p.Name] = "unhealthy"
				health["status"] = "degraded"
				status = http.StatusServiceUnavailable
			default:
				health[p.Name] = "healthy"
			}
		}

		JSON(w, status, health)
	}
}
