package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hugh/gcp-inventory/internal/api/handlers"
	"github.com/hugh/gcp-inventory/internal/api/middleware"
	"github.com/hugh/gcp-inventory/internal/metrics"
	"github.com/hugh/gcp-inventory/internal/progress"
	"github.com/hugh/gcp-inventory/internal/tasks"
	"github.com/hugh/gcp-inventory/pkg/queue"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Router struct {
	chi.Router
}

type RouterConfig struct {
	DB             *gorm.DB
	Redis          *redis.Client
	Logger         *slog.Logger
	Store          progress.Store
	Scans          handlers.ScanController
	Enqueuer       tasks.Enqueuer
	Inspector      handlers.QueueInspector
	AllowedOrigins []string // CORS allowed origins
	RateLimitReqs  int      // Rate limit requests per window
	RateLimitSecs  int      // Rate limit window in seconds
}

func NewRouter(cfg RouterConfig) *Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logging(cfg.Logger))

	allowedOrigins := cfg.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:3000", "http://localhost:8080"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		ExposedHeaders: []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		MaxAge:         300,
	}))

	healthHandler := handlers.NewHealthHandler(cfg.DB, cfg.Redis, cfg.Inspector,
		queue.QueueCritical, queue.QueueDefault, queue.QueueLow)
	orgHandler := handlers.NewOrganizationHandler(cfg.DB, cfg.Scans, cfg.Enqueuer, cfg.Logger)
	scanHandler := handlers.NewScanHandler(cfg.DB, cfg.Store, cfg.Logger)

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.RateLimitReqs > 0 {
			r.Use(middleware.RateLimit(cfg.RateLimitReqs, cfg.RateLimitSecs))
		}

		r.Route("/organizations", func(r chi.Router) {
			r.Get("/", orgHandler.List)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", orgHandler.Get)
				r.Get("/scans", scanHandler.List)
				r.Post("/scans", orgHandler.StartScan)
				r.Post("/cancel", orgHandler.Cancel)
				r.Post("/reset", orgHandler.Reset)
			})
		})

		r.Get("/scans/{id}", scanHandler.Get)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "Not found", http.StatusNotFound)
	})

	return &Router{r}
}
