package routes

import (
	"net/http"
	"strings"

	"github.com/JalalSordo/para/app"
	"github.com/JalalSordo/para/cache"
	"github.com/JalalSordo/para/handlers"
	"github.com/JalalSordo/para/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	cfg := deps.Config
	r := chi.NewRouter()

	// Core middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	if cfg.Server.RequestTimeout > 0 {
		r.Use(chimw.Timeout(cfg.Server.RequestTimeout))
	}
	if cfg.Observability.MetricsEnabled {
		r.Use(deps.Metrics.Middleware)
	}

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", middleware.AdminKeyHeader},
		ExposedHeaders:   []string{"WWW-Authenticate", "Retry-After", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Issuance is rate limited per client; refresh and revoke are not
	managementPath := strings.TrimSuffix(cfg.Auth.ManagementPath, "/")
	r.Use(deps.RateLimiter.Handler(func(req *http.Request) bool {
		return req.Method == http.MethodPost && strings.TrimSuffix(req.URL.Path, "/") == managementPath
	}))

	// Token management and passive authentication
	r.Use(deps.AuthFilter.Handler)

	// Health check endpoints
	health := handlers.NewHealthHandler(deps.Logger)
	if deps.DB != nil {
		health.AddCheck("database", deps.DB.HealthCheck)
	}
	if p, ok := deps.Cache.(cache.Pinger); ok {
		health.AddCheck("cache", p.Ping)
	}
	r.Get("/healthz", health.HandleHealth)
	r.Get("/readyz", health.HandleReadiness)

	if cfg.Observability.MetricsEnabled {
		r.Handle("/metrics", deps.Metrics.Handler())
	}

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.With(middleware.RequireAuthenticated).Get("/me", handlers.NewMeHandler(deps.Logger).HandleMe)

		// Tenant administration
		r.Route("/apps", func(r chi.Router) {
			r.Use(middleware.RequireAdminKey(cfg.Auth.AdminAPIKey, deps.Logger))
			handlers.NewAppsHandler(deps.AppRegistry, deps.Logger).Routes(r)
		})
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"endpoint not found"}`))
	})

	return r
}
