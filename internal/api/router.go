package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/shubhsaxena/property-search/internal/config"
)

func NewRouter(handler *Handler, health *HealthHandler, cfg config.ServerConfig, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware (applied to all routes)
	r.Use(RecoveryMiddleware(logger))
	r.Use(CORSMiddleware)
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))

	// Health and metrics endpoints are registered BEFORE the rate limiter
	// so Kubernetes probes and Prometheus scrapes are never rejected under load.
	r.Get("/healthz", health.Liveness)
	r.Get("/readyz", health.Readiness)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		rl := NewRateLimiter(cfg.MaxConcurrent, logger)
		r.Use(rl.Middleware)

		r.Route("/api/v1", func(r chi.Router) {
			r.Use(AuthMiddleware(cfg.APITokens, logger))
			r.Use(CallerMiddleware)

			r.Get("/properties", handler.SearchProperties)
			r.Get("/leases", handler.SearchLeases)
			r.Post("/search", handler.UnifiedSearch)
			r.Get("/search/stats", handler.SearchStats)
			r.Get("/files/signed-url", handler.SignedURL)
			r.Get("/audit-trail", handler.AuditTrail)
			r.Post("/admin/reindex", handler.Reindex)
		})
	})

	return r
}
