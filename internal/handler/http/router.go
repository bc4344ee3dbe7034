package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nguthrie/ucp-agent/internal/service"
	"github.com/nguthrie/ucp-agent/pkg/health"
	"github.com/nguthrie/ucp-agent/pkg/middleware"
)

// NewRouter creates a chi router with all UCP agent routes registered.
func NewRouter(
	orchestrator *service.Orchestrator,
	healthHandler *health.Handler,
	corsCfg middleware.CORSConfig,
	logger *slog.Logger,
	pprofAllowedCIDRs []string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CORS(corsCfg))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics("ucp-agent"))
	r.Use(middleware.Tracing("ucp-agent"))
	r.Use(middleware.RequestLogger(logger))

	// Health check and metrics endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Pprof debug endpoints, gated by an IP allowlist.
	middleware.RegisterPprof(r, pprofAllowedCIDRs, logger)

	// UCP tool adapter endpoints
	ucpHandler := NewUCPHandler(orchestrator, logger)

	r.Route("/api/v1/ucp", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Post("/discover", ucpHandler.Discover)
		r.Post("/checkouts", ucpHandler.CreateCheckout)
		r.Post("/checkouts/{id}/discounts", ucpHandler.ApplyDiscounts)
		r.Post("/checkouts/{id}/fulfillment", ucpHandler.SetFulfillment)
		r.Post("/checkouts/{id}/complete", ucpHandler.CompleteCheckout)
	})

	return r
}
