package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/phygrid/wiserecon/internal/adapter/http/handler"
	"github.com/phygrid/wiserecon/internal/adapter/http/middleware"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	HealthHandler *handler.HealthHandler
	ReconHandler  *handler.ReconHandler
	Logger        zerolog.Logger
}

// NewRouter creates the HTTP router: health, metrics and manual pipeline
// triggers. The reconciliation flow itself runs on the scheduler; these
// endpoints exist for operators.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.NewLoggingMiddleware(cfg.Logger).Wrap)
	r.Use(middleware.Recovery)
	r.Use(middleware.Metrics)

	r.Get("/health", cfg.HealthHandler.Liveness)
	r.Get("/ready", cfg.HealthHandler.Readiness)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/sync/run", cfg.ReconHandler.RunSync)
		r.Post("/recon/run", cfg.ReconHandler.RunReconcile)
		r.Post("/learn/run", cfg.ReconHandler.RunLearn)
	})

	return r
}
