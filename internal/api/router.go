// Package api provides the HTTP API for envwatch.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/breatheroute/envwatch/internal/api/handler"
	"github.com/breatheroute/envwatch/internal/api/middleware"
	"github.com/breatheroute/envwatch/internal/heatmap"
	"github.com/breatheroute/envwatch/internal/provider/resilience"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string

	Orchestrator handler.Orchestrator
	Registry     *resilience.Registry
	Heatmap      *heatmap.Generator

	// Metrics records HTTP traffic. Nil disables HTTP metrics.
	Metrics *middleware.HTTPMetrics

	// Gatherer backs GET /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer

	RequireTLS bool
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "envwatch-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing(serviceName))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware())
	}
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.RequireTLS(cfg.RequireTLS))

	opsHandler := handler.NewOpsHandler(handler.OpsConfig{
		Version:   cfg.Version,
		BuildTime: cfg.BuildTime,
		State:     cfg.Orchestrator,
		Registry:  cfg.Registry,
	})
	conditionsHandler := handler.NewConditionsHandler(cfg.Orchestrator, cfg.Heatmap, cfg.Logger)

	standardRateLimit := middleware.RateLimitByIP(middleware.StandardRateLimit)
	commandRateLimit := middleware.RateLimitByIP(middleware.CommandRateLimit)

	if cfg.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)

		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.Get("/status", opsHandler.SystemStatus)
		})

		r.Group(func(r chi.Router) {
			r.Use(standardRateLimit)
			r.Get("/conditions", conditionsHandler.GetConditions)
			r.Get("/conditions/heatmap", conditionsHandler.GetHeatmap)
			r.Get("/presets", conditionsHandler.ListPresets)
		})

		// Commands start refresh cycles
		r.Group(func(r chi.Router) {
			r.Use(commandRateLimit)
			r.Use(middleware.RequireJSON)
			r.Post("/refresh", conditionsHandler.Refresh)
			r.Put("/location", conditionsHandler.SetLocation)
			r.Put("/location/preset", conditionsHandler.SelectPreset)
			r.Post("/location/device", conditionsHandler.LocateDevice)
			r.Put("/auto-refresh", conditionsHandler.SetAutoRefresh)
		})
	})

	return r
}
