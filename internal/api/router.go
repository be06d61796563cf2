// Package api provides the HTTP API for SwellWatch.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/swellwatch/swellwatch/internal/api/handler"
	"github.com/swellwatch/swellwatch/internal/api/middleware"
	"github.com/swellwatch/swellwatch/internal/api/models"
	"github.com/swellwatch/swellwatch/internal/api/response"
	"github.com/swellwatch/swellwatch/internal/provider/resilience"
)

// Service is the buoy service as seen by the router.
type Service interface {
	handler.BuoyService
	handler.CacheInspector
}

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version          string
	BuildTime        string
	Logger           zerolog.Logger
	ServiceName      string
	Metrics          *middleware.Metrics
	Service          Service
	PrimaryStationID string
	Feeds            *resilience.Registry
	// Gatherer backs GET /metrics. Nil leaves the endpoint unmounted.
	Gatherer           prometheus.Gatherer
	CORSAllowedOrigins []string
	RequireTLS         bool
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "swellwatch-api"
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
	r.Use(middleware.CORS(cfg.CORSAllowedOrigins))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.NotFound(w, r, "no route for "+r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, r, models.NewTypedProblem(
			models.ProblemTypeMethodNotAllowed,
			middleware.GetRequestID(r.Context()),
			r.Method+" is not supported on "+r.URL.Path,
		))
	})

	buoyHandler := handler.NewBuoyHandler(cfg.Service, cfg.PrimaryStationID, cfg.Logger)
	opsHandler := handler.NewOpsHandler(handler.OpsHandlerConfig{
		Version:      cfg.Version,
		BuildTime:    cfg.BuildTime,
		Feeds:        cfg.Feeds,
		Cache:        cfg.Service,
		StationCount: len(cfg.Service.Stations()),
	})

	standardRateLimit := middleware.RateLimitByIP(middleware.StandardRateLimit)
	adminRateLimit := middleware.RateLimitByIP(middleware.AdminRateLimit)

	r.Route("/api", func(r chi.Router) {
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.Get("/status", opsHandler.SystemStatus)
		})

		r.Group(func(r chi.Router) {
			r.Use(standardRateLimit)

			r.Get("/stations", buoyHandler.ListStations)

			r.Route("/buoy-status", func(r chi.Router) {
				r.Get("/", buoyHandler.GetPrimary)
				r.Get("/all", buoyHandler.ListAll)
				r.Get("/{stationId}", buoyHandler.GetStation)
				r.Get("/{stationId}/history", buoyHandler.GetHistory)
			})
		})

		r.Route("/cache", func(r chi.Router) {
			r.Use(adminRateLimit)
			r.Get("/clear", buoyHandler.ClearCache)
			r.Post("/clear", buoyHandler.ClearCache)
		})
	})

	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	return r
}
