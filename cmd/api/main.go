// Package main provides the entrypoint for the SwellWatch API server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/swellwatch/swellwatch/internal/api"
	"github.com/swellwatch/swellwatch/internal/api/middleware"
	"github.com/swellwatch/swellwatch/internal/buoy"
	"github.com/swellwatch/swellwatch/internal/buoy/ndbc"
	"github.com/swellwatch/swellwatch/internal/cache"
	"github.com/swellwatch/swellwatch/internal/config"
	"github.com/swellwatch/swellwatch/internal/observability"
	"github.com/swellwatch/swellwatch/internal/provider/resilience"
	"github.com/swellwatch/swellwatch/internal/station"
	"github.com/swellwatch/swellwatch/internal/telemetry"
	"github.com/swellwatch/swellwatch/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "swellwatch-api"

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	log = log.Level(cfg.LogLevel)

	log.Info().
		Str("build_time", BuildTime).
		Str("env", cfg.Environment).
		Msg("starting SwellWatch API")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.OTelEnabled,
		SampleRatio:    cfg.OTelSampleRatio,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if cfg.OTelEnabled {
		log.Info().
			Str("otlp_endpoint", cfg.OTLPEndpoint).
			Float64("sample_ratio", cfg.OTelSampleRatio).
			Msg("OpenTelemetry initialized")
	}

	httpMetrics, err := middleware.NewMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize HTTP metrics")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetricsWith(promRegistry)

	stations := station.DefaultRegistry()
	if !stations.Contains(cfg.PrimaryStationID) {
		log.Fatal().Str("station_id", cfg.PrimaryStationID).Msg("primary station is not registered")
	}

	feeds := resilience.NewRegistry()
	client := ndbc.NewClient(ndbc.ClientConfig{
		BuoyURLTemplate:        cfg.BuoyURLTemplate,
		CoastalWindURLTemplate: cfg.CoastalWindURLTemplate,
		Timeout:                cfg.FetchTimeout,
		MaxRetries:             cfg.FetchMaxRetries,
		UserAgent:              cfg.UserAgent,
		Registry:               feeds,
		Metrics:                metrics,
		Logger:                 log.With().Str("component", "ndbc").Logger(),
	})

	clock := clockwork.NewRealClock()
	service := buoy.NewService(buoy.ServiceConfig{
		Provider:         client,
		Stations:         stations,
		Cache:            cache.New(clock),
		Clock:            clock,
		Logger:           log.With().Str("component", "buoy").Logger(),
		Metrics:          metrics,
		LiveTTL:          cfg.CacheLiveTTL,
		HistoryTTL:       cfg.CacheHistoryTTL,
		AggregateTimeout: cfg.AggregateTimeout,
		Concurrency:      cfg.FetchConcurrency,
	})
	log.Info().
		Int("stations", stations.Len()).
		Str("primary_station", cfg.PrimaryStationID).
		Dur("live_ttl", cfg.CacheLiveTTL).
		Msg("buoy service initialized")

	refresher := worker.NewRefreshJob(worker.RefreshJobConfig{
		Config: worker.RefreshConfig{
			Interval: cfg.RefreshInterval,
			Timeout:  cfg.AggregateTimeout,
		},
		Service: service,
		Clock:   clock,
		Logger:  log.With().Str("component", "refresher").Logger(),
		Metrics: metrics,
	})
	if cfg.RefreshInterval > 0 {
		go refresher.Start(ctx)
	}

	if cfg.PubSubEnabled() {
		handler, pubsubErr := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
			ProjectID:        cfg.PubSubProjectID,
			SubscriptionName: cfg.PubSubSubscription,
			RefreshJob:       refresher,
			Logger:           log.With().Str("component", "pubsub").Logger(),
		})
		if pubsubErr != nil {
			log.Fatal().Err(pubsubErr).Msg("failed to initialize pubsub handler")
		}
		defer handler.Close()

		go func() {
			if err := handler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("pubsub handler stopped")
			}
		}()
	}

	router := api.NewRouter(api.RouterConfig{
		Version:            Version,
		BuildTime:          BuildTime,
		Logger:             log,
		ServiceName:        serviceName,
		Metrics:            httpMetrics,
		Service:            service,
		PrimaryStationID:   cfg.PrimaryStationID,
		Feeds:              feeds,
		Gatherer:           promRegistry,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RequireTLS:         cfg.RequireTLS,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.AggregateTimeout + 10*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	stop()

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		os.Exit(1)
	}

	stats := refresher.GetStats()
	log.Info().
		Int64("refresh_runs", stats.Runs).
		Int64("stations_refreshed", stats.StationsRefreshed).
		Msg("server stopped")
}
